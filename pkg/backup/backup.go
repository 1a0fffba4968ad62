// Package backup keeps timestamped copies of the local sync targets so that
// destructive operations can be rolled back.
//
// Each snapshot is a directory under the backup root:
//
//	<backup_dir>/<timestamp>_<trigger>/
//	    manifest.json
//	    items/<item name>
//
// The manifest is written last, and a directory without one isn't a snapshot.
// Snapshots are never modified after they're created.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/fsutil"
)

// Trigger is the operation that caused a snapshot to be taken.
type Trigger string

const (
	Pull   Trigger = "pull"
	Push   Trigger = "push"
	Manual Trigger = "manual"
)

const (
	// TimestampFormat sorts lexicographically in creation order.
	TimestampFormat = "20060102T150405.000Z"

	manifestName = "manifest.json"
	itemsDir     = "items"
)

// Manifest describes the contents of a snapshot.
type Manifest struct {
	ID        string         `json:"id"`
	Trigger   Trigger        `json:"trigger"`
	CreatedAt time.Time      `json:"createdAt"`
	Items     []ManifestItem `json:"items"`
}

// ManifestItem records a single item at the time of the snapshot.
type ManifestItem struct {
	Name       string          `json:"name"`
	Type       config.ItemType `json:"type"`
	TargetPath string          `json:"targetPath"`

	// Present is false if the target didn't exist, in which case the snapshot
	// has no copy of it.
	Present bool `json:"present"`
}

// Snapshot is a backup snapshot on disk.
type Snapshot struct {
	Manifest

	// Timestamp is CreatedAt formatted with TimestampFormat.
	Timestamp string
	Path      string
}

// Item returns the manifest entry for the named item.
func (snap Snapshot) Item(name string) (ManifestItem, bool) {
	for _, item := range snap.Items {
		if item.Name == name {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// Manager creates and restores snapshots under a backup root.
type Manager struct {
	fs    afero.Fs
	clock clockwork.Clock
	root  string
}

// NewManager returns a Manager for the snapshots under root.
func NewManager(fs afero.Fs, clock clockwork.Clock, root string) Manager {
	return Manager{fs: fs, clock: clock, root: root}
}

// CreateSnapshot copies the targets of items into a new snapshot. If none of
// the targets exist, no snapshot is created and CreateSnapshot returns nil.
// If copying any item fails, the partial snapshot is removed.
func (m Manager) CreateSnapshot(items []config.Item, trigger Trigger) (*Snapshot, error) {
	var manifestItems []ManifestItem
	var anyPresent bool
	for _, item := range items {
		present, err := fsutil.Exists(m.fs, item.TargetPath)
		if err != nil {
			return nil, errors.WithContext(err, "check target")
		}
		anyPresent = anyPresent || present

		manifestItems = append(manifestItems, ManifestItem{
			Name:       item.Name,
			Type:       item.Type,
			TargetPath: item.TargetPath,
			Present:    present,
		})
	}

	if !anyPresent {
		log.WithField("trigger", trigger).Debug("No targets exist. Skipping backup snapshot.")
		return nil, nil
	}

	createdAt := m.clock.Now().UTC()
	id, err := m.newID(createdAt, trigger)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{
		Manifest: Manifest{
			ID:        id,
			Trigger:   trigger,
			CreatedAt: createdAt,
			Items:     manifestItems,
		},
		Timestamp: createdAt.Format(TimestampFormat),
		Path:      filepath.Join(m.root, id),
	}

	if err := m.writeSnapshot(snap); err != nil {
		if removeErr := m.fs.RemoveAll(snap.Path); removeErr != nil {
			log.WithError(removeErr).WithField("path", snap.Path).Warn(
				"Failed to clean up partial backup snapshot")
		}
		return nil, err
	}

	log.WithField("id", snap.ID).Info("Created backup snapshot")
	return &snap, nil
}

// newID returns an unused snapshot ID for the given time and trigger.
func (m Manager) newID(createdAt time.Time, trigger Trigger) (string, error) {
	base := fmt.Sprintf("%s_%s", createdAt.Format(TimestampFormat), trigger)
	id := base
	for i := 1; ; i++ {
		exists, err := fsutil.Exists(m.fs, filepath.Join(m.root, id))
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
		id = fmt.Sprintf("%s-%d", base, i)
	}
}

func (m Manager) writeSnapshot(snap Snapshot) error {
	if err := m.fs.MkdirAll(filepath.Join(snap.Path, itemsDir), 0700); err != nil {
		return errors.IOError{Op: "mkdir", Path: snap.Path, Err: err}
	}

	for _, item := range snap.Items {
		if !item.Present {
			continue
		}

		dst := filepath.Join(snap.Path, itemsDir, item.Name)
		if err := fsutil.Copy(m.fs, item.TargetPath, dst); err != nil {
			return errors.WithContext(err, fmt.Sprintf("back up %s", item.Name))
		}
	}

	manifest, err := json.MarshalIndent(snap.Manifest, "", "  ")
	if err != nil {
		return errors.WithContext(err, "marshal manifest")
	}
	return fsutil.WriteFile(m.fs, filepath.Join(snap.Path, manifestName),
		append(manifest, '\n'), 0600)
}

// List returns all snapshots, most recent first.
func (m Manager) List() ([]Snapshot, error) {
	entries, err := afero.ReadDir(m.fs, m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IOError{Op: "list", Path: m.root, Err: err}
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		snap, ok, err := m.read(entry.Name())
		if err != nil {
			log.WithError(err).WithField("id", entry.Name()).Warn(
				"Ignoring unreadable backup snapshot")
			continue
		}
		if ok {
			snapshots = append(snapshots, snap)
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Timestamp != snapshots[j].Timestamp {
			return snapshots[i].Timestamp > snapshots[j].Timestamp
		}
		return snapshots[i].ID > snapshots[j].ID
	})
	return snapshots, nil
}

// IDs returns the IDs of all snapshots, most recent first.
func (m Manager) IDs() ([]string, error) {
	snapshots, err := m.List()
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, snap := range snapshots {
		ids = append(ids, snap.ID)
	}
	return ids, nil
}

// Get returns the snapshot with the given ID.
func (m Manager) Get(id string) (Snapshot, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return Snapshot{}, errors.SnapshotNotFound{ID: id}
	}

	snap, ok, err := m.read(id)
	if err != nil {
		return Snapshot{}, err
	}
	if !ok {
		return Snapshot{}, errors.SnapshotNotFound{ID: id}
	}
	return snap, nil
}

// read parses the manifest of the snapshot directory with the given name. It
// returns false if the directory isn't a snapshot.
func (m Manager) read(name string) (Snapshot, bool, error) {
	dir := filepath.Join(m.root, name)
	contents, err := afero.ReadFile(m.fs, filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, errors.IOError{Op: "read", Path: dir, Err: err}
	}

	var manifest Manifest
	if err := json.Unmarshal(contents, &manifest); err != nil {
		return Snapshot{}, false, errors.WithContext(err, "parse manifest")
	}
	manifest.ID = name

	return Snapshot{
		Manifest:  manifest,
		Timestamp: manifest.CreatedAt.UTC().Format(TimestampFormat),
		Path:      dir,
	}, true, nil
}

// Rotate deletes the oldest snapshots until at most maxBackups remain.
// Failures to delete a snapshot are logged, and don't stop the rotation.
func (m Manager) Rotate(maxBackups int) error {
	snapshots, err := m.List()
	if err != nil {
		return errors.WithContext(err, "list snapshots")
	}

	for i := len(snapshots) - 1; i >= maxBackups && i >= 0; i-- {
		m.remove(snapshots[i])
	}
	return nil
}

func (m Manager) remove(snap Snapshot) {
	// Removing the manifest first means that a partially deleted directory is
	// no longer treated as a snapshot.
	manifestPath := filepath.Join(snap.Path, manifestName)
	if err := m.fs.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("id", snap.ID).Warn("Failed to delete old backup snapshot")
		return
	}

	if err := m.fs.RemoveAll(snap.Path); err != nil {
		log.WithError(err).WithField("id", snap.ID).Warn(
			"Failed to delete the files of an old backup snapshot")
		return
	}
	log.WithField("id", snap.ID).Debug("Deleted old backup snapshot")
}
