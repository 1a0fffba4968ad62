// Package diff compares the local and repository copies of sync items.
//
// Comparisons never modify either side. When the two copies differ, the
// digests recorded at the last sync decide which side changed.
package diff

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/fsutil"
	"github.com/sidkik/cacs/pkg/jsondoc"
	"github.com/sidkik/cacs/pkg/mask"
)

// Status describes how the local and repository copies of an item relate.
type Status string

const (
	Identical      Status = "identical"
	LocalModified  Status = "local-modified"
	RemoteModified Status = "remote-modified"
	BothModified   Status = "both-modified"
	LocalOnly      Status = "local-only"
	RemoteOnly     Status = "remote-only"
	MissingBoth    Status = "missing-both"
)

// FileKey is the Baseline key of a file item's own digest.
const FileKey = "."

// Baseline maps the paths of an item, relative to its root, to the digest of
// their contents at the last sync. A nil Baseline means the item was never
// synced.
type Baseline map[string]string

// Result is the comparison of a single item.
type Result struct {
	Item   string
	Status Status

	// Entries holds the per-file statuses of a directory item, sorted by path.
	Entries []Entry
}

// Entry is the comparison of one file within a directory item.
type Entry struct {
	Path   string
	Status Status
}

// Changed returns whether pushing or pulling the item would change anything.
func (res Result) Changed() bool {
	return res.Status != Identical && res.Status != MissingBoth
}

func (s Status) localChange() bool {
	return s == LocalOnly || s == LocalModified
}

func (s Status) remoteChange() bool {
	return s == RemoteOnly || s == RemoteModified
}

func (s Status) severity() int {
	switch s {
	case LocalModified, RemoteModified:
		return 2
	case LocalOnly, RemoteOnly:
		return 1
	default:
		return 0
	}
}

// Engine compares items through a filesystem.
type Engine struct {
	fs afero.Fs
}

// New returns an Engine that reads through fs.
func New(fs afero.Fs) Engine {
	return Engine{fs: fs}
}

// Compare compares the local and remote copies of item. baseline may be nil.
func (e Engine) Compare(local, remote string, item config.Item, baseline Baseline) (Result, error) {
	res := Result{Item: item.Name}

	localExists, err := fsutil.Exists(e.fs, local)
	if err != nil {
		return Result{}, err
	}
	remoteExists, err := fsutil.Exists(e.fs, remote)
	if err != nil {
		return Result{}, err
	}

	switch {
	case !localExists && !remoteExists:
		res.Status = MissingBoth
		return res, nil
	case !remoteExists:
		res.Status = LocalOnly
		return res, nil
	case !localExists:
		res.Status = RemoteOnly
		return res, nil
	}

	if item.Type == config.Directory {
		res.Entries, err = e.compareTrees(local, remote, baseline)
		if err != nil {
			return Result{}, errors.WithContext(err, "compare directory")
		}
		res.Status = aggregate(res.Entries)
		return res, nil
	}

	res.Status, err = e.compareFiles(local, remote, item, baseline[FileKey])
	if err != nil {
		return Result{}, errors.WithContext(err, "compare file")
	}
	return res, nil
}

func (e Engine) compareTrees(local, remote string, baseline Baseline) ([]Entry, error) {
	localFiles, err := fsutil.ListFiles(e.fs, local)
	if err != nil {
		return nil, err
	}
	remoteFiles, err := fsutil.ListFiles(e.fs, remote)
	if err != nil {
		return nil, err
	}

	// Both lists are sorted, so merge them in order.
	var entries []Entry
	i, j := 0, 0
	for i < len(localFiles) || j < len(remoteFiles) {
		switch {
		case j == len(remoteFiles) || (i < len(localFiles) && localFiles[i] < remoteFiles[j]):
			entries = append(entries, Entry{Path: localFiles[i], Status: LocalOnly})
			i++
		case i == len(localFiles) || remoteFiles[j] < localFiles[i]:
			entries = append(entries, Entry{Path: remoteFiles[j], Status: RemoteOnly})
			j++
		default:
			rel := localFiles[i]
			status, err := e.compareFiles(
				filepath.Join(local, filepath.FromSlash(rel)),
				filepath.Join(remote, filepath.FromSlash(rel)),
				config.Item{Type: config.File}, baseline[rel])
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Path: rel, Status: status})
			i++
			j++
		}
	}
	return entries, nil
}

// aggregate summarizes the entries of a directory. Changes on both sides make
// the directory both-modified. Otherwise, the most severe entry wins.
func aggregate(entries []Entry) Status {
	var localChanged, remoteChanged bool
	status := Identical
	for _, entry := range entries {
		if entry.Status == BothModified {
			return BothModified
		}
		localChanged = localChanged || entry.Status.localChange()
		remoteChanged = remoteChanged || entry.Status.remoteChange()
		if entry.Status.severity() > status.severity() {
			status = entry.Status
		}
	}

	if localChanged && remoteChanged {
		return BothModified
	}
	return status
}

func (e Engine) compareFiles(local, remote string, item config.Item, base string) (Status, error) {
	var equal bool
	var err error
	if item.HasIgnoreFields() {
		equal, err = e.jsonEqual(local, remote, item.IgnoreFields)
	} else {
		equal, err = fsutil.FilesEqual(e.fs, local, remote)
	}
	if err != nil {
		return "", err
	}
	if equal {
		return Identical, nil
	}

	if base == "" {
		return BothModified, nil
	}

	localDigest, err := e.digest(local, item)
	if err != nil {
		return "", err
	}
	remoteDigest, err := e.digest(remote, item)
	if err != nil {
		return "", err
	}

	localChanged := localDigest != base
	remoteChanged := remoteDigest != base
	switch {
	case localChanged && !remoteChanged:
		return LocalModified, nil
	case remoteChanged && !localChanged:
		return RemoteModified, nil
	default:
		return BothModified, nil
	}
}

// jsonEqual compares two JSON objects without the ignored fields. If either
// file isn't a JSON object, the files are compared byte for byte.
func (e Engine) jsonEqual(local, remote string, ignore []string) (bool, error) {
	localDoc, localOK, err := e.readObject(local)
	if err != nil {
		return false, err
	}
	remoteDoc, remoteOK, err := e.readObject(remote)
	if err != nil {
		return false, err
	}

	if !localOK || !remoteOK {
		return fsutil.FilesEqual(e.fs, local, remote)
	}
	return jsondoc.Equal(mask.Project(localDoc, ignore), mask.Project(remoteDoc, ignore)), nil
}

func (e Engine) readObject(path string) (*jsondoc.Object, bool, error) {
	contents, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, false, errors.IOError{Op: "read", Path: path, Err: err}
	}
	obj, ok := jsondoc.ParseObject(contents)
	return obj, ok, nil
}
