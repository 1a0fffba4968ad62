package backup

import (
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/fsutil"
)

// Selector picks the snapshot to restore from a list ordered most recent
// first, and returns its ID.
type Selector func([]Snapshot) (string, error)

// RestoreReport lists what Restore did with each item.
type RestoreReport struct {
	ID       string
	Restored []string
	Skipped  []string
}

// Restore copies every item in the snapshot back over its current target.
// Targets are restored to the paths in items, so that a target that moved
// since the snapshot was taken is restored to its new location. Items that
// weren't present when the snapshot was taken, or that are no longer
// configured, are skipped.
func (m Manager) Restore(id string, items []config.Item) (RestoreReport, error) {
	snap, err := m.Get(id)
	if err != nil {
		return RestoreReport{}, err
	}

	report := RestoreReport{ID: snap.ID}
	for _, item := range items {
		recorded, ok := snap.Item(item.Name)
		if !ok || !recorded.Present {
			log.WithField("item", item.Name).WithField("snapshot", snap.ID).Warn(
				"Snapshot has no copy of this item. Skipping it.")
			report.Skipped = append(report.Skipped, item.Name)
			continue
		}

		src := filepath.Join(snap.Path, itemsDir, item.Name)
		if err := fsutil.Copy(m.fs, src, item.TargetPath); err != nil {
			return report, errors.WithContext(err, fmt.Sprintf("restore %s", item.Name))
		}
		log.WithField("item", item.Name).Debug("Restored item")
		report.Restored = append(report.Restored, item.Name)
	}

	for _, recorded := range snap.Items {
		if _, ok := configured(items, recorded.Name); !ok && recorded.Present {
			log.WithField("item", recorded.Name).WithField("snapshot", snap.ID).Warn(
				"Item is no longer configured. Skipping it.")
			report.Skipped = append(report.Skipped, recorded.Name)
		}
	}
	return report, nil
}

func configured(items []config.Item, name string) (config.Item, bool) {
	for _, item := range items {
		if item.Name == name {
			return item, true
		}
	}
	return config.Item{}, false
}
