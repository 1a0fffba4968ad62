package sync

import (
	"github.com/sidkik/cacs/pkg/backup"
	"github.com/sidkik/cacs/pkg/diff"
)

// Outcome is what an operation did with an item.
type Outcome string

const (
	// Updated means the destination of the item was written.
	Updated Outcome = "updated"

	// Unchanged means the item was already in sync.
	Unchanged Outcome = "unchanged"

	// Skipped means the item couldn't be synced. ItemReport.Warning says why.
	Skipped Outcome = "skipped"
)

// ItemReport is the outcome of an operation for a single item.
type ItemReport struct {
	Item    string
	Outcome Outcome

	// Status is the comparison of the item before the operation. It's empty
	// for init, which doesn't compare.
	Status  diff.Status
	Warning string
}

// Report lists the outcome of an operation for every item.
type Report struct {
	Items []ItemReport
}

func (r *Report) add(item ItemReport) {
	r.Items = append(r.Items, item)
}

// Updated returns the names of the items that were written.
func (r Report) Updated() []string {
	var names []string
	for _, item := range r.Items {
		if item.Outcome == Updated {
			names = append(names, item.Item)
		}
	}
	return names
}

// Warnings returns the warnings of every item, prefixed by the item name.
func (r Report) Warnings() []string {
	var warnings []string
	for _, item := range r.Items {
		if item.Warning != "" {
			warnings = append(warnings, item.Item+": "+item.Warning)
		}
	}
	return warnings
}

// InitReport is the result of Init.
type InitReport struct {
	Report
}

// PullReport is the result of Pull.
type PullReport struct {
	Report

	// Snapshot is the backup taken before overwriting the targets. It's nil if
	// none of the targets existed.
	Snapshot *backup.Snapshot
}

// PushReport is the result of Push.
type PushReport struct {
	Report
	Message string
}

// RestoreReport is the result of Restore.
type RestoreReport struct {
	backup.RestoreReport

	// SafetySnapshot is the backup of the targets taken before restoring. It's
	// nil if none of the targets existed.
	SafetySnapshot *backup.Snapshot
}
