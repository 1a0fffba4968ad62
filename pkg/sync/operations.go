package sync

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/cacs/pkg/backup"
	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/diff"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/fsutil"
	"github.com/sidkik/cacs/pkg/repo"
)

// InitMessage is the commit message used by Init.
const InitMessage = "Initial config sync"

const (
	opInit = "init"
	opPull = "pull"
	opPush = "push"
)

// Init copies every local target into the repository, and pushes the result.
// If any item fails to copy, nothing is committed.
func (o *Orchestrator) Init(ctx context.Context, cfg config.Config) (InitReport, error) {
	var report InitReport
	err := o.run(ctx, cfg, Initializing, true, func(sess *session) error {
		var written []config.Item
		for _, item := range cfg.Items {
			exists, err := fsutil.Exists(sess.fs, item.TargetPath)
			if err != nil {
				return err
			}
			if !exists {
				report.add(skip(item, "", "local copy doesn't exist"))
				continue
			}

			if err := sess.writeToRepo(item); err != nil {
				return err
			}
			report.add(ItemReport{Item: item.Name, Outcome: Updated})
			written = append(written, item)
		}

		err := o.repo.Commit(ctx, InitMessage)
		switch {
		case errors.Is(err, repo.ErrNothingToCommit):
			log.Info("The repository already matches the local configs")
		case err != nil:
			return err
		}

		if err := o.repo.Push(ctx); err != nil {
			return err
		}
		sess.recordAll(written, opInit, sess.repoPath)
		return nil
	})
	return report, err
}

// Pull overwrites the local targets with the repository versions. A backup
// snapshot of the targets is taken first.
func (o *Orchestrator) Pull(ctx context.Context, cfg config.Config) (PullReport, error) {
	var report PullReport
	err := o.run(ctx, cfg, Pulling, true, func(sess *session) error {
		snap, err := sess.backups.CreateSnapshot(cfg.Items, backup.Pull)
		if err != nil {
			return errors.WithContext(err, "back up local configs")
		}
		report.Snapshot = snap
		if snap != nil {
			sess.rotate()
		}

		var synced []config.Item
		for _, item := range cfg.Items {
			res, err := sess.compare(item)
			if err != nil {
				return err
			}

			switch res.Status {
			case diff.MissingBoth, diff.LocalOnly:
				report.add(skip(item, res.Status, "repository has no copy"))
				continue
			case diff.Identical:
				report.add(ItemReport{Item: item.Name, Outcome: Unchanged, Status: res.Status})
			default:
				if err := sess.writeToTarget(item); err != nil {
					return err
				}
				if sess.changedSinceSync(res, diff.LocalModified) {
					report.add(overwrite(item, res.Status, "local changes were overwritten",
						"Local changes were overwritten by the repository version. "+
							"They're in the backup snapshot."))
				} else {
					report.add(ItemReport{Item: item.Name, Outcome: Updated, Status: res.Status})
				}
			}
			synced = append(synced, item)
		}

		sess.recordAll(synced, opPull, targetPath)
		return nil
	})
	return report, err
}

// Push commits the local targets that differ from the repository, and pushes
// them. If nothing differs, Push fails with errors.ErrNothingToPush without
// committing.
func (o *Orchestrator) Push(ctx context.Context, cfg config.Config, message string) (PushReport, error) {
	report := PushReport{Message: message}
	err := o.run(ctx, cfg, Pushing, true, func(sess *session) error {
		var changed, synced []config.Item
		for _, item := range cfg.Items {
			res, err := sess.compare(item)
			if err != nil {
				return err
			}

			switch res.Status {
			case diff.Identical, diff.MissingBoth:
				report.add(ItemReport{Item: item.Name, Outcome: Unchanged, Status: res.Status})
				if res.Status == diff.Identical {
					synced = append(synced, item)
				}
				continue
			case diff.RemoteOnly:
				report.add(skip(item, res.Status, "local copy doesn't exist"))
				continue
			default:
				if err := sess.writeToRepo(item); err != nil {
					return err
				}
				if sess.changedSinceSync(res, diff.RemoteModified) {
					report.add(overwrite(item, res.Status, "repository changes were overwritten",
						"The repository version also changed since the last sync. "+
							"Overwriting it with the local version."))
				} else {
					report.add(ItemReport{Item: item.Name, Outcome: Updated, Status: res.Status})
				}
			}
			changed = append(changed, item)
		}

		if len(changed) == 0 {
			return errors.ErrNothingToPush
		}

		switch err := o.repo.Commit(ctx, message); {
		case errors.Is(err, repo.ErrNothingToCommit):
			return errors.ErrNothingToPush
		case err != nil:
			return err
		}

		if err := o.repo.Push(ctx); err != nil {
			return err
		}
		sess.recordAll(append(synced, changed...), opPush, sess.repoPath)
		return nil
	})
	return report, err
}

// Status compares every item with the repository. It doesn't modify the
// local targets.
func (o *Orchestrator) Status(ctx context.Context, cfg config.Config) ([]diff.Result, error) {
	var results []diff.Result
	err := o.run(ctx, cfg, Checking, true, func(sess *session) error {
		for _, item := range cfg.Items {
			res, err := sess.compare(item)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	return results, err
}

// Backup takes a manual backup snapshot of the local targets. The snapshot is
// nil if none of the targets exist.
func (o *Orchestrator) Backup(ctx context.Context, cfg config.Config) (*backup.Snapshot, error) {
	var snap *backup.Snapshot
	err := o.run(ctx, cfg, BackingUp, false, func(sess *session) (err error) {
		snap, err = sess.backups.CreateSnapshot(cfg.Items, backup.Manual)
		if err != nil {
			return errors.WithContext(err, "back up local configs")
		}
		if snap != nil {
			sess.rotate()
		}
		return nil
	})
	return snap, err
}

// Restore restores the local targets from a backup snapshot. If id is empty,
// selectSnapshot picks one. A manual snapshot of the current targets is taken
// before anything is overwritten.
func (o *Orchestrator) Restore(ctx context.Context, cfg config.Config, id string,
	selectSnapshot backup.Selector) (RestoreReport, error) {
	var report RestoreReport
	err := o.run(ctx, cfg, Restoring, false, func(sess *session) error {
		if id == "" {
			snapshots, err := sess.backups.List()
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				return errors.NewFriendlyError("There are no backup snapshots in %q.", cfg.BackupDir)
			}

			id, err = selectSnapshot(snapshots)
			if err != nil {
				return err
			}
		}

		// Fail before taking the safety snapshot if the ID is wrong.
		if _, err := sess.backups.Get(id); err != nil {
			return err
		}

		safety, err := sess.backups.CreateSnapshot(cfg.Items, backup.Manual)
		if err != nil {
			return errors.WithContext(err, "back up local configs")
		}
		report.SafetySnapshot = safety

		restored, err := sess.backups.Restore(id, cfg.Items)
		report.RestoreReport = restored
		if err != nil {
			return err
		}

		// Rotate only after restoring so that the safety snapshot can't evict
		// the snapshot being restored.
		sess.rotate()
		return nil
	})
	return report, err
}

func (sess *session) rotate() {
	if err := sess.backups.Rotate(sess.cfg.MaxBackups); err != nil {
		log.WithError(err).Warn("Failed to delete old backup snapshots")
	}
}

// changedSinceSync returns whether the side being overwritten is known to
// have changed since the last sync. Without a baseline, differing copies are
// reported as both-modified even though neither side is known to have changed.
func (sess *session) changedSinceSync(res diff.Result, overwritten diff.Status) bool {
	switch res.Status {
	case overwritten:
		return true
	case diff.BothModified:
		return sess.state.Baseline(res.Item) != nil
	default:
		return false
	}
}

func skip(item config.Item, status diff.Status, reason string) ItemReport {
	log.WithField("item", item.Name).Warnf("Skipping item: %s", reason)
	return ItemReport{Item: item.Name, Outcome: Skipped, Status: status, Warning: reason}
}

func overwrite(item config.Item, status diff.Status, warning, detail string) ItemReport {
	log.WithField("item", item.Name).Warn(detail)
	return ItemReport{Item: item.Name, Outcome: Updated, Status: status, Warning: warning}
}
