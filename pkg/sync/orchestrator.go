package sync

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/cacs/pkg/backup"
	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/diff"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/repo"
	"github.com/sidkik/cacs/pkg/state"
)

// State is the state of the Orchestrator.
type State int

const (
	Idle State = iota
	Loading
	Initializing
	Pulling
	Pushing
	Checking
	BackingUp
	Restoring
	Done
	Failed
)

var stateNames = map[State]string{
	Idle:         "idle",
	Loading:      "loading",
	Initializing: "initializing",
	Pulling:      "pulling",
	Pushing:      "pushing",
	Checking:     "checking",
	BackingUp:    "backing up",
	Restoring:    "restoring",
	Done:         "done",
	Failed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) finished() bool {
	return s == Idle || s == Done || s == Failed
}

// Orchestrator runs sync operations. It holds no configuration: each
// operation is passed the config it should use.
type Orchestrator struct {
	repo  repo.Repository
	fs    afero.Fs
	clock clockwork.Clock
	state State
}

// New returns an Orchestrator that syncs through the given repository.
func New(repository repo.Repository, fs afero.Fs, clock clockwork.Clock) *Orchestrator {
	return &Orchestrator{
		repo:  repository,
		fs:    fs,
		clock: clock,
		state: Idle,
	}
}

// State returns the state of the most recent operation.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) transition(next State) {
	log.WithField("from", o.state).WithField("to", next).Debug("Sync state transition")
	o.state = next
}

// session is the context of a single operation.
type session struct {
	cfg     config.Config
	fs      afero.Fs
	diff    diff.Engine
	backups backup.Manager
	store   state.Store
	state   state.State
	repoDir string
}

// run runs fn in the op state. If loadRepo is true, the repository and sync
// state are loaded first.
func (o *Orchestrator) run(ctx context.Context, cfg config.Config, op State,
	loadRepo bool, fn func(*session) error) error {
	if !o.state.finished() {
		return errors.New("another operation is in progress (%s)", o.state)
	}

	sess := &session{
		cfg:     cfg,
		fs:      o.fs,
		diff:    diff.New(o.fs),
		backups: backup.NewManager(o.fs, o.clock, cfg.BackupDir),
		store:   state.NewStore(o.fs, cfg.StateFile, o.clock),
	}

	err := func() error {
		if loadRepo {
			o.transition(Loading)
			if err := o.load(ctx, sess); err != nil {
				return err
			}
		}
		o.transition(op)
		return fn(sess)
	}()
	if err != nil {
		o.transition(Failed)
		return err
	}

	o.transition(Done)
	return nil
}

func (o *Orchestrator) load(ctx context.Context, sess *session) error {
	if err := o.repo.Clone(ctx, sess.cfg.Repo, sess.cfg.Branch); err != nil {
		return err
	}

	if err := o.repo.FetchAndFastForward(ctx); err != nil {
		return err
	}
	sess.repoDir = o.repo.WorkTree()

	st, err := sess.store.Load()
	if err != nil {
		if st.Items == nil {
			return errors.WithContext(err, "load sync state")
		}
		log.WithError(err).Warn("Ignoring unreadable sync state. " +
			"Changes will be reported as made on both sides until the next sync.")
	}
	sess.state = st
	return nil
}

func (sess *session) repoPath(item config.Item) string {
	return filepath.Join(sess.repoDir, filepath.FromSlash(item.RepoPath))
}

func (sess *session) compare(item config.Item) (diff.Result, error) {
	res, err := sess.diff.Compare(item.TargetPath, sess.repoPath(item), item,
		sess.state.Baseline(item.Name))
	if err != nil {
		return diff.Result{}, errors.WithContext(err, fmt.Sprintf("compare %s", item.Name))
	}
	return res, nil
}

// record updates the baseline of item to the current contents of path.
func (sess *session) record(item config.Item, operation, path string) error {
	digests, err := sess.diff.Digests(path, item)
	if err != nil {
		return errors.WithContext(err, fmt.Sprintf("digest %s", item.Name))
	}
	sess.store.Record(sess.state, item.Name, operation, digests)
	return nil
}

// save writes the sync state. The repository has already been updated by the
// time it's called, so failures are only logged.
func (sess *session) save() {
	if err := sess.store.Save(sess.state); err != nil {
		log.WithError(err).Warn("Failed to save sync state. " +
			"The next status may report changes on both sides.")
	}
}

// recordAll records the baselines of items from path, logging failures.
func (sess *session) recordAll(items []config.Item, operation string, path func(config.Item) string) {
	for _, item := range items {
		if err := sess.record(item, operation, path(item)); err != nil {
			log.WithError(err).WithField("item", item.Name).Warn("Failed to record sync state")
		}
	}
	sess.save()
}

func targetPath(item config.Item) string {
	return item.TargetPath
}
