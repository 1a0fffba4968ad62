// Package repo manages the local clone of the sync repository.
//
// The clone lives in a cache directory and is reused across invocations. It
// holds no state of its own: before each fast-forward, the branch is reset to
// the last commit fetched from the remote, so uncommitted changes and commits
// that were never pushed are discarded.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/errors"
)

const remoteName = "origin"

// ErrNothingToCommit is returned by Commit when the working tree has no
// changes.
var ErrNothingToCommit = errors.New("nothing to commit: the working tree is clean")

const divergedTemplate = "The local copy of the repository in %q has diverged from the remote.\n" +
	"Delete the directory to re-clone it from the remote."

const rejectedPushTemplate = "The remote rejected the push because %q changed while " +
	"pushing.\nRun `cacs status` to review the changes, then push again."

const notACloneTemplate = "The work directory %q exists, but isn't a clone of the " +
	"sync repository.\nSet `work_dir` in the config to an empty or missing directory."

const authFailedTemplate = "Failed to authenticate to %q.\n" +
	"Check the `auth` section of the config.\n\n" +
	"For reference, here is the error from git:\n%s"

// Repository is a local clone of the sync repository.
type Repository interface {
	// Clone prepares the working tree for the branch of the repository at url.
	Clone(ctx context.Context, url, branch string) error

	// FetchAndFastForward updates the working tree to the remote branch.
	FetchAndFastForward(ctx context.Context) error

	// Commit stages every change in the working tree and commits it.
	Commit(ctx context.Context, message string) error

	// Push pushes the branch to the remote.
	Push(ctx context.Context) error

	// WorkTree returns the path of the working tree.
	WorkTree() string
}

// GitRepository implements Repository with go-git.
type GitRepository struct {
	workDir string
	author  config.Author
	auth    config.Auth
	clock   clockwork.Clock

	url        string
	branch     string
	authMethod transport.AuthMethod
	repo       *git.Repository
}

// NewGitRepository returns a GitRepository that clones into the work
// directory of cfg.
func NewGitRepository(cfg config.Config) *GitRepository {
	return &GitRepository{
		workDir: cfg.WorkDir,
		author:  cfg.Author,
		auth:    cfg.Auth,
		clock:   clockwork.NewRealClock(),
	}
}

func (r *GitRepository) WorkTree() string {
	return r.workDir
}

func (r *GitRepository) branchRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(r.branch)
}

// upstreamRef is the remote-tracking reference of the branch. It only exists
// once the branch has been fetched from, or pushed to, the remote.
func (r *GitRepository) upstreamRef() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(remoteName, r.branch)
}

func (r *GitRepository) Clone(ctx context.Context, url, branch string) error {
	r.url, r.branch = url, branch

	authMethod, err := getAuthMethod(url, r.auth)
	if err != nil {
		return errors.RepoError{Op: "clone", Err: err}
	}
	r.authMethod = authMethod

	repo, err := r.open()
	switch {
	case err == nil:
		if r.reusable(repo) {
			log.WithField("path", r.workDir).Debug("Using cached clone")
			r.repo = repo
			return nil
		}
		log.WithField("path", r.workDir).Info(
			"Cached clone is of a different repository or branch. Replacing it.")
	case err == git.ErrRepositoryNotExists:
		empty, emptyErr := isEmptyDir(r.workDir)
		if emptyErr != nil {
			return errors.RepoError{Op: "clone", Err: emptyErr}
		}
		if !empty {
			return errors.RepoError{Op: "clone",
				Err: errors.NewFriendlyError(notACloneTemplate, r.workDir)}
		}
	default:
		log.WithError(err).WithField("path", r.workDir).Warn(
			"Failed to open cached clone. Replacing it.")
	}

	if err := r.removeWorkDir(); err != nil {
		return errors.RepoError{Op: "clone", Err: err}
	}

	repo, err = r.clone(ctx)
	if err != nil {
		if removeErr := r.removeWorkDir(); removeErr != nil {
			log.WithError(removeErr).Debug("Failed to clean up partial clone")
		}
		return errors.RepoError{Op: "clone", Err: r.explain(err)}
	}
	r.repo = repo
	return nil
}

func (r *GitRepository) clone(ctx context.Context) (*git.Repository, error) {
	storage, worktree := r.storage()
	repo, err := git.CloneContext(ctx, storage, worktree, &git.CloneOptions{
		URL:           r.url,
		Auth:          r.authMethod,
		RemoteName:    remoteName,
		ReferenceName: r.branchRef(),
		SingleBranch:  true,
	})
	switch {
	case err == nil:
		log.WithField("url", r.url).Info("Cloned repository")
		return repo, nil
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		if err := r.removeWorkDir(); err != nil {
			return nil, err
		}
		log.WithField("url", r.url).Info("Remote repository is empty")
		return r.initEmpty()
	case isMissingRef(err):
		if err := r.removeWorkDir(); err != nil {
			return nil, err
		}
		log.WithField("branch", r.branch).Info(
			"Branch doesn't exist on the remote. It will be created by the next push.")
		return r.initEmpty()
	default:
		return nil, err
	}
}

// initEmpty creates a local repository whose branch has no commits yet. It's
// used when the remote has no commits, or doesn't have the branch.
func (r *GitRepository) initEmpty() (*git.Repository, error) {
	storage, worktree := r.storage()
	repo, err := git.Init(storage, worktree)
	if err != nil {
		return nil, errors.WithContext(err, "init")
	}

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: remoteName,
		URLs: []string{r.url},
	})
	if err != nil {
		return nil, errors.WithContext(err, "create remote")
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, r.branchRef())
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, errors.WithContext(err, "set HEAD")
	}

	log.WithField("url", r.url).Debug("Initialized a new local repository")
	return repo, nil
}

func (r *GitRepository) storage() (*filesystem.Storage, billy.Filesystem) {
	worktree := osfs.New(r.workDir)
	dotGit, _ := worktree.Chroot(git.GitDirName)
	return filesystem.NewStorage(dotGit, cache.NewObjectLRUDefault()), worktree
}

func (r *GitRepository) open() (*git.Repository, error) {
	storage, worktree := r.storage()
	return git.Open(storage, worktree)
}

// reusable returns whether an existing clone tracks the configured URL and
// branch.
func (r *GitRepository) reusable(repo *git.Repository) bool {
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return false
	}

	urls := remote.Config().URLs
	if len(urls) == 0 || urls[0] != r.url {
		return false
	}

	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return false
	}
	return head.Type() == plumbing.SymbolicReference && head.Target() == r.branchRef()
}

func (r *GitRepository) removeWorkDir() error {
	parent := osfs.New(filepath.Dir(r.workDir))
	if err := util.RemoveAll(parent, filepath.Base(r.workDir)); err != nil {
		return errors.IOError{Op: "remove", Path: r.workDir, Err: err}
	}
	return nil
}

func (r *GitRepository) FetchAndFastForward(ctx context.Context) error {
	wt, err := r.worktree()
	if err != nil {
		return errors.RepoError{Op: "pull", Err: err}
	}

	if err := r.discardChanges(wt); err != nil {
		return errors.RepoError{Op: "pull", Err: err}
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    remoteName,
		ReferenceName: r.branchRef(),
		SingleBranch:  true,
		Auth:          r.authMethod,
	})
	switch {
	case err == nil:
		log.WithField("branch", r.branch).Info("Fast-forwarded to the remote branch")
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		log.WithField("branch", r.branch).Debug("Already up to date")
		return nil
	case errors.Is(err, transport.ErrEmptyRemoteRepository), isMissingRef(err):
		log.WithField("branch", r.branch).Debug("Remote branch has no commits yet")
		return nil
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return errors.RepoError{Op: "pull", Err: errors.NewFriendlyError(divergedTemplate, r.workDir)}
	default:
		return errors.RepoError{Op: "pull", Err: r.explain(err)}
	}
}

// discardChanges resets the branch and the working tree to the last commit
// fetched from the remote. Untracked files, and commits left behind by a push
// that failed, are removed.
func (r *GitRepository) discardChanges(wt *git.Worktree) error {
	upstream, err := r.repo.Reference(r.upstreamRef(), true)
	if err == plumbing.ErrReferenceNotFound {
		return r.resetToUnborn()
	}
	if err != nil {
		return errors.WithContext(err, "resolve upstream")
	}

	if head, err := r.repo.Reference(r.branchRef(), true); err == nil && head.Hash() != upstream.Hash() {
		log.WithField("branch", r.branch).WithField("commit", head.Hash().String()).Debug(
			"Discarding local commits that weren't pushed")
	}

	if err := wt.Reset(&git.ResetOptions{Commit: upstream.Hash(), Mode: git.HardReset}); err != nil {
		return errors.WithContext(err, "reset")
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return errors.WithContext(err, "clean")
	}
	return nil
}

// resetToUnborn empties the branch, the index and the working tree. The
// remote has no commits on the branch, so nothing local is worth keeping.
func (r *GitRepository) resetToUnborn() error {
	_, err := r.repo.Reference(r.branchRef(), false)
	switch {
	case err == nil:
		log.WithField("branch", r.branch).Debug("Discarding local commits that weren't pushed")
		if err := r.repo.Storer.RemoveReference(r.branchRef()); err != nil {
			return errors.WithContext(err, "remove branch")
		}
	case err != plumbing.ErrReferenceNotFound:
		return errors.WithContext(err, "resolve branch")
	}

	if err := r.repo.Storer.SetIndex(&index.Index{Version: 2}); err != nil {
		return errors.WithContext(err, "reset index")
	}

	worktree := osfs.New(r.workDir)
	entries, err := worktree.ReadDir(".")
	if err != nil {
		return errors.IOError{Op: "read", Path: r.workDir, Err: err}
	}
	for _, entry := range entries {
		if entry.Name() == git.GitDirName {
			continue
		}
		if err := util.RemoveAll(worktree, entry.Name()); err != nil {
			return errors.IOError{Op: "remove", Path: filepath.Join(r.workDir, entry.Name()), Err: err}
		}
	}
	return nil
}

func (r *GitRepository) Commit(ctx context.Context, message string) error {
	wt, err := r.worktree()
	if err != nil {
		return errors.RepoError{Op: "commit", Err: err}
	}

	if err := stageAll(wt); err != nil {
		return errors.RepoError{Op: "commit", Err: err}
	}

	status, err := wt.Status()
	if err != nil {
		return errors.RepoError{Op: "commit", Err: errors.WithContext(err, "get status")}
	}
	if status.IsClean() {
		return ErrNothingToCommit
	}

	signature := &object.Signature{
		Name:  r.author.Name,
		Email: r.author.Email,
		When:  r.clock.Now(),
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:    signature,
		Committer: signature,
	})
	if err != nil {
		return errors.RepoError{Op: "commit", Err: err}
	}

	log.WithField("commit", hash.String()).Info("Committed changes")
	return nil
}

// stageAll is the equivalent of `git add -A`.
func stageAll(wt *git.Worktree) error {
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return errors.WithContext(err, "add")
	}

	status, err := wt.Status()
	if err != nil {
		return errors.WithContext(err, "get status")
	}

	for path, fileStatus := range status {
		if fileStatus.Worktree != git.Deleted {
			continue
		}
		if _, err := wt.Remove(path); err != nil {
			return errors.WithContext(err, fmt.Sprintf("remove %s", path))
		}
	}
	return nil
}

func (r *GitRepository) Push(ctx context.Context) error {
	if r.repo == nil {
		return errors.RepoError{Op: "push", Err: errors.New("repository isn't cloned")}
	}

	ref := r.branchRef()
	head, err := r.repo.Reference(ref, true)
	if err == plumbing.ErrReferenceNotFound {
		log.WithField("branch", r.branch).Debug("Branch has no commits. Nothing to push.")
		return nil
	}
	if err != nil {
		return errors.RepoError{Op: "push", Err: errors.WithContext(err, "resolve branch")}
	}

	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))},
		Auth:       r.authMethod,
	})
	switch {
	case err == nil:
		log.WithField("branch", r.branch).Info("Pushed to the remote")
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		log.WithField("branch", r.branch).Debug("Remote is already up to date")
	case isRejected(err):
		return errors.RepoError{Op: "push", Err: errors.NewFriendlyError(rejectedPushTemplate, r.url)}
	default:
		return errors.RepoError{Op: "push", Err: r.explain(err)}
	}

	// The next reset must keep what was just pushed.
	upstream := plumbing.NewHashReference(r.upstreamRef(), head.Hash())
	if err := r.repo.Storer.SetReference(upstream); err != nil {
		log.WithError(err).WithField("branch", r.branch).Warn(
			"Failed to record the pushed commit. The next sync will fetch it again.")
	}
	return nil
}

func (r *GitRepository) worktree() (*git.Worktree, error) {
	if r.repo == nil {
		return nil, errors.New("repository isn't cloned")
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, errors.WithContext(err, "get worktree")
	}
	return wt, nil
}

// explain adds a friendly message to authentication failures.
func (r *GitRepository) explain(err error) error {
	if errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) {
		return errors.NewFriendlyError(authFailedTemplate, r.url, err)
	}
	return err
}

// isRejected returns whether the remote refused a push because the branch
// moved. go-git reports it with the text of ErrNonFastForwardUpdate, without
// wrapping the error.
func isRejected(err error) bool {
	return errors.Is(err, git.ErrNonFastForwardUpdate) ||
		strings.Contains(err.Error(), git.ErrNonFastForwardUpdate.Error())
}

func isMissingRef(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.Is(err, plumbing.ErrReferenceNotFound) || errors.As(err, &noMatch)
}

func isEmptyDir(path string) (bool, error) {
	entries, err := osfs.New(filepath.Dir(path)).ReadDir(filepath.Base(path))
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.IOError{Op: "read", Path: path, Err: err}
	}
	return len(entries) == 0, nil
}
