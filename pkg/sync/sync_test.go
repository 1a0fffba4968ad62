package sync

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/cacs/pkg/backup"
	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/diff"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/fsutil"
	"github.com/sidkik/cacs/pkg/jsondoc"
	"github.com/sidkik/cacs/pkg/repo"
	"github.com/sidkik/cacs/pkg/state"
)

const (
	workTree  = "/cache/cacs/repo"
	backupDir = "/backups"
)

var (
	settingsItem = config.Item{
		Name:         "settings",
		RepoPath:     "claude/settings.json",
		TargetPath:   "/home/.claude/settings.json",
		Type:         config.File,
		IgnoreFields: []string{"secret", "env.KEY"},
	}
	commandsItem = config.Item{
		Name:       "commands",
		RepoPath:   "claude/commands",
		TargetPath: "/home/.claude/commands",
		Type:       config.Directory,
	}
	notesItem = config.Item{
		Name:       "notes",
		RepoPath:   "notes.md",
		TargetPath: "/home/notes.md",
		Type:       config.File,
	}
)

// fakeRepo is a Repository whose working tree lives in an afero filesystem.
// Commit fails with repo.ErrNothingToCommit if the tree hasn't changed since
// the last commit.
type fakeRepo struct {
	fs        afero.Fs
	committed map[string]string

	commits []string
	pushes  int

	// alwaysClean makes every commit find a clean tree.
	alwaysClean bool
	cloneErr    error
	pushErr     error
}

func (r *fakeRepo) Clone(ctx context.Context, url, branch string) error {
	return r.cloneErr
}

func (r *fakeRepo) FetchAndFastForward(ctx context.Context) error {
	return nil
}

func (r *fakeRepo) Commit(ctx context.Context, message string) error {
	tree := r.tree()
	if r.alwaysClean || reflect.DeepEqual(tree, r.committed) {
		return repo.ErrNothingToCommit
	}
	r.committed = tree
	r.commits = append(r.commits, message)
	return nil
}

func (r *fakeRepo) Push(ctx context.Context) error {
	if r.pushErr != nil {
		return r.pushErr
	}
	r.pushes++
	return nil
}

func (r *fakeRepo) WorkTree() string {
	return workTree
}

func (r *fakeRepo) tree() map[string]string {
	tree := map[string]string{}
	files, _ := fsutil.ListFiles(r.fs, workTree)
	for _, path := range files {
		contents, _ := afero.ReadFile(r.fs, filepath.Join(workTree, path))
		tree[path] = string(contents)
	}
	return tree
}

// failingFs fails to open a single path.
type failingFs struct {
	afero.Fs
	failOpen string
}

func (fs failingFs) Open(name string) (afero.File, error) {
	if name == fs.failOpen {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return fs.Fs.Open(name)
}

func testConfig(maxBackups int, items ...config.Item) config.Config {
	if len(items) == 0 {
		items = []config.Item{settingsItem, commandsItem, notesItem}
	}
	return config.Config{
		Repo:       "git@example.com:me/configs.git",
		Branch:     "main",
		BackupDir:  backupDir,
		MaxBackups: maxBackups,
		WorkDir:    workTree,
		StateFile:  "/state/cacs/state.json",
		Items:      items,
	}
}

// setup creates the local files, and commits the remote files, which are
// relative to the working tree.
func setup(t *testing.T, local, remote map[string]string) (afero.Fs, *fakeRepo, *Orchestrator) {
	fs := afero.NewMemMapFs()
	for path, contents := range local {
		require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
	}
	for path, contents := range remote {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(workTree, path), []byte(contents), 0644))
	}

	fake := &fakeRepo{fs: fs}
	fake.committed = fake.tree()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return fs, fake, New(fake, fs, clock)
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	contents, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(contents)
}

func assertJSON(t *testing.T, exp string, fs afero.Fs, path string) {
	expDoc, err := jsondoc.Parse([]byte(exp))
	require.NoError(t, err)

	actual := readFile(t, fs, path)
	actualDoc, err := jsondoc.Parse([]byte(actual))
	require.NoError(t, err)
	assert.True(t, jsondoc.Equal(expDoc, actualDoc), "expected %s, got %s", exp, actual)
}

func assertMissing(t *testing.T, fs afero.Fs, path string) {
	exists, err := fsutil.Exists(fs, path)
	require.NoError(t, err)
	assert.False(t, exists, "%s should not exist", path)
}

func listFiles(t *testing.T, fs afero.Fs, root string) []string {
	files, err := fsutil.ListFiles(fs, root)
	require.NoError(t, err)
	return files
}

func TestPullKeepsIgnoredFields(t *testing.T) {
	local := `{"secret": "X", "v": 1}`
	fs, _, o := setup(t,
		map[string]string{settingsItem.TargetPath: local},
		map[string]string{settingsItem.RepoPath: `{"secret": "Y", "v": 2}`})

	report, err := o.Pull(context.Background(), testConfig(3, settingsItem))
	require.NoError(t, err)
	assert.Equal(t, Done, o.State())

	assertJSON(t, `{"secret": "X", "v": 2}`, fs, settingsItem.TargetPath)
	assert.Equal(t, []string{"settings"}, report.Updated())

	// The previous version is in the backup.
	require.NotNil(t, report.Snapshot)
	assert.Equal(t, backup.Pull, report.Snapshot.Trigger)
	assert.Equal(t, local, readFile(t, fs, filepath.Join(report.Snapshot.Path, "items", "settings")))
}

func TestPushProtectsIgnoredFields(t *testing.T) {
	tests := []struct {
		name      string
		remote    map[string]string
		expRemote string
	}{
		{
			name:      "RepoValueKept",
			remote:    map[string]string{settingsItem.RepoPath: `{"secret": "Y", "v": 2}`},
			expRemote: `{"secret": "Y", "v": 1}`,
		},
		{
			name:      "LocalValueNotPublished",
			remote:    nil,
			expRemote: `{"v": 1}`,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs, fake, o := setup(t,
				map[string]string{settingsItem.TargetPath: `{"secret": "X", "v": 1}`},
				test.remote)

			report, err := o.Push(context.Background(), testConfig(3, settingsItem), "Update settings")
			require.NoError(t, err)
			assert.Equal(t, "Update settings", report.Message)

			assertJSON(t, test.expRemote, fs, filepath.Join(workTree, settingsItem.RepoPath))
			assert.Equal(t, []string{"Update settings"}, fake.commits)
			assert.Equal(t, 1, fake.pushes)

			// Push never changes the local copy.
			assertJSON(t, `{"secret": "X", "v": 1}`, fs, settingsItem.TargetPath)
		})
	}
}

func TestPushNothingToPush(t *testing.T) {
	tests := []struct {
		name   string
		local  map[string]string
		remote map[string]string
	}{
		{
			name: "Identical",
			local: map[string]string{
				settingsItem.TargetPath:           `{"v": 1}`,
				commandsItem.TargetPath + "/a.md": "a",
			},
			remote: map[string]string{
				settingsItem.RepoPath:           `{"v": 1}`,
				commandsItem.RepoPath + "/a.md": "a",
			},
		},
		{
			name:   "OnlyIgnoredFieldsDiffer",
			local:  map[string]string{settingsItem.TargetPath: `{"secret": "X", "env": {"KEY": "a"}, "v": 1}`},
			remote: map[string]string{settingsItem.RepoPath: `{"v": 1, "env": {}}`},
		},
		{
			name:   "NothingExists",
			local:  nil,
			remote: nil,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			_, fake, o := setup(t, test.local, test.remote)

			_, err := o.Push(context.Background(), testConfig(3), "msg")
			assert.Equal(t, errors.ErrNothingToPush, err)
			assert.Equal(t, Failed, o.State())
			assert.Empty(t, fake.commits)
			assert.Zero(t, fake.pushes)
		})
	}
}

func TestPushCleanTreeIsNothingToPush(t *testing.T) {
	_, fake, o := setup(t,
		map[string]string{notesItem.TargetPath: "new"},
		map[string]string{notesItem.RepoPath: "old"})
	fake.alwaysClean = true

	_, err := o.Push(context.Background(), testConfig(3, notesItem), "msg")
	assert.Equal(t, errors.ErrNothingToPush, err)
	assert.Empty(t, fake.commits)
	assert.Zero(t, fake.pushes)
}

func TestPushDirectoryMirrorsDeletions(t *testing.T) {
	fs, _, o := setup(t,
		map[string]string{
			commandsItem.TargetPath + "/a.md":     "a2",
			commandsItem.TargetPath + "/sub/c.md": "c",
		},
		map[string]string{
			commandsItem.RepoPath + "/a.md": "a",
			commandsItem.RepoPath + "/b.md": "b",
		})

	_, err := o.Push(context.Background(), testConfig(3, commandsItem), "msg")
	require.NoError(t, err)

	repoDir := filepath.Join(workTree, commandsItem.RepoPath)
	assert.Equal(t, []string{"a.md", "sub/c.md"}, listFiles(t, fs, repoDir))
	assert.Equal(t, "a2", readFile(t, fs, filepath.Join(repoDir, "a.md")))
}

func TestPushSkipsMissingLocal(t *testing.T) {
	fs, fake, o := setup(t,
		map[string]string{settingsItem.TargetPath: `{"v": 2}`},
		map[string]string{
			settingsItem.RepoPath: `{"v": 1}`,
			notesItem.RepoPath:    "notes",
		})

	report, err := o.Push(context.Background(), testConfig(3, settingsItem, notesItem), "msg")
	require.NoError(t, err)
	assert.Len(t, fake.commits, 1)

	assert.Equal(t, []ItemReport{
		{Item: "settings", Outcome: Updated, Status: diff.BothModified},
		{Item: "notes", Outcome: Skipped, Status: diff.RemoteOnly,
			Warning: "local copy doesn't exist"},
	}, report.Items)
	assert.Equal(t, "notes", readFile(t, fs, filepath.Join(workTree, notesItem.RepoPath)))
}

func TestPushFailureNotRecorded(t *testing.T) {
	_, fake, o := setup(t,
		map[string]string{notesItem.TargetPath: "new"},
		map[string]string{notesItem.RepoPath: "old"})
	fake.pushErr = errors.RepoError{Op: "push", Err: errors.New("rejected")}

	cfg := testConfig(3, notesItem)
	_, err := o.Push(context.Background(), cfg, "msg")
	assert.Equal(t, fake.pushErr, err)
	assert.Equal(t, Failed, o.State())

	st, err := state.NewStore(o.fs, cfg.StateFile, o.clock).Load()
	require.NoError(t, err)
	assert.Empty(t, st.Items)
}

func TestPullSnapshotFailureTouchesNothing(t *testing.T) {
	memFs, fake, _ := setup(t,
		map[string]string{
			settingsItem.TargetPath:           `{"v": 1}`,
			commandsItem.TargetPath + "/a.md": "a",
		},
		map[string]string{
			settingsItem.RepoPath:           `{"v": 2}`,
			commandsItem.RepoPath + "/a.md": "a2",
		})
	fs := failingFs{Fs: memFs, failOpen: commandsItem.TargetPath + "/a.md"}
	o := New(fake, fs, clockwork.NewFakeClock())

	_, err := o.Pull(context.Background(), testConfig(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.Equal(t, Failed, o.State())

	assert.Empty(t, listFiles(t, memFs, backupDir))
	assert.Equal(t, `{"v": 1}`, readFile(t, memFs, settingsItem.TargetPath))
	assert.Equal(t, "a", readFile(t, memFs, commandsItem.TargetPath+"/a.md"))
}

func TestPullIgnoreFieldInvariance(t *testing.T) {
	tests := []struct {
		name   string
		local  string
		remote string
		exp    string
	}{
		{
			name:   "RemoteHasOtherValues",
			local:  `{"secret": "X", "env": {"KEY": "a", "OTHER": 1}, "v": 1}`,
			remote: `{"secret": "Y", "env": {"KEY": "b", "OTHER": 2}, "v": 2}`,
			exp:    `{"secret": "X", "env": {"KEY": "a", "OTHER": 2}, "v": 2}`,
		},
		{
			name:   "RemoteLacksIgnoredFields",
			local:  `{"secret": "X", "env": {"KEY": "a"}}`,
			remote: `{"v": 3}`,
			exp:    `{"v": 3, "secret": "X", "env": {"KEY": "a"}}`,
		},
		{
			name:   "RemoteEnvIsNotAnObject",
			local:  `{"secret": "X", "env": {"KEY": "a"}}`,
			remote: `{"secret": "Y", "env": "none"}`,
			exp:    `{"secret": "X", "env": "none"}`,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs, _, o := setup(t,
				map[string]string{settingsItem.TargetPath: test.local},
				map[string]string{settingsItem.RepoPath: test.remote})

			_, err := o.Pull(context.Background(), testConfig(3, settingsItem))
			require.NoError(t, err)
			assertJSON(t, test.exp, fs, settingsItem.TargetPath)

			// The repository copy is untouched.
			assert.Equal(t, test.remote, readFile(t, fs, filepath.Join(workTree, settingsItem.RepoPath)))
		})
	}
}

func TestPullDirectoryReplacesTarget(t *testing.T) {
	fs, _, o := setup(t,
		map[string]string{
			commandsItem.TargetPath + "/a.md": "a",
			commandsItem.TargetPath + "/b.md": "b",
		},
		map[string]string{
			commandsItem.RepoPath + "/a.md":     "a2",
			commandsItem.RepoPath + "/sub/c.md": "c",
		})

	report, err := o.Pull(context.Background(), testConfig(3, commandsItem))
	require.NoError(t, err)
	assert.Equal(t, []string{"commands"}, report.Updated())

	assert.Equal(t, []string{"a.md", "sub/c.md"}, listFiles(t, fs, commandsItem.TargetPath))
	assert.Equal(t, "a2", readFile(t, fs, commandsItem.TargetPath+"/a.md"))
}

func TestPullMissingRemoteIsWarning(t *testing.T) {
	fs, _, o := setup(t,
		map[string]string{
			notesItem.TargetPath:    "local notes",
			settingsItem.TargetPath: `{"v": 1}`,
		},
		map[string]string{settingsItem.RepoPath: `{"v": 2}`})

	report, err := o.Pull(context.Background(), testConfig(3, notesItem, settingsItem))
	require.NoError(t, err)

	assert.Equal(t, []string{"notes: repository has no copy"}, report.Warnings())
	assert.Equal(t, []string{"settings"}, report.Updated())
	assert.Equal(t, "local notes", readFile(t, fs, notesItem.TargetPath))
	assertJSON(t, `{"v": 2}`, fs, settingsItem.TargetPath)
}

func TestOverwriteWarnings(t *testing.T) {
	tests := []struct {
		name       string
		local      string
		remote     string
		expStatus  diff.Status
		expWarning string
	}{
		{name: "PullBothModified", local: "local edit", remote: "remote edit",
			expStatus: diff.BothModified, expWarning: "local changes were overwritten"},
		{name: "PullLocalModified", local: "local edit", remote: "synced",
			expStatus: diff.LocalModified, expWarning: "local changes were overwritten"},
		{name: "PullRemoteModified", local: "synced", remote: "remote edit",
			expStatus: diff.RemoteModified},
		{name: "PushBothModified", local: "local edit", remote: "remote edit",
			expStatus: diff.BothModified, expWarning: "repository changes were overwritten"},
		{name: "PushRemoteModified", local: "synced", remote: "remote edit",
			expStatus: diff.RemoteModified, expWarning: "repository changes were overwritten"},
		{name: "PushLocalModified", local: "local edit", remote: "synced",
			expStatus: diff.LocalModified},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs, _, o := setup(t,
				map[string]string{notesItem.TargetPath: "synced"},
				map[string]string{notesItem.RepoPath: "synced"})
			cfg := testConfig(3, notesItem)
			ctx := context.Background()

			// Pulling identical copies records the baseline.
			_, err := o.Pull(ctx, cfg)
			require.NoError(t, err)

			require.NoError(t, afero.WriteFile(fs, notesItem.TargetPath, []byte(test.local), 0644))
			require.NoError(t, afero.WriteFile(fs, filepath.Join(workTree, notesItem.RepoPath),
				[]byte(test.remote), 0644))

			var report Report
			if strings.HasPrefix(test.name, "Pull") {
				pullReport, err := o.Pull(ctx, cfg)
				require.NoError(t, err)
				report = pullReport.Report
			} else {
				pushReport, err := o.Push(ctx, cfg, "msg")
				require.NoError(t, err)
				report = pushReport.Report
			}

			assert.Equal(t, []ItemReport{{Item: "notes", Outcome: Updated,
				Status: test.expStatus, Warning: test.expWarning}}, report.Items)
		})
	}
}

func TestPullKeepsTargetMode(t *testing.T) {
	fs, _, o := setup(t,
		map[string]string{notesItem.TargetPath: "local"},
		map[string]string{notesItem.RepoPath: "remote"})
	require.NoError(t, fs.Chmod(notesItem.TargetPath, 0600))

	_, err := o.Pull(context.Background(), testConfig(3, notesItem))
	require.NoError(t, err)

	assert.Equal(t, "remote", readFile(t, fs, notesItem.TargetPath))
	fi, err := fs.Stat(notesItem.TargetPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
}

func TestPullCreatesMissingTargets(t *testing.T) {
	fs, _, o := setup(t, nil, map[string]string{notesItem.RepoPath: "notes"})

	report, err := o.Pull(context.Background(), testConfig(3, notesItem))
	require.NoError(t, err)

	// There was nothing to back up.
	assert.Nil(t, report.Snapshot)
	assert.Equal(t, "notes", readFile(t, fs, notesItem.TargetPath))
}

func TestPullRotatesBackups(t *testing.T) {
	fs, _, o := setup(t,
		map[string]string{notesItem.TargetPath: "local"},
		map[string]string{notesItem.RepoPath: "remote"})
	cfg := testConfig(2, notesItem)

	for i := 0; i < 4; i++ {
		_, err := o.Pull(context.Background(), cfg)
		require.NoError(t, err)
	}

	ids, err := backup.NewManager(fs, clockwork.NewFakeClock(), backupDir).IDs()
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestInit(t *testing.T) {
	fs, fake, o := setup(t,
		map[string]string{
			settingsItem.TargetPath:               `{"secret": "X", "v": 1}`,
			commandsItem.TargetPath + "/a.md":     "a",
			commandsItem.TargetPath + "/sub/b.md": "b",
		}, nil)
	cfg := testConfig(3)

	report, err := o.Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"settings", "commands"}, report.Updated())
	assert.Equal(t, []string{"notes: local copy doesn't exist"}, report.Warnings())
	assert.Equal(t, []string{InitMessage}, fake.commits)
	assert.Equal(t, 1, fake.pushes)

	assertJSON(t, `{"v": 1}`, fs, filepath.Join(workTree, settingsItem.RepoPath))
	assert.Equal(t, []string{"a.md", "sub/b.md"},
		listFiles(t, fs, filepath.Join(workTree, commandsItem.RepoPath)))

	results, err := o.Status(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, diff.Identical, results[0].Status)
	assert.Equal(t, diff.Identical, results[1].Status)
	assert.Equal(t, diff.MissingBoth, results[2].Status)
}

func TestInitAbortsOnCopyFailure(t *testing.T) {
	memFs, fake, _ := setup(t,
		map[string]string{
			settingsItem.TargetPath:           `{"v": 1}`,
			commandsItem.TargetPath + "/a.md": "a",
			notesItem.TargetPath:              "notes",
		}, nil)
	fs := failingFs{Fs: memFs, failOpen: commandsItem.TargetPath + "/a.md"}
	o := New(fake, fs, clockwork.NewFakeClock())

	_, err := o.Init(context.Background(), testConfig(3))
	require.Error(t, err)

	var ioErr errors.IOError
	assert.True(t, errors.As(err, &ioErr))
	assert.Empty(t, fake.commits)
	assert.Zero(t, fake.pushes)

	// Items after the failure aren't copied.
	assertMissing(t, memFs, filepath.Join(workTree, notesItem.RepoPath))
}

func TestStatus(t *testing.T) {
	local := map[string]string{
		settingsItem.TargetPath:               `{"secret": "X", "v": 1}`,
		commandsItem.TargetPath + "/a.md":     "a",
		commandsItem.TargetPath + "/local.md": "local",
	}
	remote := map[string]string{
		settingsItem.RepoPath:                `{"secret": "Y", "v": 1}`,
		commandsItem.RepoPath + "/a.md":      "a",
		commandsItem.RepoPath + "/remote.md": "remote",
		notesItem.RepoPath:                   "notes",
	}
	fs, _, o := setup(t, local, remote)

	results, err := o.Status(context.Background(), testConfig(3))
	require.NoError(t, err)
	assert.Equal(t, []diff.Result{
		{Item: "settings", Status: diff.Identical},
		{Item: "commands", Status: diff.BothModified, Entries: []diff.Entry{
			{Path: "a.md", Status: diff.Identical},
			{Path: "local.md", Status: diff.LocalOnly},
			{Path: "remote.md", Status: diff.RemoteOnly},
		}},
		{Item: "notes", Status: diff.RemoteOnly},
	}, results)

	// Nothing was written.
	for path, contents := range local {
		assert.Equal(t, contents, readFile(t, fs, path))
	}
	assertMissing(t, fs, backupDir)
	assertMissing(t, fs, "/state/cacs/state.json")
}

func TestStatusAttributesChanges(t *testing.T) {
	fs, _, o := setup(t,
		map[string]string{notesItem.TargetPath: "v1"},
		map[string]string{notesItem.RepoPath: "v1"})
	cfg := testConfig(3, notesItem)

	// Pulling records the baseline.
	_, err := o.Pull(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, notesItem.TargetPath, []byte("v2"), 0644))
	results, err := o.Status(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, diff.LocalModified, results[0].Status)

	require.NoError(t, afero.WriteFile(fs, notesItem.TargetPath, []byte("v1"), 0644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(workTree, notesItem.RepoPath), []byte("v3"), 0644))
	results, err = o.Status(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, diff.RemoteModified, results[0].Status)
}

func TestCorruptStateIsIgnored(t *testing.T) {
	fs, _, o := setup(t,
		map[string]string{notesItem.TargetPath: "local"},
		map[string]string{notesItem.RepoPath: "remote"})
	require.NoError(t, afero.WriteFile(fs, "/state/cacs/state.json", []byte("{nope"), 0644))

	results, err := o.Status(context.Background(), testConfig(3, notesItem))
	require.NoError(t, err)
	assert.Equal(t, diff.BothModified, results[0].Status)
}

func TestLoadFailure(t *testing.T) {
	fs, fake, o := setup(t,
		map[string]string{notesItem.TargetPath: "local"},
		map[string]string{notesItem.RepoPath: "remote"})
	fake.cloneErr = errors.RepoError{Op: "clone", Err: errors.New("permission denied")}

	_, err := o.Pull(context.Background(), testConfig(3, notesItem))
	assert.Equal(t, fake.cloneErr, err)
	assert.Equal(t, Failed, o.State())
	assert.Equal(t, "local", readFile(t, fs, notesItem.TargetPath))
	assertMissing(t, fs, backupDir)
}

func TestBackup(t *testing.T) {
	fs, _, o := setup(t, map[string]string{notesItem.TargetPath: "notes"}, nil)

	snap, err := o.Backup(context.Background(), testConfig(3))
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, backup.Manual, snap.Trigger)
	assert.Equal(t, "notes", readFile(t, fs, filepath.Join(snap.Path, "items", "notes")))

	// Nothing to back up.
	_, _, o = setup(t, nil, nil)
	snap, err = o.Backup(context.Background(), testConfig(3))
	assert.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRestoreTakesSafetySnapshot(t *testing.T) {
	fs, _, o := setup(t, map[string]string{
		notesItem.TargetPath:              "original",
		commandsItem.TargetPath + "/a.md": "a",
	}, nil)

	// Rotation keeps a single snapshot, so the safety snapshot would evict
	// the one being restored if it rotated first.
	cfg := testConfig(1, notesItem, commandsItem)
	snap, err := o.Backup(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, notesItem.TargetPath, []byte("changed"), 0644))
	require.NoError(t, afero.WriteFile(fs, commandsItem.TargetPath+"/new.md", []byte("new"), 0644))

	report, err := o.Restore(context.Background(), cfg, snap.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, Done, o.State())
	assert.Equal(t, []string{"notes", "commands"}, report.Restored)

	assert.Equal(t, "original", readFile(t, fs, notesItem.TargetPath))
	assert.Equal(t, []string{"a.md"}, listFiles(t, fs, commandsItem.TargetPath))

	// The safety snapshot has the state from before the restore.
	require.NotNil(t, report.SafetySnapshot)
	assert.Equal(t, "changed", readFile(t, fs,
		filepath.Join(report.SafetySnapshot.Path, "items", "notes")))

	ids, err := backup.NewManager(fs, clockwork.NewFakeClock(), backupDir).IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{report.SafetySnapshot.ID}, ids)
}

func TestRestoreSelector(t *testing.T) {
	fs, _, o := setup(t, map[string]string{notesItem.TargetPath: "original"}, nil)
	cfg := testConfig(5, notesItem)

	snap, err := o.Backup(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, notesItem.TargetPath, []byte("changed"), 0644))

	var offered []string
	selectFirst := func(snapshots []backup.Snapshot) (string, error) {
		for _, s := range snapshots {
			offered = append(offered, s.ID)
		}
		return snapshots[0].ID, nil
	}

	report, err := o.Restore(context.Background(), cfg, "", selectFirst)
	require.NoError(t, err)
	assert.Equal(t, []string{snap.ID}, offered)
	assert.Equal(t, snap.ID, report.ID)
	assert.Equal(t, "original", readFile(t, fs, notesItem.TargetPath))
}

func TestRestoreErrors(t *testing.T) {
	fs, _, o := setup(t, map[string]string{notesItem.TargetPath: "notes"}, nil)
	cfg := testConfig(3, notesItem)

	_, err := o.Restore(context.Background(), cfg, "", nil)
	assert.Contains(t, errors.GetPrintableMessage(err), "There are no backup snapshots")

	_, err = o.Restore(context.Background(), cfg, "nope", nil)
	assert.Equal(t, errors.SnapshotNotFound{ID: "nope"}, err)
	assert.Equal(t, Failed, o.State())

	// No safety snapshot is taken for a bad ID.
	assertMissing(t, fs, backupDir)
}
