package integration

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/nazupdate/internal/clock"
	"github.com/danieljhkim/nazupdate/internal/config"
	"github.com/danieljhkim/nazupdate/internal/deps"
	"github.com/danieljhkim/nazupdate/internal/engine"
	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/hash"
	"github.com/danieljhkim/nazupdate/internal/httpx"
	"github.com/danieljhkim/nazupdate/internal/inventory"
	"github.com/danieljhkim/nazupdate/internal/notify"
	"github.com/danieljhkim/nazupdate/internal/persist"
	"github.com/danieljhkim/nazupdate/internal/progress"
	"github.com/danieljhkim/nazupdate/internal/remote"
	"github.com/danieljhkim/nazupdate/internal/replace"
	"github.com/danieljhkim/nazupdate/internal/runner"
)

func put(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func read(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found on PATH")
	}
}

// initUpstream commits files to a fresh repository and returns its path and
// the commit hash.
func initUpstream(t *testing.T, files map[string]string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for rel, content := range files {
		put(t, dir, rel, content)
		_, err := wt.Add(rel)
		require.NoError(t, err)
	}

	commit, err := wt.Commit("release", &git.CommitOptions{
		Author: &object.Signature{Name: "Nazuna", Email: "nazuna@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, commit.String()
}

// npmRunner runs git for real and simulates the package manager.
type npmRunner struct {
	git  *runner.ExecRunner
	fake *runner.FakeRunner
}

func newNPMRunner(install func(dir string) error) *npmRunner {
	fake := runner.NewFakeRunner()
	fake.Handle = func(_ context.Context, call runner.Call) (string, error) {
		if len(call.Args) == 1 && call.Args[0] == "--version" {
			return "10.0.0", nil
		}
		return "", install(call.Dir)
	}
	return &npmRunner{git: runner.NewExecRunner(), fake: fake}
}

func (r *npmRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	if name == "git" {
		return r.git.Run(ctx, dir, name, args...)
	}
	return r.fake.Run(ctx, dir, name, args...)
}

type testBot struct {
	root   string
	cfg    *config.Config
	inv    inventory.Inventory
	fs     *fsops.FaultFS
	runner *npmRunner
	rec    *notify.Recorder
	clock  *clock.FakeClock
}

func newTestBot(t *testing.T, repoURL string, install func(dir string) error) *testBot {
	t.Helper()
	b := &testBot{
		root:  t.TempDir(),
		inv:   inventory.Default(inventory.DefaultMarkers),
		fs:    fsops.NewFaultFS(fsops.NewRealFS()),
		rec:   notify.NewRecorder(),
		clock: clock.NewFakeClock(time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)),
	}
	b.runner = newNPMRunner(install)
	b.cfg = &config.Config{
		Root:           b.root,
		RepoURL:        repoURL,
		StagingDir:     config.DefaultStagingDir,
		BackupPrefix:   config.DefaultBackupPrefix,
		LockFile:       config.DefaultLockFile,
		GitBinary:      "git",
		InstallCommand: config.DefaultInstallCommand,
		MinFreeBytes:   1 << 20,
		Markers:        inventory.DefaultMarkers,
	}
	return b
}

func (b *testBot) updater() *engine.Updater {
	fetcher := remote.NewGitFetcher(b.runner, b.fs, httpx.New("test"), progress.Disabled(), b.rec,
		b.cfg.GitBinary, b.cfg.RepoURL, b.inv.StagingDiscard)

	return engine.New(b.cfg, b.inv, engine.Components{
		FS:        b.fs,
		Clock:     b.clock,
		Runner:    b.runner,
		Snapshots: persist.NewSnapshotManager(b.fs, hash.NewSHA256Hasher(), b.inv, config.BackupGlob(b.cfg.BackupPrefix), b.rec),
		Fetcher:   fetcher,
		Checker:   deps.NewChecker(b.fs, b.inv.Manifest, b.inv.InstallDir),
		Installer: deps.NewInstaller(b.runner, b.fs, progress.Disabled(), b.rec, b.cfg.InstallCommand, b.inv.InstallDir),
		Replacer:  replace.NewReplacer(b.fs, b.inv, b.rec),
		Notify:    b.rec,
		DiskFree:  func(context.Context, string) (uint64, error) { return 1 << 40, nil },
	})
}

func fileURL(dir string) string {
	return "file://" + filepath.ToSlash(dir)
}
