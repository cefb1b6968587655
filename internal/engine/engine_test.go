package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/nazupdate/internal/clock"
	"github.com/danieljhkim/nazupdate/internal/config"
	"github.com/danieljhkim/nazupdate/internal/deps"
	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/gitx"
	"github.com/danieljhkim/nazupdate/internal/hash"
	"github.com/danieljhkim/nazupdate/internal/inventory"
	"github.com/danieljhkim/nazupdate/internal/notify"
	"github.com/danieljhkim/nazupdate/internal/persist"
	"github.com/danieljhkim/nazupdate/internal/remote"
	"github.com/danieljhkim/nazupdate/internal/replace"
	"github.com/danieljhkim/nazupdate/internal/runner"
	"github.com/danieljhkim/nazupdate/internal/versionlog"
)

var testStart = time.Date(2025, 3, 9, 14, 5, 7, 0, time.UTC)

const (
	oldManifest = `{"name":"nazuna","dependencies":{"bar":"1.0.0"}}`
	newManifest = `{"name":"nazuna","dependencies":{"bar":"1.0.0","baz":"2.0.0"}}`
)

type harness struct {
	root     string
	upstream string
	fs       *fsops.FaultFS
	runner   *runner.FakeRunner
	fetcher  *remote.FakeFetcher
	rec      *notify.Recorder
	clock    *clock.FakeClock
	cfg      *config.Config
	inv      inventory.Inventory

	gate     Gate
	diskFree DiskFreeFunc
	versions *versionlog.Client
	fetch    remote.Fetcher
}

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

// newHarness builds an installed bot with customised state and an upstream
// release that changes code and adds a dependency.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		root:     t.TempDir(),
		upstream: t.TempDir(),
		rec:      notify.NewRecorder(),
		clock:    clock.NewFakeClock(testStart),
		inv:      inventory.Default(inventory.DefaultMarkers),
	}
	h.fs = fsops.NewFaultFS(fsops.NewRealFS())
	h.fetcher = remote.NewFakeFetcher(h.fs, h.upstream)

	put(t, h.root, ".git/HEAD", "ref: refs/heads/main")
	put(t, h.root, "README.md", "# old readme")
	put(t, h.root, "package.json", oldManifest)
	put(t, h.root, "package-lock.json", "{}")
	put(t, h.root, "node_modules/bar/index.js", "bar")
	put(t, h.root, "dados/database/grupos/123.json", `{"antilink":true}`)
	put(t, h.root, "dados/midias/logo.png", "png")
	put(t, h.root, "dados/src/config.json", `{"prefixo":"#","nomedono":"Ana"}`)
	put(t, h.root, "dados/src/.scripts/update.js", inventory.DefaultMarkers.Update+"\nmine()")
	put(t, h.root, "dados/src/index.js", inventory.DefaultMarkers.Index+"\nmyIndex()")
	put(t, h.root, "dados/src/commands/ping.js", "old ping")

	put(t, h.upstream, "package.json", newManifest)
	put(t, h.upstream, "dados/src/config.json", `{"prefixo":"!"}`)
	put(t, h.upstream, "dados/src/index.js", "upstreamIndex()")
	put(t, h.upstream, "dados/src/.scripts/update.js", "upstreamUpdate()")
	put(t, h.upstream, "dados/src/commands/ping.js", "new ping")
	put(t, h.upstream, "dados/src/commands/menu.js", "menu")

	h.runner = runner.NewFakeRunner()
	h.runner.Handle = func(_ context.Context, call runner.Call) (string, error) {
		if len(call.Args) == 1 && call.Args[0] == "--version" {
			return call.Name + " 1.0.0", nil
		}
		if call.Name == "npm" {
			return "", os.MkdirAll(filepath.Join(call.Dir, "node_modules", "baz"), 0755)
		}
		return "", nil
	}

	h.cfg = &config.Config{
		Root:           h.root,
		RepoURL:        "file:///upstream/nazuna.git",
		StagingDir:     config.DefaultStagingDir,
		BackupPrefix:   config.DefaultBackupPrefix,
		LockFile:       config.DefaultLockFile,
		GitBinary:      "git",
		InstallCommand: config.DefaultInstallCommand,
		MinFreeBytes:   1 << 20,
		Markers:        inventory.DefaultMarkers,
	}
	h.diskFree = func(context.Context, string) (uint64, error) { return 1 << 40, nil }
	return h
}

func (h *harness) updater() *Updater {
	fetch := h.fetch
	if fetch == nil {
		fetch = h.fetcher
	}
	return New(h.cfg, h.inv, Components{
		FS:        h.fs,
		Clock:     h.clock,
		Runner:    h.runner,
		Snapshots: persist.NewSnapshotManager(h.fs, hash.NewSHA256Hasher(), h.inv, config.BackupGlob(h.cfg.BackupPrefix), h.rec),
		Fetcher:   fetch,
		Checker:   deps.NewChecker(h.fs, h.inv.Manifest, h.inv.InstallDir),
		Installer: deps.NewInstaller(h.runner, h.fs, nil, h.rec, h.cfg.InstallCommand, h.inv.InstallDir),
		Replacer:  replace.NewReplacer(h.fs, h.inv, h.rec),
		Versions:  h.versions,
		Notify:    h.rec,
		Gate:      h.gate,
		DiskFree:  h.diskFree,
	})
}

func (h *harness) run(t *testing.T) (*Result, error) {
	t.Helper()
	return h.updater().Run(context.Background())
}

func (h *harness) backupPath() string {
	return filepath.Join(h.root, config.BackupName(h.cfg.BackupPrefix, h.clock.Now()))
}

func (h *harness) backups(t *testing.T) []string {
	t.Helper()
	infos, err := h.updater().Backups()
	require.NoError(t, err)
	var names []string
	for _, i := range infos {
		names = append(names, i.Name)
	}
	return names
}

// treeDigest hashes every top-level entry of root except snapshots and the
// lock file.
func treeDigest(t *testing.T, root string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	hasher := hash.NewSHA256Hasher()
	out := map[string]string{}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), config.DefaultBackupPrefix) || e.Name() == config.DefaultLockFile {
			continue
		}
		sum, err := hasher.HashTree(filepath.Join(root, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = sum
	}
	return out
}

func requireKind(t *testing.T, err, kind error) *PhaseError {
	t.Helper()
	require.Error(t, err)
	var perr *PhaseError
	require.True(t, errors.As(err, &perr), "want *PhaseError, got %T: %v", err, err)
	require.ErrorIs(t, err, kind)
	return perr
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t)
	res, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.Attempt.State)
	assert.True(t, res.Attempt.BackupCreated)
	assert.True(t, res.Attempt.UpdateApplied)
	assert.NotEmpty(t, res.Attempt.ID)

	// New code arrived.
	assert.Equal(t, "new ping", read(t, h.root, "dados/src/commands/ping.js"))
	assert.Equal(t, "menu", read(t, h.root, "dados/src/commands/menu.js"))

	// Preserved state won over upstream.
	assert.Equal(t, `{"prefixo":"#","nomedono":"Ana"}`, read(t, h.root, "dados/src/config.json"))
	assert.Contains(t, read(t, h.root, "dados/src/index.js"), "myIndex()")
	assert.Contains(t, read(t, h.root, "dados/src/.scripts/update.js"), "mine()")
	assert.Equal(t, `{"antilink":true}`, read(t, h.root, "dados/database/grupos/123.json"))
	assert.Equal(t, "png", read(t, h.root, "dados/midias/logo.png"))

	// Artifacts were cleaned and temporary trees removed.
	assert.NoDirExists(t, filepath.Join(h.root, ".git"))
	assert.NoFileExists(t, filepath.Join(h.root, "README.md"))
	assert.NoDirExists(t, filepath.Join(h.root, h.cfg.StagingDir))
	assert.Empty(t, h.backups(t))
	assert.NoFileExists(t, filepath.Join(h.root, h.cfg.LockFile))

	assert.Contains(t, strings.Join(h.rec.Texts(notify.LevelInfo), "\n"), "npm run config:install")
}

func TestRun_OldManifestWins(t *testing.T) {
	h := newHarness(t)
	res, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, deps.VerdictUpToDate, res.Deps.Verdict, "verdict comes from the installed manifest")
	assert.False(t, res.Installed)
	assert.Empty(t, h.runner.CallsTo("npm")[1:], "only the prerequisite probe ran npm")
	assert.Equal(t, oldManifest, read(t, h.root, "package.json"))
	assert.DirExists(t, filepath.Join(h.root, "node_modules", "bar"))
	assert.NoDirExists(t, filepath.Join(h.root, "node_modules", "baz"), "new upstream dependency is not installed")
}

func TestRun_InstallsWhenOldDependencyMissing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.RemoveAll(filepath.Join(h.root, "node_modules", "bar")))

	res, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, deps.VerdictDependencyMissing, res.Deps.Verdict)
	assert.Equal(t, "bar", res.Deps.Package)
	assert.True(t, res.Installed)
	assert.Contains(t, strings.Join(h.rec.Texts(notify.LevelDetail), "\n"), "dependency bar is not installed")
	assert.NoFileExists(t, filepath.Join(h.root, "package-lock.json"), "force clean removed the lock file")

	var installs []string
	for _, c := range h.runner.CallsTo("npm") {
		if c.Args[0] != "--version" {
			installs = append(installs, c.Line())
			assert.Equal(t, h.root, c.Dir)
		}
	}
	assert.Equal(t, []string{"npm run config:install"}, installs)
}

func TestRun_FetchExit128(t *testing.T) {
	h := newHarness(t)
	before := treeDigest(t, h.root)

	h.runner.Handle = func(_ context.Context, call runner.Call) (string, error) {
		if call.Args[0] == "clone" {
			return "", &runner.ExitError{Command: call.Line(), Code: 128, Stderr: "fatal: unable to access"}
		}
		return "1.0.0", nil
	}
	h.fetch = remote.NewGitFetcher(h.runner, h.fs, nil, nil, h.rec, "git", h.cfg.RepoURL, h.inv.StagingDiscard)

	res, err := h.run(t)
	perr := requireKind(t, err, ErrFetch)
	assert.Equal(t, StateBackedUp, perr.Phase)

	var fe *remote.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 128, fe.Code)

	assert.Equal(t, StateFailed, res.Attempt.State)
	assert.False(t, res.Attempt.DownloadSuccessful)
	assert.Equal(t, RecoveryRestored, res.Recovery)
	assert.Equal(t, before, treeDigest(t, h.root), "working tree unchanged")
	assert.Equal(t, []string{filepath.Base(h.backupPath())}, h.backups(t), "backup kept")
	assert.NoDirExists(t, filepath.Join(h.root, h.cfg.StagingDir))
}

func TestRun_FailureBeforeMutation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		kind  error
	}{
		{
			name:  "fetch fails",
			setup: func(h *harness) { h.fetcher.Err = errors.New("network down") },
			kind:  ErrFetch,
		},
		{
			name: "backup copy fails",
			setup: func(h *harness) {
				h.fs.FailUnder(fsops.OpCopy, filepath.Join(h.root, "dados", "midias"), errors.New("disk full"))
			},
			kind: ErrBackup,
		},
		{
			name:  "not enough disk space",
			setup: func(h *harness) { h.diskFree = func(context.Context, string) (uint64, error) { return 10, nil } },
			kind:  ErrBackup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			before := treeDigest(t, h.root)
			tt.setup(h)

			_, err := h.run(t)
			requireKind(t, err, tt.kind)
			assert.Equal(t, before, treeDigest(t, h.root))
		})
	}
}

func TestRun_NoCrucialState(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.RemoveAll(filepath.Join(h.root, "dados", "database")))
	require.NoError(t, os.Remove(filepath.Join(h.root, "dados", "src", "config.json")))
	before := treeDigest(t, h.root)

	res, err := h.run(t)
	requireKind(t, err, ErrBackup)
	assert.ErrorIs(t, err, persist.ErrNoCrucialState)
	assert.False(t, res.Attempt.BackupCreated)
	assert.Equal(t, RecoveryNone, res.Recovery)
	assert.Empty(t, h.fetcher.Calls, "nothing fetched")
	assert.Equal(t, before, treeDigest(t, h.root))
}

func TestRun_CleanFailureRestoresAutomatically(t *testing.T) {
	h := newHarness(t)
	h.fs.FailUnder(fsops.OpRemoveAll, filepath.Join(h.root, "dados", "src", ".scripts"), errors.New("permission denied"))

	res, err := h.run(t)
	requireKind(t, err, ErrClean)

	assert.False(t, res.Attempt.OverlayStarted)
	assert.Equal(t, RecoveryRestored, res.Recovery)
	assert.Equal(t, `{"prefixo":"#","nomedono":"Ana"}`, read(t, h.root, "dados/src/config.json"), "removed config is back")
	assert.Equal(t, "old ping", read(t, h.root, "dados/src/commands/ping.js"))
	assert.NoDirExists(t, filepath.Join(h.root, h.cfg.StagingDir))
	assert.Len(t, h.backups(t), 1)
}

func TestRun_ApplyFailureNeedsManualRecovery(t *testing.T) {
	h := newHarness(t)
	staging := filepath.Join(h.root, h.cfg.StagingDir)
	h.fs.FailUnder(fsops.OpCopy, filepath.Join(staging, "package.json"), errors.New("disk full"))

	res, err := h.run(t)
	perr := requireKind(t, err, ErrApply)
	assert.Equal(t, StateCleaned, perr.Phase)

	assert.True(t, res.Attempt.OverlayStarted)
	assert.False(t, res.Attempt.UpdateApplied)
	assert.Equal(t, RecoveryManual, res.Recovery)
	assert.Contains(t, strings.Join(res.Instructions, "\n"), h.backupPath())

	assert.Equal(t, `{"prefixo":"!"}`, read(t, h.root, "dados/src/config.json"), "no automatic restore after the overlay started")
	assert.Equal(t, "new ping", read(t, h.root, "dados/src/commands/ping.js"), "partial overlay is left as is")
	assert.DirExists(t, h.backupPath())
	assert.NoDirExists(t, staging)
}

func TestRun_ManifestMissingAfterApply(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.upstream, "package.json")))
	require.NoError(t, os.Remove(filepath.Join(h.root, "package.json")))

	res, err := h.run(t)
	requireKind(t, err, ErrApply)
	assert.ErrorIs(t, err, ErrManifestMissing)
	assert.Equal(t, RecoveryManual, res.Recovery)
	assert.DirExists(t, h.backupPath())
}

func TestRun_InstallFailureKeepsBackup(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.RemoveAll(filepath.Join(h.root, "node_modules")))
	h.runner.Handle = func(_ context.Context, call runner.Call) (string, error) {
		if call.Args[0] == "--version" {
			return "1.0.0", nil
		}
		return "", &runner.ExitError{Command: call.Line(), Code: 1}
	}

	res, err := h.run(t)
	perr := requireKind(t, err, ErrInstall)
	assert.Equal(t, StateRestored, perr.Phase)

	assert.True(t, res.Attempt.UpdateApplied)
	assert.Equal(t, RecoveryManual, res.Recovery)
	assert.Contains(t, strings.Join(res.Instructions, "\n"), "npm run config:install")
	assert.Equal(t, `{"prefixo":"#","nomedono":"Ana"}`, read(t, h.root, "dados/src/config.json"), "state was restored before the install")
	assert.DirExists(t, h.backupPath())
}

func TestRun_NoAccumulation(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Err = errors.New("network down")

	for i := 0; i < 3; i++ {
		_, err := h.run(t)
		requireKind(t, err, ErrFetch)
		assert.Equal(t, []string{filepath.Base(h.backupPath())}, h.backups(t), "run %d", i)
		h.clock.Advance(time.Hour)
	}

	h.fetcher.Err = nil
	_, err := h.run(t)
	require.NoError(t, err)
	assert.Empty(t, h.backups(t))
}

func TestRun_PrereqMissing(t *testing.T) {
	h := newHarness(t)
	h.runner.Handle = func(_ context.Context, call runner.Call) (string, error) {
		if call.Name == "git" {
			return "", errors.New(`exec: "git": executable file not found in $PATH`)
		}
		return "10.0.0", nil
	}
	before := treeDigest(t, h.root)

	res, err := h.run(t)
	requireKind(t, err, ErrPrereqMissing)
	assert.Equal(t, RecoveryNone, res.Recovery)
	assert.NotEmpty(t, h.rec.Texts(notify.LevelInfo), "install hint shown")
	assert.Empty(t, h.backups(t))
	assert.Equal(t, before, treeDigest(t, h.root))
}

func TestRun_PrereqFailureKeepsForeignStaging(t *testing.T) {
	h := newHarness(t)
	put(t, h.root, h.cfg.StagingDir+"/package.json", newManifest)
	h.runner.Handle = func(context.Context, runner.Call) (string, error) {
		return "", errors.New("not found")
	}

	_, err := h.run(t)
	requireKind(t, err, ErrPrereqMissing)
	assert.FileExists(t, filepath.Join(h.root, h.cfg.StagingDir, "package.json"),
		"staging is left alone before the lock is held")
}

func TestRun_InterruptDuringPrereqIsCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.runner.Handle = func(rctx context.Context, call runner.Call) (string, error) {
		cancel()
		return "", rctx.Err()
	}
	before := treeDigest(t, h.root)

	res, err := h.updater().Run(ctx)
	requireKind(t, err, ErrCancelled)
	assert.NotErrorIs(t, err, ErrPrereqMissing)
	assert.Equal(t, RecoveryNone, res.Recovery)
	assert.Empty(t, h.rec.Texts(notify.LevelInfo), "no install hints on interrupt")
	assert.Equal(t, before, treeDigest(t, h.root))
}

func TestRun_CancelledAtGate(t *testing.T) {
	h := newHarness(t)
	h.gate = GateFunc(func(context.Context, config.Paths) error { return context.Canceled })
	before := treeDigest(t, h.root)

	res, err := h.run(t)
	requireKind(t, err, ErrCancelled)
	assert.Equal(t, RecoveryNone, res.Recovery)
	assert.Empty(t, h.backups(t))
	assert.Equal(t, before, treeDigest(t, h.root))
}

type fetchFunc func(ctx context.Context, dest string) (gitx.Checkout, error)

func (f fetchFunc) Fetch(ctx context.Context, dest string) (gitx.Checkout, error) {
	return f(ctx, dest)
}

func TestRun_CancelAfterSnapshotIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.fetch = fetchFunc(func(fctx context.Context, dest string) (gitx.Checkout, error) {
		cancel()
		assert.NoError(t, fctx.Err(), "fetch runs on a detached context")
		return h.fetcher.Fetch(fctx, dest)
	})

	res, err := h.updater().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.Attempt.State)
	assert.Error(t, ctx.Err())
}

func TestRun_CancelledContextBeforeSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.gate = GateFunc(func(context.Context, config.Paths) error {
		cancel()
		return nil
	})

	_, err := h.updater().Run(ctx)
	requireKind(t, err, ErrCancelled)
	assert.Empty(t, h.backups(t))
}

func TestRun_Locked(t *testing.T) {
	h := newHarness(t)
	fl, err := lockRoot(filepath.Join(h.root, h.cfg.LockFile))
	require.NoError(t, err)
	defer func() { _ = fl.Unlock() }()

	staging := filepath.Join(h.root, h.cfg.StagingDir)
	put(t, staging, "package.json", newManifest)

	_, err = h.run(t)
	requireKind(t, err, ErrLocked)
	assert.Empty(t, h.fetcher.Calls)
	assert.DirExists(t, staging, "the lock holder's staging tree is untouched")
}

func TestPhaseError(t *testing.T) {
	cause := errors.New("boom")
	err := error(phaseErr(StateCleaned, ErrApply, cause))

	assert.ErrorIs(t, err, ErrApply)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrFetch)
	assert.Equal(t, "applying update failed: boom", err.Error())
}
