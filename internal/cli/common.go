package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

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
	"github.com/danieljhkim/nazupdate/internal/versionlog"
)

// newLogger returns a tint logger on stderr. Logs are for diagnosis; the
// user-facing narrative goes through the printers.
func newLogger(w *os.File, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(w.Fd()),
	}))
}

// loadConfig resolves the working root from --dir and reads settings.
func loadConfig() (*config.Config, error) {
	root := workDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		root = cwd
	}
	return config.Load(root, configFile)
}

// newUpdater creates an updater with real implementations of all dependencies.
// gateFor may be nil for commands that never run an update.
func newUpdater(n notify.Notifier, gateFor func(*config.Config) engine.Gate) (*engine.Updater, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	inv := inventory.Default(cfg.Markers)
	if err := inv.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid inventory: %w", err)
	}

	logger := newLogger(os.Stderr, verbose)
	slog.SetDefault(logger)
	logger.Debug("config loaded", "root", cfg.Root, "source", cfg.Source)

	var gate engine.Gate
	if gateFor != nil {
		gate = gateFor(cfg)
	}

	fs := fsops.NewRealFS()
	run := runner.NewExecRunner()
	spinner := progress.New(os.Stdout)
	if jsonOutput {
		spinner = progress.Disabled()
	}
	http := httpx.New(appVersion)

	upd := engine.New(cfg, inv, engine.Components{
		FS:        fs,
		Clock:     &clock.RealClock{},
		Runner:    run,
		Snapshots: persist.NewSnapshotManager(fs, hash.NewSHA256Hasher(), inv, config.BackupGlob(cfg.BackupPrefix), n),
		Fetcher:   remote.NewGitFetcher(run, fs, http, spinner, n, cfg.GitBinary, cfg.RepoURL, inv.StagingDiscard),
		Checker:   deps.NewChecker(fs, inv.Manifest, inv.InstallDir),
		Installer: deps.NewInstaller(run, fs, spinner, n, cfg.InstallCommand, inv.InstallDir),
		Replacer:  replace.NewReplacer(fs, inv, n),
		Versions:  versionlog.NewClient(http, cfg.CommitsAPIURL),
		Notify:    n,
		Logger:    logger,
		Gate:      gate,
	})
	return upd, cfg, nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatError formats an error for display.
func formatError(err error) string {
	return errorColor.Sprintf("Error: %v", err)
}

// ExitCode maps an error returned by Execute to a process exit code.
// Cancelling before anything changed is not a failure.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, engine.ErrCancelled) || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}

// ReportError prints err unless it is a cancellation or a failed update,
// which the update command has already reported.
func ReportError(err error) {
	reportError(os.Stderr, err)
}

func reportError(w io.Writer, err error) {
	if ExitCode(err) == 0 {
		return
	}
	var perr *engine.PhaseError
	if errors.As(err, &perr) {
		return
	}
	_, _ = fmt.Fprintln(w, formatError(err))
}

// newNotifier returns the console notifier, or a silent one when stdout
// carries a JSON document.
func newNotifier() notify.Notifier {
	if jsonOutput {
		return notify.Discard
	}
	return consoleNotifier{verbose: verbose}
}

func joinCommand(args []string) string {
	return strings.Join(args, " ")
}
