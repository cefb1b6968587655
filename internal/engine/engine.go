// Package engine orchestrates an update of an installed bot.
//
// An update runs as a fixed sequence of phases: snapshot the preserved
// state, fetch the new version into a staging tree, clean the working
// tree, overlay the staging tree, restore the preserved state and
// reinstall dependencies. Every phase reports through a notify.Notifier;
// only the engine decides how to recover when one fails.
//
// Key components:
//   - Updater: runs an attempt and applies the recovery policy
//   - Gate: confirmation step before anything is changed
//   - CheckDeps/Backups/RestoreBackup: read-only and manual operations for the CLI
package engine

import (
	"context"
	"log/slog"

	"github.com/danieljhkim/nazupdate/internal/clock"
	"github.com/danieljhkim/nazupdate/internal/config"
	"github.com/danieljhkim/nazupdate/internal/deps"
	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/inventory"
	"github.com/danieljhkim/nazupdate/internal/notify"
	"github.com/danieljhkim/nazupdate/internal/persist"
	"github.com/danieljhkim/nazupdate/internal/remote"
	"github.com/danieljhkim/nazupdate/internal/replace"
	"github.com/danieljhkim/nazupdate/internal/runner"
	"github.com/danieljhkim/nazupdate/internal/versionlog"
)

// Gate is asked for confirmation once prerequisites pass. Returning an
// error aborts the attempt as cancelled.
type Gate interface {
	Confirm(ctx context.Context, paths config.Paths) error
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, paths config.Paths) error

func (f GateFunc) Confirm(ctx context.Context, paths config.Paths) error {
	return f(ctx, paths)
}

// AutoConfirm proceeds without asking.
var AutoConfirm Gate = GateFunc(func(context.Context, config.Paths) error { return nil })

// DiskFreeFunc reports the bytes available to the filesystem holding path.
type DiskFreeFunc func(ctx context.Context, path string) (uint64, error)

// Components are the collaborators of an Updater. Zero-valued optional
// fields get defaults in New.
type Components struct {
	FS        fsops.FS
	Clock     clock.Clock
	Runner    runner.Runner
	Snapshots *persist.SnapshotManager
	Fetcher   remote.Fetcher
	Checker   *deps.Checker
	Installer *deps.Installer
	Replacer  *replace.Replacer

	// Versions is optional; without it the version log is not written.
	Versions *versionlog.Client

	Notify   notify.Notifier
	Logger   *slog.Logger
	Gate     Gate
	DiskFree DiskFreeFunc
}

// Updater runs update attempts against one working tree.
type Updater struct {
	cfg       *config.Config
	inv       inventory.Inventory
	fs        fsops.FS
	clock     clock.Clock
	runner    runner.Runner
	snapshots *persist.SnapshotManager
	fetcher   remote.Fetcher
	checker   *deps.Checker
	installer *deps.Installer
	replacer  *replace.Replacer
	versions  *versionlog.Client
	notify    notify.Notifier
	logger    *slog.Logger
	gate      Gate
	diskFree  DiskFreeFunc
}

// New creates an Updater.
func New(cfg *config.Config, inv inventory.Inventory, c Components) *Updater {
	u := &Updater{
		cfg:       cfg,
		inv:       inv,
		fs:        c.FS,
		clock:     c.Clock,
		runner:    c.Runner,
		snapshots: c.Snapshots,
		fetcher:   c.Fetcher,
		checker:   c.Checker,
		installer: c.Installer,
		replacer:  c.Replacer,
		versions:  c.Versions,
		notify:    c.Notify,
		logger:    c.Logger,
		gate:      c.Gate,
		diskFree:  c.DiskFree,
	}
	if u.clock == nil {
		u.clock = &clock.RealClock{}
	}
	if u.notify == nil {
		u.notify = notify.Discard
	}
	if u.logger == nil {
		u.logger = slog.New(slog.DiscardHandler)
	}
	if u.gate == nil {
		u.gate = AutoConfirm
	}
	if u.diskFree == nil {
		u.diskFree = DiskFree
	}
	return u
}
