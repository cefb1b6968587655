package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/danieljhkim/nazupdate/internal/inventory"
	"github.com/danieljhkim/nazupdate/internal/prereq"
	"github.com/danieljhkim/nazupdate/internal/versionlog"
)

// Run performs one update attempt. ctx cancels the attempt only up to the
// start of the snapshot; from then on the attempt runs to completion or
// failure so the working tree is never abandoned half-replaced.
//
// On failure the returned error is a *PhaseError and the Result records
// the recovery taken.
func (u *Updater) Run(ctx context.Context) (*Result, error) {
	now := u.clock.Now()
	res := &Result{Attempt: Attempt{
		ID:        uuid.NewString(),
		StartedAt: now,
		Paths:     u.cfg.Paths(now),
		State:     StateInit,
	}}
	a := &res.Attempt
	log := u.logger.With("attempt", a.ID)
	log.Info("update started", "root", a.Paths.Root, "repo", u.cfg.RepoURL)

	u.notify.Step("Checking requirements")
	found, err := prereq.Check(ctx, u.runner, a.Paths.Root,
		prereq.Git(u.cfg.GitBinary),
		prereq.PackageManager(u.cfg.PackageManager()),
	)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return u.fail(res, phaseErr(StateInit, ErrCancelled, cerr))
		}
		var missing *prereq.MissingError
		if errors.As(err, &missing) {
			for _, hint := range missing.Hints() {
				u.notify.Info(hint)
			}
		}
		return u.fail(res, phaseErr(StateInit, ErrPrereqMissing, err))
	}
	for _, f := range found {
		u.notify.Detail(f.Version)
	}

	fl, err := lockRoot(a.Paths.Lock)
	if err != nil {
		return u.fail(res, phaseErr(StateInit, ErrLocked, err))
	}
	a.locked = true
	defer func() {
		if err := fl.Unlock(); err != nil {
			log.Warn("failed to release lock", "error", err)
			return
		}
		_ = os.Remove(fl.Path())
	}()

	if err := u.gate.Confirm(ctx, a.Paths); err != nil {
		return u.fail(res, phaseErr(StateInit, ErrCancelled, err))
	}

	if err := u.checkSpace(ctx, a.Paths.Root); err != nil {
		return u.fail(res, phaseErr(StateInit, ErrBackup, err))
	}

	if err := ctx.Err(); err != nil {
		return u.fail(res, phaseErr(StateInit, ErrCancelled, err))
	}
	work := context.WithoutCancel(ctx)

	u.notify.Step("Creating backup")
	snap, err := u.snapshots.Create(a.Paths.Root, a.Paths.Backup, now)
	if err != nil {
		return u.fail(res, phaseErr(StateInit, ErrBackup, err))
	}
	a.BackupCreated = true
	a.advance(StateBackedUp)
	log.Info("backup created", "path", snap.Root, "copied", snap.Copied, "skipped", snap.Skipped)
	u.notify.Success(fmt.Sprintf("Backup created at %s", snap.Root))

	u.notify.Step("Downloading latest version")
	co, err := u.fetcher.Fetch(work, a.Paths.Staging)
	if err != nil {
		return u.fail(res, phaseErr(StateBackedUp, ErrFetch, err))
	}
	res.Checkout = co
	a.DownloadSuccessful = true
	a.advance(StateDownloaded)
	log.Info("download complete", "commit", co.Commit)
	u.notify.Success(fmt.Sprintf("Downloaded version %s", co.ShortCommit()))

	before := u.checker.Check(a.Paths.Root)
	log.Info("dependency check", "verdict", before.Verdict, "package", before.Package)
	u.notify.Detail(fmt.Sprintf("Dependencies: %s", before))
	res.Deps = before

	u.notify.Step("Cleaning old files")
	res.Removed, err = u.replacer.Clean(a.Paths.Root, before.NeedsInstall())
	if err != nil {
		return u.fail(res, phaseErr(StateDownloaded, ErrClean, err))
	}
	a.advance(StateCleaned)

	u.notify.Step("Applying update")
	plan, err := u.replacer.PlanOverlay(a.Paths.Staging, a.Paths.Root)
	if err != nil {
		return u.fail(res, phaseErr(StateCleaned, ErrApply, err))
	}
	a.OverlayStarted = true
	if err := u.replacer.Apply(plan, a.Paths.Staging); err != nil {
		return u.fail(res, phaseErr(StateCleaned, ErrApply, err))
	}
	manifest := filepath.Join(a.Paths.Root, filepath.FromSlash(u.inv.Manifest))
	if ok, err := u.fs.Exists(manifest); err != nil || !ok {
		return u.fail(res, phaseErr(StateCleaned, ErrApply, fmt.Errorf("%w: %s", ErrManifestMissing, u.inv.Manifest)))
	}
	a.UpdateApplied = true
	a.advance(StateApplied)
	u.notify.Success("New version applied")

	u.notify.Step("Restoring preserved data")
	res.Restored, err = u.snapshots.Restore(a.Paths.Backup, a.Paths.Root)
	if err != nil {
		return u.fail(res, phaseErr(StateApplied, ErrRestore, err))
	}
	a.advance(StateRestored)
	u.notify.Success(fmt.Sprintf("Restored %d preserved paths", len(res.Restored)))

	u.notify.Step("Checking dependencies")
	// The verdict from before the clean is reused: the restored manifest is
	// the same pre-update one, so upstream additions are not seen.
	res.Installed, err = u.installer.Install(work, a.Paths.Root, before)
	if err != nil {
		return u.fail(res, phaseErr(StateRestored, ErrInstall, err))
	}
	a.advance(StateDepsResolved)
	if res.Installed {
		u.notify.Success("Dependencies installed")
	}

	u.finish(work, res)
	a.advance(StateDone)
	log.Info("update finished", "commit", co.Commit, "installed", res.Installed)
	return res, nil
}

// finish removes the attempt's temporary trees and records the version.
// Nothing here can fail the attempt.
func (u *Updater) finish(ctx context.Context, res *Result) {
	p := res.Attempt.Paths
	if err := u.fs.RemoveAll(p.Staging); err != nil {
		u.notify.Warn(fmt.Sprintf("Could not remove %s: %v", p.Staging, err))
	}
	if err := u.fs.RemoveAll(p.Backup); err != nil {
		u.notify.Warn(fmt.Sprintf("Could not remove backup %s: %v", p.Backup, err))
	}

	if u.versions != nil {
		if err := u.recordVersion(ctx, res); err != nil {
			u.logger.Warn("version log not updated", "error", err)
			u.notify.Warn(err.Error())
		}
	}

	u.notify.Success("Update completed successfully")
	u.notify.Info("New upstream dependencies are not installed automatically. " +
		fmt.Sprintf("If the bot reports a missing module, run: %s", u.installer.CommandLine()))
}

func (u *Updater) recordVersion(ctx context.Context, res *Result) error {
	total, err := u.versions.FetchTotal(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMetadata, err)
	}
	path := filepath.Join(res.Attempt.Paths.Root, filepath.FromSlash(inventory.VersionLog))
	if err := versionlog.Write(u.fs, path, total); err != nil {
		return fmt.Errorf("%w: %w", ErrMetadata, err)
	}
	res.Total = total
	return nil
}
