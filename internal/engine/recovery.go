package engine

import (
	"errors"
	"fmt"

	"github.com/danieljhkim/nazupdate/internal/remote"
)

// fail runs the recovery policy for a failed attempt and returns perr.
//
// The staging tree is removed once the attempt holds the lock. The snapshot is never removed on
// failure. It is copied back automatically only while the overlay has not
// started; after that the working tree holds a mix of versions and the
// operator decides.
func (u *Updater) fail(res *Result, perr *PhaseError) (*Result, error) {
	a := &res.Attempt
	failedIn := a.State
	a.advance(StateFailed)
	log := u.logger.With("attempt", a.ID)

	if errors.Is(perr, ErrCancelled) {
		log.Info("update cancelled")
		res.Recovery = RecoveryNone
		return res, perr
	}
	log.Error("update failed", "state", failedIn, "kind", perr.Kind, "error", perr.Err)

	var fe *remote.FetchError
	if errors.As(perr, &fe) && fe.Hint != "" {
		u.notify.Info(fe.Hint)
	}

	// Without the lock the staging tree may belong to another updater.
	if a.locked {
		if err := u.fs.RemoveAll(a.Paths.Staging); err != nil {
			u.notify.Warn(fmt.Sprintf("Could not remove %s: %v", a.Paths.Staging, err))
		}
	}

	backup := a.Paths.Backup
	switch {
	case !a.BackupCreated:
		res.Recovery = RecoveryNone
		if errors.Is(perr, ErrBackup) {
			u.notify.Warn("No backup could be created. Nothing was changed.")
		}

	case !a.OverlayStarted:
		u.notify.Step("Restoring backup")
		restored, err := u.snapshots.Restore(backup, a.Paths.Root)
		if err != nil {
			log.Error("automatic restore failed", "error", err)
			res.Recovery = RecoveryManual
			res.Instructions = u.manualRestore(backup)
			u.notify.Warn(fmt.Sprintf("Automatic restore failed: %v", err))
			break
		}
		res.Restored = restored
		res.Recovery = RecoveryRestored
		u.notify.Success(fmt.Sprintf("Preserved data restored from %s", backup))

	case !a.UpdateApplied:
		res.Recovery = RecoveryManual
		res.Instructions = u.manualRestore(backup)
		u.notify.Warn("The update was interrupted while copying files. The bot may be in an inconsistent state.")

	default:
		res.Recovery = RecoveryManual
		if errors.Is(perr, ErrRestore) {
			res.Instructions = u.manualRestore(backup)
		}
		res.Instructions = append(res.Instructions,
			fmt.Sprintf("Reinstall dependencies with: %s", u.installer.CommandLine()),
			fmt.Sprintf("Your backup is kept at %s", backup),
		)
		u.notify.Warn("The new version was applied but the update did not finish.")
	}

	for _, step := range res.Instructions {
		u.notify.Info(step)
	}
	return res, perr
}

func (u *Updater) manualRestore(backup string) []string {
	return []string{
		fmt.Sprintf("Your data is safe in %s", backup),
		fmt.Sprintf("Copy its contents back over the bot directory, or run: nazupdate restore %s", backup),
	}
}
