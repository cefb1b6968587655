package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrPrereqMissing indicates git or the package manager is not installed.
	ErrPrereqMissing = errors.New("prerequisite missing")

	// ErrLocked indicates another update holds the working tree lock.
	ErrLocked = errors.New("another update is already running")

	// ErrCancelled indicates the user cancelled before anything was changed.
	ErrCancelled = errors.New("update cancelled")

	// ErrBackup indicates the snapshot could not be taken.
	ErrBackup = errors.New("backup failed")

	// ErrFetch indicates the new version could not be downloaded.
	ErrFetch = errors.New("download failed")

	// ErrClean indicates old files could not be removed.
	ErrClean = errors.New("cleanup failed")

	// ErrApply indicates the new version could not be copied into place.
	ErrApply = errors.New("applying update failed")

	// ErrRestore indicates preserved state could not be put back.
	ErrRestore = errors.New("restoring state failed")

	// ErrInstall indicates the dependency install failed.
	ErrInstall = errors.New("dependency install failed")

	// ErrMetadata indicates the version log could not be written. It is
	// never returned from Run; it only appears in warnings.
	ErrMetadata = errors.New("version log update failed")

	// ErrManifestMissing indicates the overlay left no package manifest.
	ErrManifestMissing = errors.New("package manifest missing after update")
)

// PhaseError is returned by Updater.Run. Kind is one of the sentinel
// errors above and matches with errors.Is.
type PhaseError struct {
	Phase State
	Kind  error
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func phaseErr(phase State, kind, err error) *PhaseError {
	return &PhaseError{Phase: phase, Kind: kind, Err: err}
}
