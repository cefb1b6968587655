package engine

import (
	"time"

	"github.com/danieljhkim/nazupdate/internal/config"
	"github.com/danieljhkim/nazupdate/internal/deps"
	"github.com/danieljhkim/nazupdate/internal/gitx"
)

// State is the progress of an update attempt.
type State string

const (
	StateInit         State = "INIT"
	StateBackedUp     State = "BACKED_UP"
	StateDownloaded   State = "DOWNLOADED"
	StateCleaned      State = "CLEANED"
	StateApplied      State = "APPLIED"
	StateRestored     State = "RESTORED"
	StateDepsResolved State = "DEPS_RESOLVED"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Attempt tracks one run of the updater. It lives in memory only.
type Attempt struct {
	ID        string
	StartedAt time.Time
	Paths     config.Paths
	State     State

	BackupCreated      bool
	DownloadSuccessful bool
	OverlayStarted     bool
	UpdateApplied      bool

	// locked is set once this attempt holds the working-root lock.
	locked bool
}

func (a *Attempt) advance(s State) {
	a.State = s
}

// Recovery is the action taken after a failed attempt.
type Recovery string

const (
	// RecoveryNone means no snapshot existed and the working tree was not
	// touched.
	RecoveryNone Recovery = "none"

	// RecoveryRestored means the snapshot was copied back automatically.
	RecoveryRestored Recovery = "restored"

	// RecoveryManual means the operator must recover from the snapshot.
	RecoveryManual Recovery = "manual"
)

// Result describes a finished attempt, successful or not.
type Result struct {
	Attempt Attempt

	Checkout  gitx.Checkout
	Deps      deps.Report
	Installed bool
	Removed   []string
	Restored  []string

	// Total is the upstream commit count written to the version log, zero
	// when it could not be fetched.
	Total int

	Recovery Recovery

	// Instructions are the manual steps left to the operator.
	Instructions []string
}
