package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrCloneFailed is returned when the clone command does not succeed.
	ErrCloneFailed = errors.New("clone failed")

	// ErrStagingMissing is returned when the clone reported success but the
	// staging directory does not exist.
	ErrStagingMissing = errors.New("staging directory missing after clone")
)

// FetchError reports a failed fetch with the clone's exit code, when there
// was one, and a diagnostic hint from the reachability probe.
type FetchError struct {
	URL  string
	Code int
	Hint string
	Err  error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("failed to fetch %s", e.URL)
	if e.Code > 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.Code)
	}
	return msg + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
