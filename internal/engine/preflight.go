package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v4/disk"
)

// ErrInsufficientSpace is returned when the snapshot would not fit.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// DiskFree reports the free bytes of the filesystem holding path.
func DiskFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("failed to read disk usage: %w", err)
	}
	return usage.Free, nil
}

// checkSpace requires room for a full snapshot plus the configured headroom.
// A failure to measure is only logged.
func (u *Updater) checkSpace(ctx context.Context, root string) error {
	need, err := u.snapshots.StateSize(root)
	if err != nil {
		u.logger.Warn("could not size preserved state", "error", err)
		return nil
	}
	need += u.cfg.MinFreeBytes

	free, err := u.diskFree(ctx, root)
	if err != nil {
		u.logger.Warn("could not read free disk space", "error", err)
		return nil
	}

	u.logger.Debug("disk space", "free", humanize.Bytes(free), "needed", humanize.Bytes(need))
	if free < need {
		return fmt.Errorf("%w: %s free, %s needed for the backup", ErrInsufficientSpace, humanize.Bytes(free), humanize.Bytes(need))
	}
	return nil
}

// lockRoot takes the working tree lock without blocking.
func lockRoot(path string) (*flock.Flock, error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock held on %s", path)
	}
	return fl, nil
}
