package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/danieljhkim/nazupdate/internal/deps"
	"github.com/danieljhkim/nazupdate/internal/persist"
)

// CheckDeps reports whether the working tree needs a dependency install.
func (u *Updater) CheckDeps() deps.Report {
	return u.checker.Check(u.cfg.Root)
}

// Backups lists the snapshots retained in the working tree.
func (u *Updater) Backups() ([]persist.Info, error) {
	return u.snapshots.List(u.cfg.Root)
}

// RestoreBackup copies the preserved state from a retained snapshot back
// into the working tree. name is a directory under the working root or a
// path to one.
func (u *Updater) RestoreBackup(name string) ([]string, error) {
	dir := name
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(u.cfg.Root, name)
	}
	dir = filepath.Clean(dir)
	if dir == filepath.Clean(u.cfg.Root) {
		return nil, fmt.Errorf("refusing to restore the working tree onto itself")
	}

	fl, err := lockRoot(filepath.Join(u.cfg.Root, u.cfg.LockFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocked, err)
	}
	defer func() {
		if fl.Unlock() == nil {
			_ = os.Remove(fl.Path())
		}
	}()

	restored, err := u.snapshots.Restore(dir, u.cfg.Root)
	if err != nil {
		return restored, fmt.Errorf("%w: %w", ErrRestore, err)
	}
	return restored, nil
}
