// Package persist takes snapshots of an installation's preserved state and
// restores them.
//
// A snapshot is a plain directory mirroring the state paths of the working
// tree at the same relative locations, so an operator can also recover
// from it by hand with cp.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/hash"
	"github.com/danieljhkim/nazupdate/internal/inventory"
	"github.com/danieljhkim/nazupdate/internal/notify"
	"github.com/danieljhkim/nazupdate/internal/planner"
)

var (
	// ErrNoCrucialState is returned when none of the crucial state paths
	// could be captured; an update must not proceed without them.
	ErrNoCrucialState = errors.New("no crucial state captured")

	// ErrVerifyMismatch is returned when a crucial path's copy differs
	// from its source.
	ErrVerifyMismatch = errors.New("snapshot copy does not match source")

	// ErrSnapshotNotFound is returned when restoring from a missing snapshot.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Snapshot describes a snapshot root on disk.
type Snapshot struct {
	Root      string
	CreatedAt time.Time

	// Copied lists the state paths captured, in inventory order.
	Copied []string

	// Skipped lists state paths absent from the working tree.
	Skipped []string

	// Warnings are non-fatal integrity findings (missing markers).
	Warnings []string
}

// Has reports whether rel was captured.
func (s *Snapshot) Has(rel string) bool {
	for _, c := range s.Copied {
		if c == rel {
			return true
		}
	}
	return false
}

// SnapshotManager creates, verifies, sweeps and restores snapshots.
type SnapshotManager struct {
	fs         fsops.FS
	hasher     hash.Hasher
	inv        inventory.Inventory
	notify     notify.Notifier
	backupGlob string
}

// NewSnapshotManager creates a SnapshotManager. backupGlob matches the names
// of snapshot roots directly under a working root.
func NewSnapshotManager(fs fsops.FS, hasher hash.Hasher, inv inventory.Inventory, backupGlob string, n notify.Notifier) *SnapshotManager {
	if n == nil {
		n = notify.Discard
	}
	return &SnapshotManager{
		fs:         fs,
		hasher:     hasher,
		inv:        inv,
		notify:     n,
		backupGlob: backupGlob,
	}
}

// Create sweeps snapshots left by earlier runs, then copies every state path
// present under workRoot into backupRoot.
func (s *SnapshotManager) Create(workRoot, backupRoot string, now time.Time) (*Snapshot, error) {
	if filepath.Clean(workRoot) == filepath.Clean(backupRoot) {
		return nil, fmt.Errorf("invalid snapshot root %q: same as working tree", backupRoot)
	}

	if _, err := s.Sweep(workRoot, backupRoot); err != nil {
		s.notify.Warn(fmt.Sprintf("Could not remove old backups: %v", err))
	}

	plan, err := planner.BuildStatePlan(s.inv, workRoot, backupRoot, s.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to plan snapshot: %w", err)
	}

	snap := &Snapshot{Root: backupRoot, CreatedAt: now, Skipped: plan.Skipped}

	for _, op := range plan.Operations {
		if op.Type == planner.OpCopy {
			s.notify.Detail(fmt.Sprintf("Copying %s", op.RelPath))
		}
		if err := planner.Execute(s.fs, op); err != nil {
			return snap, err
		}
		if op.Type != planner.OpCopy {
			continue
		}
		snap.Copied = append(snap.Copied, op.RelPath)

		sp, _ := s.inv.Lookup(op.RelPath)
		if sp.Marker != "" {
			s.checkMarker(snap, sp, op.DestPath)
		}
	}

	if err := s.Verify(snap, workRoot); err != nil {
		return snap, err
	}

	return snap, nil
}

// checkMarker re-reads a backed-up customisation file and records a warning
// when its signature is gone. It never fails the snapshot.
func (s *SnapshotManager) checkMarker(snap *Snapshot, sp inventory.StatePath, copyPath string) {
	data, err := s.fs.ReadFile(copyPath)
	if err == nil && strings.Contains(string(data), sp.Marker) {
		s.notify.Detail(fmt.Sprintf("%s carries its customisation marker", sp.RelPath))
		return
	}
	msg := fmt.Sprintf("%s in the backup does not contain its customisation marker", sp.RelPath)
	if err != nil {
		msg = fmt.Sprintf("%s in the backup could not be re-read: %v", sp.RelPath, err)
	}
	snap.Warnings = append(snap.Warnings, msg)
	s.notify.Warn(msg)
}

// Verify requires at least one crucial path in the snapshot and checks
// every captured crucial path byte-for-byte against its source in workRoot.
func (s *SnapshotManager) Verify(snap *Snapshot, workRoot string) error {
	captured := 0
	for _, sp := range s.inv.Crucial() {
		if !snap.Has(sp.RelPath) {
			continue
		}
		captured++
		want, err := s.hasher.HashTree(filepath.Join(workRoot, sp.Native()))
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", sp.RelPath, err)
		}
		got, err := s.hasher.HashTree(filepath.Join(snap.Root, sp.Native()))
		if err != nil {
			return fmt.Errorf("failed to hash backup of %s: %w", sp.RelPath, err)
		}
		if want != got {
			return fmt.Errorf("%w: %s", ErrVerifyMismatch, sp.RelPath)
		}
	}
	if captured == 0 {
		return ErrNoCrucialState
	}
	return nil
}

// Sweep removes snapshot roots under workRoot other than keep. It returns
// the names removed; the first removal error stops the sweep.
func (s *SnapshotManager) Sweep(workRoot, keep string) ([]string, error) {
	found, err := s.scan(workRoot)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, info := range found {
		if filepath.Clean(info.Path) == filepath.Clean(keep) {
			continue
		}
		s.notify.Detail(fmt.Sprintf("Removing old backup %s", info.Name))
		if err := s.fs.RemoveAll(info.Path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", info.Name, err)
		}
		removed = append(removed, info.Name)
	}
	return removed, nil
}

// Info summarises a snapshot root found on disk.
type Info struct {
	Name    string
	Path    string
	Size    uint64
	ModTime time.Time
}

// HumanSize formats Size for display.
func (i Info) HumanSize() string {
	return humanize.Bytes(i.Size)
}

// List returns the snapshot roots directly under workRoot with their sizes,
// oldest name first.
func (s *SnapshotManager) List(workRoot string) ([]Info, error) {
	found, err := s.scan(workRoot)
	if err != nil {
		return nil, err
	}
	for i := range found {
		size, err := TreeSize(found[i].Path)
		if err != nil {
			return nil, err
		}
		found[i].Size = size
	}
	return found, nil
}

func (s *SnapshotManager) scan(workRoot string) ([]Info, error) {
	names, err := doublestar.Glob(os.DirFS(workRoot), s.backupGlob)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for backups: %w", err)
	}
	sort.Strings(names)

	var out []Info
	for _, name := range names {
		path := filepath.Join(workRoot, name)
		st, err := s.fs.Stat(path)
		if err != nil || !st.IsDir() {
			continue
		}
		out = append(out, Info{Name: name, Path: path, ModTime: st.ModTime()})
	}
	return out, nil
}

// StateSize is the number of bytes a snapshot of workRoot would hold.
func (s *SnapshotManager) StateSize(workRoot string) (uint64, error) {
	var total uint64
	for _, sp := range s.inv.Paths {
		size, err := TreeSize(filepath.Join(workRoot, sp.Native()))
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

// TreeSize sums the sizes of regular files at or below path. A missing path
// has size zero.
func TreeSize(path string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && p == path {
				return fs.SkipAll
			}
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to size %s: %w", path, err)
	}
	return total, nil
}
