package fsops

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Op names a mutating FS operation that a FaultFS can fail.
type Op string

const (
	OpCopy        Op = "copy"
	OpRemove      Op = "remove"
	OpRemoveAll   Op = "remove_all"
	OpMkdirAll    Op = "mkdir_all"
	OpAtomicWrite Op = "atomic_write"
)

type fault struct {
	op    Op
	match func(path string) bool
	err   error
}

// FaultFS wraps another FS and fails selected operations.
// It is a test double: every call not matched by a fault is delegated.
type FaultFS struct {
	FS

	mu     sync.Mutex
	faults []fault
	calls  map[Op]int
}

// NewFaultFS wraps inner.
func NewFaultFS(inner FS) *FaultFS {
	return &FaultFS{FS: inner, calls: make(map[Op]int)}
}

// FailOn makes op fail with err whenever match reports true for one of its
// path arguments (both src and dst for copies).
func (f *FaultFS) FailOn(op Op, match func(path string) bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, fault{op: op, match: match, err: err})
}

// FailUnder makes op fail for any path at or below root.
func (f *FaultFS) FailUnder(op Op, root string, err error) {
	root = filepath.Clean(root)
	f.FailOn(op, func(path string) bool {
		path = filepath.Clean(path)
		return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
	}, err)
}

// Calls returns how many times op was attempted.
func (f *FaultFS) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultFS) check(op Op, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	for _, ft := range f.faults {
		if ft.op != op {
			continue
		}
		for _, p := range paths {
			if ft.match(p) {
				return ft.err
			}
		}
	}
	return nil
}

func (f *FaultFS) Copy(src, dst string) error {
	if err := f.check(OpCopy, src, dst); err != nil {
		return err
	}
	return f.FS.Copy(src, dst)
}

func (f *FaultFS) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}
	return f.FS.Remove(path)
}

func (f *FaultFS) RemoveAll(path string) error {
	if err := f.check(OpRemoveAll, path); err != nil {
		return err
	}
	return f.FS.RemoveAll(path)
}

func (f *FaultFS) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}
	return f.FS.MkdirAll(path, perm)
}

func (f *FaultFS) AtomicWrite(path string, data []byte, perm os.FileMode) error {
	if err := f.check(OpAtomicWrite, path); err != nil {
		return err
	}
	return f.FS.AtomicWrite(path, data, perm)
}
