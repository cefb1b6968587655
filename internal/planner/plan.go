package planner

import (
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/nazupdate/internal/fsops"
)

// Operation type constants
const (
	OpMkdir  = "mkdir"
	OpCopy   = "copy"
	OpRemove = "remove"
)

// Plan is an ordered list of operations.
type Plan struct {
	// Operations is the ordered list of operations to execute
	Operations []Operation

	// Skipped lists relative paths that were considered but had nothing
	// to act on (absent source or target).
	Skipped []string
}

// Operation represents a single filesystem operation to execute.
type Operation struct {
	// Type is the operation type: "mkdir", "copy", "remove"
	Type string

	// SourcePath is the absolute source of a copy
	SourcePath string

	// DestPath is the absolute path created, overwritten or removed
	DestPath string

	// RelPath is DestPath relative to its root, slash-separated
	RelPath string
}

func (op Operation) String() string {
	switch op.Type {
	case OpCopy:
		return fmt.Sprintf("copy %s", op.RelPath)
	default:
		return fmt.Sprintf("%s %s", op.Type, op.RelPath)
	}
}

// AddOperation adds an operation to the plan.
func (p *Plan) AddOperation(op Operation) {
	p.Operations = append(p.Operations, op)
}

// RelPaths returns the relative path of every operation of type opType.
func (p *Plan) RelPaths(opType string) []string {
	var out []string
	for _, op := range p.Operations {
		if op.Type == opType {
			out = append(out, op.RelPath)
		}
	}
	return out
}

// Execute applies a single operation.
func Execute(fs fsops.FS, op Operation) error {
	switch op.Type {
	case OpMkdir:
		if err := fs.MkdirAll(op.DestPath, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", op.RelPath, err)
		}
	case OpCopy:
		if err := fs.Copy(op.SourcePath, op.DestPath); err != nil {
			return fmt.Errorf("failed to copy %s: %w", op.RelPath, err)
		}
	case OpRemove:
		exists, err := fs.Exists(op.DestPath)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", op.RelPath, err)
		}
		if !exists {
			return nil
		}
		if err := fs.RemoveAll(op.DestPath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", op.RelPath, err)
		}
	default:
		return fmt.Errorf("unknown operation type: %s", op.Type)
	}
	return nil
}

func join(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

func exists(fs fsops.FS, path string) (bool, error) {
	ok, err := fs.Exists(path)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", path, err)
	}
	return ok, nil
}

func isDir(fs fsops.FS, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && info.IsDir()
}
