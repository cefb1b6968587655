package planner

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/danieljhkim/nazupdate/internal/fsops"
)

// BuildOverlayPlan generates one copy per top-level entry of stagingRoot
// onto root. Copies merge directories and replace same-path files, so
// working-tree files the staging tree does not mention survive.
func BuildOverlayPlan(stagingRoot, root string, fs fsops.FS) (*Plan, error) {
	entries, err := fs.ReadDir(stagingRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging tree: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	plan := &Plan{}
	for _, name := range names {
		plan.AddOperation(Operation{
			Type:       OpCopy,
			SourcePath: filepath.Join(stagingRoot, name),
			DestPath:   filepath.Join(root, name),
			RelPath:    name,
		})
	}
	return plan, nil
}
