package planner

import (
	"errors"
	"fmt"

	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/inventory"
)

// ErrRequiredMissing is returned when a required state path is absent from
// the source root of a state plan.
var ErrRequiredMissing = errors.New("required state path missing")

// BuildStatePlan generates the plan copying preserved state from srcRoot to
// dstRoot: the skeleton directories first, then one copy per state path
// present under srcRoot, in inventory order. Absent optional paths are
// recorded in Skipped.
func BuildStatePlan(inv inventory.Inventory, srcRoot, dstRoot string, fs fsops.FS) (*Plan, error) {
	plan := &Plan{}

	for _, rel := range inv.Skeleton {
		plan.AddOperation(Operation{
			Type:     OpMkdir,
			DestPath: join(dstRoot, rel),
			RelPath:  rel,
		})
	}

	for _, sp := range inv.Paths {
		src := join(srcRoot, sp.RelPath)
		ok, err := exists(fs, src)
		if err != nil {
			return nil, err
		}
		if !ok {
			if sp.Required {
				return nil, fmt.Errorf("%w: %s", ErrRequiredMissing, sp.RelPath)
			}
			plan.Skipped = append(plan.Skipped, sp.RelPath)
			continue
		}

		if dir := isDir(fs, src); dir != (sp.Kind == inventory.KindDir) {
			return nil, fmt.Errorf("state path %s: expected %s", sp.RelPath, sp.Kind)
		}

		plan.AddOperation(Operation{
			Type:       OpCopy,
			SourcePath: src,
			DestPath:   join(dstRoot, sp.RelPath),
			RelPath:    sp.RelPath,
		})
	}

	return plan, nil
}
