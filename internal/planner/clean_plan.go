package planner

import (
	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/inventory"
)

// BuildCleanPlan generates the removals performed on the working tree
// before an overlay. Artifacts and stale state are always removed; install
// artifacts only when forceClean is set, i.e. when a reinstall is already
// known to be necessary. Paths that do not exist are recorded in Skipped.
func BuildCleanPlan(inv inventory.Inventory, root string, forceClean bool, fs fsops.FS) (*Plan, error) {
	plan := &Plan{}

	targets := append([]string{}, inv.Artifacts...)
	if forceClean {
		targets = append(targets, inv.InstallArtifacts...)
	}
	targets = append(targets, inv.Stale...)

	for _, rel := range targets {
		dest := join(root, rel)
		ok, err := exists(fs, dest)
		if err != nil {
			return nil, err
		}
		if !ok {
			plan.Skipped = append(plan.Skipped, rel)
			continue
		}
		plan.AddOperation(Operation{
			Type:     OpRemove,
			DestPath: dest,
			RelPath:  rel,
		})
	}

	return plan, nil
}
