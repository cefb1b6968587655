// Package replace swaps the application code in the working tree for the
// freshly fetched version.
package replace

import (
	"fmt"

	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/inventory"
	"github.com/danieljhkim/nazupdate/internal/notify"
	"github.com/danieljhkim/nazupdate/internal/planner"
)

// Replacer cleans the working tree and overlays the staging tree onto it.
type Replacer struct {
	fs     fsops.FS
	inv    inventory.Inventory
	notify notify.Notifier
}

// NewReplacer creates a Replacer.
func NewReplacer(fs fsops.FS, inv inventory.Inventory, n notify.Notifier) *Replacer {
	if n == nil {
		n = notify.Discard
	}
	return &Replacer{fs: fs, inv: inv, notify: n}
}

// Clean removes version-control artifacts and stale state from root, plus
// the installed dependencies when forceClean is set. It returns the
// relative paths removed.
func (r *Replacer) Clean(root string, forceClean bool) ([]string, error) {
	plan, err := planner.BuildCleanPlan(r.inv, root, forceClean, r.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to plan cleanup: %w", err)
	}

	var removed []string
	for _, op := range plan.Operations {
		r.notify.Detail(fmt.Sprintf("Removing %s", op.RelPath))
		if err := planner.Execute(r.fs, op); err != nil {
			return removed, err
		}
		removed = append(removed, op.RelPath)
	}
	return removed, nil
}

// PlanOverlay lists the copies Apply will perform. It does not touch root.
func (r *Replacer) PlanOverlay(staging, root string) (*planner.Plan, error) {
	plan, err := planner.BuildOverlayPlan(staging, root, r.fs)
	if err != nil {
		return nil, err
	}
	if len(plan.Operations) == 0 {
		return nil, fmt.Errorf("staging tree %s is empty", staging)
	}
	return plan, nil
}

// Apply executes an overlay plan, then deletes the staging tree. A failure
// part-way leaves root holding a mix of old and new files.
func (r *Replacer) Apply(plan *planner.Plan, staging string) error {
	for _, op := range plan.Operations {
		r.notify.Detail(fmt.Sprintf("Updating %s", op.RelPath))
		if err := planner.Execute(r.fs, op); err != nil {
			return err
		}
	}

	if err := r.fs.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to remove staging tree: %w", err)
	}
	return nil
}
