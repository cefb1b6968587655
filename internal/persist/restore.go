package persist

import (
	"fmt"

	"github.com/danieljhkim/nazupdate/internal/planner"
)

// Restore copies every state path found in the snapshot at backupRoot back
// into workRoot, recreating the state skeleton first. Paths absent from the
// snapshot are skipped unless declared required. Directories are merged
// into whatever the working tree already holds at that path; files are
// replaced. It returns the relative paths restored.
func (s *SnapshotManager) Restore(backupRoot, workRoot string) ([]string, error) {
	st, err := s.fs.Stat(backupRoot)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, backupRoot)
	}

	plan, err := planner.BuildStatePlan(s.inv, backupRoot, workRoot, s.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to plan restore: %w", err)
	}

	var restored []string
	for _, op := range plan.Operations {
		if op.Type == planner.OpCopy {
			s.notify.Detail(fmt.Sprintf("Restoring %s", op.RelPath))
		}
		if err := planner.Execute(s.fs, op); err != nil {
			return restored, err
		}
		if op.Type == planner.OpCopy {
			restored = append(restored, op.RelPath)
		}
	}
	return restored, nil
}
