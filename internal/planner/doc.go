// Package planner builds the ordered filesystem plans of an update attempt.
//
// Plans are deterministic lists of operations computed from the inventory
// and the current state of the disk. Building a plan never mutates anything;
// Execute applies one operation at a time so callers can stop at the first
// failure and report exactly how far they got.
//
// Plans:
//   - State plan: skeleton directories + one copy per present state path
//     (used in both directions, working tree -> snapshot and back)
//   - Clean plan: removal of artifacts and stale state before an overlay
//   - Overlay plan: one copy per top-level entry of the staging tree
package planner
