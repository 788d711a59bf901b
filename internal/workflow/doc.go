// Package workflow runs the task lifecycle: it scans the queued directory,
// dispatches eligible tasks one at a time, judges each response against the
// task's completion criteria, and files the task into completed or failed.
//
// RunPass works from a lexicographic snapshot taken at the start of the
// pass. Every status change is persisted before the next step starts, so a
// crash leaves each task in a state the next pass can reconcile:
//
//   - pending/incomplete: dispatched (running is written first)
//   - running: handled by the recovery policy, never resumed silently
//   - complete/failed still in queued: relocation is finished
//
// Per-task failures are recorded in the pass Summary and never abort the
// pass. Only context cancellation stops a pass early.
package workflow
