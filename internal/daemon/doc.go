// Package daemon runs lifecycle passes for as long as the process lives.
//
// Start takes an flock on the state directory's lock file so only one
// orchestra process writes the task directories, runs a pass immediately,
// then runs another on each poll tick or when new task files appear in the
// queued directory. Stop cancels the loop, waits for the current pass, and
// releases the lock.
package daemon
