// Package preflight provides readiness checks for the task directories and
// the chat-completion endpoint.
//
// The CLI "orchestra health" command prints every result. "orchestra start"
// runs the directory checks before taking the daemon lock so a misconfigured
// queue fails fast instead of on the first pass.
package preflight
