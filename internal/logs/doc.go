// Package logs tails the daemon log file for the CLI.
//
// Tail reads with bounded memory. A negative offset returns the last N lines;
// a non-negative offset returns whatever was appended since, optionally
// waiting for new lines when following.
package logs
