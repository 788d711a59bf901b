// Package logging assembles structured slog loggers for orchestra.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine code tags every line
// with the task ID, lifecycle stage, and run correlation ID. NewNop gives tests
// and wiring code a logger that cannot fail.
package logging
