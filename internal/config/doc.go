// Package config loads, normalizes, and validates orchestra configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and overlays ORCHESTRA_* environment variables. Task directories
// are derived from paths.tasks_dir unless set explicitly.
//
// Validation failures are fatal: callers must not touch any task until Load
// succeeds.
package config
