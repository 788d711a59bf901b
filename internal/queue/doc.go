// Package queue persists task records as files in three directories:
// queued, completed, and failed. The directory a file lives in is its
// location class; the engine only dispatches from queued.
//
// Every write goes through a temp file and an atomic rename, and relocation
// never overwrites an existing file, so a crash leaves each task in exactly
// one directory with either its old or its new content.
package queue
