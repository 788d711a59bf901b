// Package task defines the task record: the lifecycle status enum, the
// directory class each status belongs to, and the codec between a task file
// (YAML front matter plus markdown body) and a Record.
//
// The codec validates the header against an explicit schema and reports
// violations as *ParseError. Bodies are carried byte for byte; header keys the
// codec does not know are preserved across a round trip.
package task
