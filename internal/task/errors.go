package task

import (
	"fmt"

	"orchestra/internal/services"
)

// ParseError reports a task file whose header violates the schema. The
// engine never dispatches such a task.
type ParseError struct {
	Path  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse task %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse task %s: %s: %v", e.Path, e.Field, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{services.ErrParse, e.Err}
}

// ErrorKind classifies the error for logging.
func (e *ParseError) ErrorKind() string { return "parse" }

func parseErr(path, field, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Field: field, Err: fmt.Errorf(format, args...)}
}
