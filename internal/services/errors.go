package services

import (
	"errors"
	"fmt"
	"strings"
)

// Markers shared by every component. Typed errors wrap one of these so callers
// can classify failures with errors.Is regardless of the concrete type.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrParse           = errors.New("parse error")
	ErrFilesystem      = errors.New("filesystem error")
	ErrTimeout         = errors.New("timeout")
	ErrConnection      = errors.New("connection error")
	ErrServer          = errors.New("server error")
	ErrInvalidResponse = errors.New("invalid response")
)

// ErrorClassifier is implemented by typed errors that know their own kind.
type ErrorClassifier interface {
	ErrorKind() string
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrServer
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short machine-readable label for err, used as the
// error_kind log field.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		if kind := strings.TrimSpace(classifier.ErrorKind()); kind != "" {
			return kind
		}
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return "config"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	default:
		return "unknown"
	}
}

// IsDispatchFailure reports whether err came from talking to the inference endpoint.
func IsDispatchFailure(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrInvalidResponse)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
