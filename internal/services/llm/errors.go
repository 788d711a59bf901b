package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"orchestra/internal/services"
)

// ErrorKind classifies dispatch failures. The engine treats every kind the
// same way; the kind exists for logs and for retry decisions.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindConnection      ErrorKind = "connection"
	KindServer          ErrorKind = "server"
	KindInvalidResponse ErrorKind = "invalid_response"
)

// DispatchError is returned by Submit for every failure.
type DispatchError struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() []error {
	return []error{e.marker(), e.Err}
}

// ErrorKind classifies the error for logging.
func (e *DispatchError) ErrorKind() string { return string(e.Kind) }

func (e *DispatchError) marker() error {
	switch e.Kind {
	case KindTimeout:
		return services.ErrTimeout
	case KindConnection:
		return services.ErrConnection
	case KindInvalidResponse:
		return services.ErrInvalidResponse
	default:
		return services.ErrServer
	}
}

type emptyContentError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)", e.FinishReason, e.Refusal, e.Snippet)
}

// classifyTransportError maps an error from the HTTP round trip to a
// DispatchError. Deadline expiry, on the caller's context or the network
// layer, is a timeout; everything else is a connection failure.
func classifyTransportError(ctx context.Context, err error) error {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &DispatchError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &DispatchError{Kind: KindTimeout, Err: err}
	}
	return &DispatchError{Kind: KindConnection, Err: err}
}
