package testsupport

import (
	"context"
	"sync"

	"orchestra/internal/services/llm"
)

// DispatchFunc produces a reply for one request.
type DispatchFunc func(ctx context.Context, req llm.Request) (string, error)

// FakeDispatcher records requests and answers them with Reply.
type FakeDispatcher struct {
	Reply DispatchFunc

	mu       sync.Mutex
	requests []llm.Request
}

// NewFakeDispatcher returns a dispatcher that answers every request with reply.
func NewFakeDispatcher(reply string) *FakeDispatcher {
	return &FakeDispatcher{Reply: func(context.Context, llm.Request) (string, error) {
		return reply, nil
	}}
}

// Submit records req and delegates to Reply.
func (f *FakeDispatcher) Submit(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.Reply == nil {
		return "", nil
	}
	return f.Reply(ctx, req)
}

// Requests returns a copy of every request seen so far.
func (f *FakeDispatcher) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// Calls returns the number of requests seen.
func (f *FakeDispatcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
