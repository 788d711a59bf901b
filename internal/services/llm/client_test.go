package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"orchestra/internal/services"
)

func replyWith(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": content}},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func TestSubmitSendsModelWorkspaceAndAuth(t *testing.T) {
	var captured chatCompletionRequest
	var auth, workspace string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		workspace = r.Header.Get(workspaceHeader)
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		replyWith(t, "Price: $499\n")(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL, APIKey: "secret", Timeout: 5 * time.Second})
	got, err := client.Submit(context.Background(), Request{Body: "Find the price", Model: "llama3", Workspace: "research"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if got != "Price: $499\n" {
		t.Fatalf("expected untrimmed content, got %q", got)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if workspace != "research" {
		t.Fatalf("unexpected workspace header %q", workspace)
	}
	if captured.Model != "llama3" || captured.Stream {
		t.Fatalf("unexpected request payload %+v", captured)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" || captured.Messages[0].Content != "Find the price" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
}

func TestSubmitOmitsOptionalHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get("Authorization"); v != "" {
			t.Errorf("expected no authorization header, got %q", v)
		}
		if v := r.Header.Get(workspaceHeader); v != "" {
			t.Errorf("expected no workspace header, got %q", v)
		}
		replyWith(t, "ok")(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	if _, err := client.Submit(context.Background(), Request{Body: "hi", Model: "m"}); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
}

func TestSubmitServerErrorKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	_, err := client.Submit(context.Background(), Request{Body: "hi", Model: "m"})
	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
	if dispatchErr.Kind != KindServer || dispatchErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected error %+v", dispatchErr)
	}
	if !errors.Is(err, services.ErrServer) {
		t.Fatalf("expected services.ErrServer marker, got %v", err)
	}
	if services.Kind(err) != "server" {
		t.Fatalf("expected kind server, got %q", services.Kind(err))
	}
}

func TestSubmitInvalidResponseKinds(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"malformed json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		},
		"blank content": replyWith(t, "   \n"),
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			client := NewClient(Config{URL: server.URL})
			_, err := client.Submit(context.Background(), Request{Body: "hi", Model: "m"})
			var dispatchErr *DispatchError
			if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindInvalidResponse {
				t.Fatalf("expected invalid_response, got %v", err)
			}
			if !errors.Is(err, services.ErrInvalidResponse) {
				t.Fatalf("expected invalid response marker, got %v", err)
			}
		})
	}
}

func TestSubmitAPIErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	_, err := client.Submit(context.Background(), Request{Body: "hi", Model: "missing"})
	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindServer {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestSubmitTimeoutKind(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{URL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Submit(context.Background(), Request{Body: "hi", Model: "m"})
	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
}

func TestSubmitConnectionKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{URL: url, Timeout: 2 * time.Second})
	_, err := client.Submit(context.Background(), Request{Body: "hi", Model: "m"})
	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindConnection {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestSubmitRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		replyWith(t, "recovered")(w, r)
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{URL: server.URL},
		WithRetryMaxAttempts(3),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	got, err := client.Submit(context.Background(), Request{Body: "hi", Model: "m"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if got != "recovered" {
		t.Fatalf("unexpected content %q", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single 1s sleep from Retry-After, got %v", slept)
	}
}

func TestSubmitDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, WithRetryMaxAttempts(3), WithSleeper(func(time.Duration) {}))
	if _, err := client.Submit(context.Background(), Request{Body: "hi", Model: "m"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestSubmitDefaultsToSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	if _, err := client.Submit(context.Background(), Request{Body: "hi", Model: "m"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(replyWith(t, "OK"))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	if err := client.HealthCheck(context.Background(), "llama3"); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL, APIKey: "bad"})
	if err := client.HealthCheck(context.Background(), "llama3"); err == nil {
		t.Fatal("expected health check to fail")
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	var out struct {
		Status string `json:"acceptance_status"`
	}
	inputs := []string{
		`{"acceptance_status":"yes"}`,
		"```json\n{\"acceptance_status\":\"yes\"}\n```",
		"Here is my verdict:\n{\"acceptance_status\":\"yes\"}\nThanks.",
	}
	for _, input := range inputs {
		out.Status = ""
		if err := DecodeLLMJSON(input, &out); err != nil {
			t.Fatalf("DecodeLLMJSON(%q) returned error: %v", input, err)
		}
		if out.Status != "yes" {
			t.Fatalf("DecodeLLMJSON(%q) decoded %q", input, out.Status)
		}
	}
	if err := DecodeLLMJSON("no json here", &out); err == nil {
		t.Fatal("expected error for non-json payload")
	}
	if err := DecodeLLMJSON("  ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(time.Second, 3*time.Second))
	if got := client.backoffDelay(1); got != time.Second {
		t.Fatalf("attempt 1: got %v", got)
	}
	if got := client.backoffDelay(2); got != 2*time.Second {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := client.backoffDelay(5); got != 3*time.Second {
		t.Fatalf("attempt 5: got %v", got)
	}
}
