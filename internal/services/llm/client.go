package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 1

	workspaceHeader = "X-Workspace-ID"
)

// Config captures the runtime settings required to talk to the endpoint.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Request is one prompt submission.
type Request struct {
	Body      string
	Model     string
	Workspace string
}

// Client wraps a chat-completion endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the attempt count (defaults to 1).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a client using the supplied configuration. The
// request timeout is applied per Submit through the context, so the HTTP
// client itself carries no timeout.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			URL:     strings.TrimSpace(cfg.URL),
			APIKey:  strings.TrimSpace(cfg.APIKey),
			Timeout: cfg.Timeout,
		},
		httpClient:       &http.Client{},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Submit sends req and returns the model's reply text unmodified.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Body) == "" {
		return "", &DispatchError{Kind: KindInvalidResponse, Err: errors.New("empty prompt")}
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	payload := chatCompletionRequest{
		Model:    strings.TrimSpace(req.Model),
		Messages: []chatMessage{{Role: "user", Content: req.Body}},
		Stream:   false,
	}
	return c.completionContentWithRetry(ctx, payload, strings.TrimSpace(req.Workspace))
}

// HealthCheck issues a minimal prompt and expects any non-empty reply.
func (c *Client) HealthCheck(ctx context.Context, model string) error {
	_, err := c.Submit(ctx, Request{Body: "Reply with the single word OK.", Model: model})
	if err != nil {
		return fmt.Errorf("llm health: %w", err)
	}
	return nil
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some providers return the streaming schema (delta) even when
		// stream=false, so tolerate it as a fallback.
		Delta chatCompletionMessage `json:"delta"`
		// Legacy "text" field (completion-style responses).
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

func (c *Client) completionContentWithRetry(ctx context.Context, payload chatCompletionRequest, workspace string) (string, error) {
	attempts := c.retryAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		completion, body, err := c.sendChatRequestOnce(ctx, payload, workspace)
		if err == nil {
			content, finishReason := extractCompletionPayload(completion)
			if content != "" {
				return content, nil
			}
			if len(completion.Choices) == 0 {
				err = &DispatchError{Kind: KindInvalidResponse, Err: errors.New("response has no choices")}
			} else {
				err = &DispatchError{Kind: KindInvalidResponse, Err: &emptyContentError{
					FinishReason: finishReason,
					Refusal:      extractCompletionRefusal(completion),
					Snippet:      summarizePayloadSnippet(string(body)),
				}}
			}
		}

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", err
		}
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return "", classifyTransportError(ctx, sleepErr)
		}
		lastErr = err
	}
	return "", lastErr
}

// extractCompletionPayload returns the first non-blank content. The text is
// returned as sent; only blankness is judged on the trimmed value.
func extractCompletionPayload(completion chatCompletionResponse) (string, string) {
	var finishReason string
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		for _, content := range []string{choice.Message.Content, choice.Delta.Content, choice.Text} {
			if strings.TrimSpace(content) != "" {
				return content, finishReason
			}
		}
	}
	return "", finishReason
}

func extractCompletionRefusal(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		for _, refusal := range []string{choice.Message.Refusal, choice.Delta.Refusal} {
			if trimmed := strings.TrimSpace(refusal); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func (c *Client) sendChatRequestOnce(ctx context.Context, payload chatCompletionRequest, workspace string) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, &DispatchError{Kind: KindConnection, Err: fmt.Errorf("encode body: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, &DispatchError{Kind: KindConnection, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if workspace != "" {
		req.Header.Set(workspaceHeader, workspace)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, nil, classifyTransportError(ctx, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return completion, body, &DispatchError{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Err:        fmt.Errorf("http %d: %s", resp.StatusCode, summarizePayloadSnippet(string(body))),
		}
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, &DispatchError{
			Kind: KindInvalidResponse,
			Err:  fmt.Errorf("decode response: %w (payload snippet: %s)", err, summarizePayloadSnippet(string(body))),
		}
	}
	if completion.Error != nil {
		return completion, body, &DispatchError{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message)),
		}
	}
	return completion, body, nil
}

func (c *Client) retryAttempts() int {
	if c == nil || c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}
