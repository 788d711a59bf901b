package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"orchestra/internal/config"
)

const userAgent = "orchestra/0.1"

// Event identifies a notification template.
type Event string

const (
	EventTaskCompleted Event = "task_completed"
	EventTaskFailed    Event = "task_failed"
	EventPassCompleted Event = "pass_completed"
	EventTest          Event = "test"
)

// Payload carries template values. Keys read per event:
//
//	task_completed: task, workspace, duration
//	task_failed:    task, error
//	pass_completed: dispatched, completed, incomplete, failed
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is
// configured. Events the config does not enable are dropped.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventTaskCompleted: cfg.Notifications.OnComplete,
			EventTaskFailed:    cfg.Notifications.OnFailure,
			EventPassCompleted: cfg.Notifications.OnPass,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || n.client == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventTaskCompleted:
		body := fmt.Sprintf("Task complete: %s", payload.text("task"))
		if ws := payload.text("workspace"); ws != "" {
			body += fmt.Sprintf(" (%s)", ws)
		}
		if d, ok := payload["duration"].(time.Duration); ok && d > 0 {
			body += fmt.Sprintf(" in %s", d.Round(100*time.Millisecond))
		}
		return message{
			title: "Orchestra - Task Complete",
			body:  body,
			tags:  []string{"orchestra", "task", "completed"},
		}, true
	case EventTaskFailed:
		reason := payload.text("error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "Orchestra - Task Failed",
			body:     fmt.Sprintf("Task failed: %s\n%s", payload.text("task"), reason),
			tags:     []string{"orchestra", "task", "failed"},
			priority: "high",
		}, true
	case EventPassCompleted:
		failed := payload.int("failed")
		title := "Orchestra - Pass Complete"
		if failed > 0 {
			title = "Orchestra - Pass Complete (with failures)"
		}
		return message{
			title: title,
			body: fmt.Sprintf("Dispatched %d: %d complete, %d incomplete, %d failed",
				payload.int("dispatched"), payload.int("completed"), payload.int("incomplete"), failed),
			tags: []string{"orchestra", "pass", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "Orchestra - Test",
			body:     "Notification system test",
			tags:     []string{"orchestra", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) int(key string) int {
	if p == nil {
		return 0
	}
	if v, ok := p[key].(int); ok {
		return v
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Nop returns a service that drops every event.
func Nop() Service { return noopService{} }

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
