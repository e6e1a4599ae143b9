package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"dashjoin/internal/config"
)

const userAgent = "dashjoin/0.1.0"

// Event names a notification template.
type Event string

const (
	EventSessionStarted Event = "session_started"
	EventSessionStopped Event = "session_stopped"
	EventGroupMerged    Event = "group_merged"
	EventMergeFailed    Event = "merge_failed"
	EventDeleteFailed   Event = "delete_failed"
	EventTest           Event = "test"
)

// Payload carries template fields.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventSessionStarted:
		return payload{
			title:    "dashjoin - Session Started",
			message:  fmt.Sprintf("Watching %s", text(data, "watchDir")),
			tags:     []string{"dashjoin", "session", "started"},
			priority: "low",
		}, true
	case EventSessionStopped:
		return payload{
			title:    "dashjoin - Session Stopped",
			message:  fmt.Sprintf("Session stopped after %d merges (%d failed)", number(data, "merged"), number(data, "failed")),
			tags:     []string{"dashjoin", "session", "stopped"},
			priority: "low",
		}, true
	case EventGroupMerged:
		message := fmt.Sprintf("🎞️ Merged %d segments: %s", number(data, "segments"), filepath.Base(text(data, "output")))
		if span := text(data, "span"); span != "" {
			message += "\nSpan: " + span
		}
		return payload{
			title:   "dashjoin - Merged",
			message: message,
			tags:    []string{"dashjoin", "merge", "completed"},
		}, true
	case EventMergeFailed:
		return payload{
			title:    "dashjoin - Merge Failed",
			message:  fmt.Sprintf("❌ Merge of %d segments failed: %s", number(data, "segments"), text(data, "error")),
			tags:     []string{"dashjoin", "error", "alert"},
			priority: "high",
		}, true
	case EventDeleteFailed:
		return payload{
			title:   "dashjoin - Source Not Removed",
			message: fmt.Sprintf("Merged, but could not delete %s: %s", text(data, "path"), text(data, "error")),
			tags:    []string{"dashjoin", "error", "cleanup"},
		}, true
	case EventTest:
		return payload{
			title:    "dashjoin - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"dashjoin", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func text(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func number(data Payload, key string) int {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// SendTest sends the test template through svc.
func SendTest(ctx context.Context, svc Service) error {
	return svc.Publish(ctx, EventTest, nil)
}
