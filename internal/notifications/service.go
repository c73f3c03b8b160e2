package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/config"
)

const userAgent = "Reelforge-Go/0.1.0"

// Event enumerates the notifications the service can send.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event-specific values.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
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
		enabled: map[Event]bool{
			EventJobCompleted: cfg.Notifications.JobCompleted,
			EventJobFailed:    cfg.Notifications.JobFailed,
			EventTest:         true,
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
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		body := "✅ Ready: " + fallback(payload.text("topic"), "untitled")
		if path := payload.text("artifact"); path != "" {
			body += "\nFile: " + path
		}
		if d, ok := payload["duration"].(time.Duration); ok && d > 0 {
			body += "\nTook " + d.Round(time.Second).String()
		}
		return message{
			title: "Reelforge - Video Ready",
			body:  body,
			tags:  []string{"reelforge", "job", "completed"},
		}, true
	case EventJobFailed:
		var b strings.Builder
		b.WriteString("❌ ")
		b.WriteString(fallback(payload.text("topic"), "untitled"))
		b.WriteString(" failed")
		if stage := payload.text("stage"); stage != "" {
			b.WriteString(" at ")
			b.WriteString(stage)
		}
		b.WriteString(": ")
		b.WriteString(fallback(payload.text("error"), "unknown error"))
		if hint := payload.text("hint"); hint != "" {
			b.WriteString("\nHint: ")
			b.WriteString(hint)
		}
		return message{
			title:    "Reelforge - Job Failed",
			body:     b.String(),
			tags:     []string{"reelforge", "job", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Reelforge - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"reelforge", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
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

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
