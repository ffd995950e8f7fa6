package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"matchreel/internal/config"
)

const userAgent = "matchreel/0.1.0"

// Event names an operational notification.
type Event string

const (
	EventJobFailed        Event = "job_failed"
	EventJobCompleted     Event = "job_completed"
	EventHealthAlert      Event = "health_alert"
	EventHealthRecovered  Event = "health_recovered"
	EventSlowResponse     Event = "slow_response"
	EventStorageAlert     Event = "storage_alert"
	EventStorageCleared   Event = "storage_cleared"
	EventCleanupCompleted Event = "cleanup_completed"
	EventTest             Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Service publishes events.
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
		settings: cfg.Notifications,
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
	settings config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventJobFailed:
		return n.settings.JobErrors
	case EventHealthAlert, EventHealthRecovered, EventSlowResponse:
		return n.settings.HealthAlerts
	case EventStorageAlert, EventStorageCleared, EventCleanupCompleted:
		return n.settings.StorageAlerts
	case EventTest:
		return true
	default:
		return false
	}
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventJobFailed:
		return payload{
			title:    "matchreel - Job Failed",
			message:  fmt.Sprintf("❌ %s failed: %s", str(data, "job", "job"), str(data, "error", "unknown error")),
			tags:     []string{"matchreel", "job", "failed"},
			priority: "high",
		}, true
	case EventHealthAlert:
		critical := ""
		if b, _ := data["critical"].(bool); b {
			critical = " (critical)"
		}
		return payload{
			title: "matchreel - Endpoint Down",
			message: fmt.Sprintf("🚨 %s%s failed %v consecutive checks: %s",
				str(data, "endpoint", "endpoint"), critical, data["failures"], str(data, "error", "unknown error")),
			tags:     []string{"matchreel", "health", "down"},
			priority: "high",
		}, true
	case EventHealthRecovered:
		return payload{
			title:   "matchreel - Endpoint Recovered",
			message: fmt.Sprintf("✅ %s recovered after %s", str(data, "endpoint", "endpoint"), str(data, "downtime", "an outage")),
			tags:    []string{"matchreel", "health", "recovered"},
		}, true
	case EventSlowResponse:
		return payload{
			title:   "matchreel - Slow Endpoint",
			message: fmt.Sprintf("🐢 %s responded in %s", str(data, "endpoint", "endpoint"), str(data, "latency", "?")),
			tags:    []string{"matchreel", "health", "slow"},
		}, true
	case EventStorageAlert:
		priority := "high"
		if str(data, "level", "") == "warning" {
			priority = ""
		}
		return payload{
			title: "matchreel - Storage " + strings.ToUpper(str(data, "level", "alert")),
			message: fmt.Sprintf("💾 %s storage at %s (%s of %s)",
				str(data, "target", "archive"), str(data, "utilization", "?"), str(data, "used", "?"), str(data, "capacity", "?")),
			tags:     []string{"matchreel", "storage", str(data, "level", "alert")},
			priority: priority,
		}, true
	case EventStorageCleared:
		return payload{
			title:   "matchreel - Storage OK",
			message: fmt.Sprintf("💾 %s storage back to normal at %s", str(data, "target", "archive"), str(data, "utilization", "?")),
			tags:    []string{"matchreel", "storage", "cleared"},
		}, true
	case EventCleanupCompleted:
		return payload{
			title:   "matchreel - Cleanup",
			message: fmt.Sprintf("🧹 %s cleanup removed %v files (%s)", str(data, "kind", "scheduled"), data["files"], str(data, "freed", "0 B")),
			tags:    []string{"matchreel", "storage", "cleanup"},
		}, true
	case EventTest:
		return payload{
			title:    "matchreel - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"matchreel", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func str(data Payload, key, fallback string) string {
	if data == nil {
		return fallback
	}
	switch v := data[key].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	case fmt.Stringer:
		return v.String()
	case error:
		return strings.TrimSpace(v.Error())
	}
	return fallback
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
