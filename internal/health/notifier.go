package health

import (
	"context"
	"log/slog"
	"time"

	"matchreel/internal/logging"
	"matchreel/internal/notifications"
)

// Notifier receives monitor events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

// NtfyNotifier forwards monitor events to the notification service.
type NtfyNotifier struct {
	svc    notifications.Service
	logger *slog.Logger
}

// NewNtfyNotifier wraps svc.
func NewNtfyNotifier(svc notifications.Service, logger *slog.Logger) *NtfyNotifier {
	return &NtfyNotifier{svc: svc, logger: logging.NewComponentLogger(logger, "health-notifier")}
}

// Notify implements Notifier.
func (n *NtfyNotifier) Notify(ctx context.Context, event Event) {
	if n == nil || n.svc == nil {
		return
	}
	var (
		kind    notifications.Event
		payload = notifications.Payload{"endpoint": event.Endpoint.Name, "critical": event.Endpoint.Critical}
	)
	switch event.Kind {
	case EventAlert:
		kind = notifications.EventHealthAlert
		payload["failures"] = event.Failures
		payload["error"] = event.Error
	case EventRecovered:
		kind = notifications.EventHealthRecovered
		payload["downtime"] = event.Downtime.Round(time.Second).String()
	case EventSlow:
		kind = notifications.EventSlowResponse
		payload["latency"] = event.Latency.Round(time.Millisecond).String()
	default:
		return
	}
	if err := n.svc.Publish(ctx, kind, payload); err != nil {
		n.logger.Debug("health notification failed",
			logging.String("endpoint", event.Endpoint.Name),
			logging.Error(err),
		)
	}
}
