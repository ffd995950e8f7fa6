package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/retry"
)

// HeartbeatMonitor refreshes claims and reclaims jobs whose workers went quiet.
type HeartbeatMonitor struct {
	store          *queue.Store
	logger         *slog.Logger
	interval       time.Duration
	timeout        time.Duration
	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration
	now            func() time.Time
}

// NewHeartbeatMonitor creates a monitor from the [worker] settings.
func NewHeartbeatMonitor(cfg *config.Config, store *queue.Store, logger *slog.Logger) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:          store,
		logger:         logging.NewComponentLogger(logger, "workflow-heartbeat"),
		interval:       cfg.HeartbeatInterval(),
		timeout:        cfg.HeartbeatTimeout(),
		maxAttempts:    cfg.Worker.MaxAttempts,
		backoffInitial: time.Duration(cfg.Worker.AttemptBackoffInitial) * time.Second,
		backoffMax:     time.Duration(cfg.Worker.AttemptBackoffMax) * time.Second,
		now:            time.Now,
	}
}

// SetClock overrides the time source used to compute the stale cutoff.
func (h *HeartbeatMonitor) SetClock(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// Backoff returns the delay before a reclaimed job becomes eligible again.
// attempts counts the claims already consumed.
func (h *HeartbeatMonitor) Backoff(attempts int) time.Duration {
	if h.backoffInitial <= 0 {
		return 0
	}
	return retry.CalculateBackoff(max(attempts-1, 0), h.backoffInitial, h.backoffMax, 2)
}

// ReclaimStale returns stale claims to the queue, or fails them once the
// attempt limit is exhausted.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (queue.ReclaimResult, error) {
	if h.timeout <= 0 {
		return queue.ReclaimResult{}, nil
	}
	cutoff := h.now().Add(-h.timeout)
	result, err := h.store.ReclaimStale(ctx, cutoff, h.maxAttempts, h.Backoff)
	if err != nil {
		return queue.ReclaimResult{}, err
	}
	if result.Requeued > 0 || result.Failed > 0 {
		logging.WarnWithContext(h.logger, "reclaimed stale jobs", "heartbeat_reclaimed",
			logging.Int("requeued", result.Requeued),
			logging.Int("failed", result.Failed),
			logging.String(logging.FieldErrorHint, "a worker stopped sending heartbeats; check for crashes or stuck stages"),
			logging.String(logging.FieldImpact, "affected jobs restart from the first stage"),
		)
	}
	return result, nil
}

// RunReclaimer calls ReclaimStale on every interval until ctx is done.
func (h *HeartbeatMonitor) RunReclaimer(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	if h.timeout <= 0 {
		return
	}
	interval := h.interval
	if interval <= 0 {
		interval = h.timeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := h.ReclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(h.logger, "reclaim stale jobs failed", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "stuck jobs may remain claimed"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StartLoop refreshes the claim on job until ctx is cancelled. When the
// store reports the claim is gone, onLost is called once and the loop ends.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, job *queue.Job, onLost func()) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.Heartbeat(ctx, job.ID, job.ClaimedBy)
			switch {
			case err == nil:
			case errors.Is(err, queue.ErrClaimLost):
				logging.WarnWithContext(logger, "job claim lost", "heartbeat_claim_lost",
					logging.String(logging.FieldErrorHint, "the job was reclaimed after a missed heartbeat"),
					logging.String(logging.FieldImpact, "this worker abandons the job; another attempt will run it"),
				)
				if onLost != nil {
					onLost()
				}
				return
			case errors.Is(err, context.Canceled):
				logger.Debug("heartbeat update cancelled")
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
