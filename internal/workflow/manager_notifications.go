package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"matchreel/internal/ingest"
	"matchreel/internal/logging"
	"matchreel/internal/notifications"
	"matchreel/internal/queue"
	"matchreel/internal/webhook"
)

func (m *Manager) completeJob(ctx context.Context, logger *slog.Logger, job *queue.Job, elapsed time.Duration) {
	if err := m.store.MarkCompleted(ctx, job, job.ResultJSON); err != nil {
		if errors.Is(err, queue.ErrClaimLost) {
			m.abandonJob(logger, job, StageUpload)
			return
		}
		logger.Error("failed to persist job completion", logging.Error(err))
		m.setLastError(err)
		return
	}
	m.setLastJob(job)
	m.recordOutcome(true)
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.Duration("elapsed", elapsed),
		logging.Int("attempt", job.Attempts),
	)

	if !m.cfg.Worker.KeepDownloads {
		if err := ingest.RemoveDownload(job); err != nil {
			logging.WarnWithContext(logger, "downloaded video not removed", "download_cleanup_failed",
				logging.Error(err),
				logging.String("path", job.InputPath),
				logging.String(logging.FieldErrorHint, "remove the file manually or let the work dir sweep reclaim it"),
				logging.String(logging.FieldImpact, "disk space held until the next sweep"),
			)
		}
	}

	payload := webhook.Payload{
		JobID:            job.PublicID,
		Status:           webhook.StatusCompleted,
		ProcessingTimeMs: processingTime(job, elapsed).Milliseconds(),
	}
	if raw := strings.TrimSpace(job.ResultJSON); raw != "" && json.Valid([]byte(raw)) {
		payload.Result = json.RawMessage(raw)
	}
	m.webhook.Notify(ctx, job.WebhookURL, payload)
}

func (m *Manager) notifyFailure(ctx context.Context, job *queue.Job, stageName, message string) {
	m.webhook.Notify(ctx, job.WebhookURL, webhook.Payload{
		JobID:            job.PublicID,
		Status:           webhook.StatusFailed,
		Error:            message,
		ProcessingTimeMs: processingTime(job, 0).Milliseconds(),
	})

	if m.notifier == nil {
		return
	}
	err := m.notifier.Publish(ctx, notifications.EventJobFailed, notifications.Payload{
		"job":   job.DisplayName(),
		"stage": stageName,
		"error": message,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send failure notification")
		} else {
			m.logger.Debug("failure notification failed", logging.Error(err))
		}
	}
}

func processingTime(job *queue.Job, fallback time.Duration) time.Duration {
	if elapsed := job.ProcessingTime(); elapsed > 0 {
		return elapsed
	}
	return fallback
}
