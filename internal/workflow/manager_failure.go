package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/services"
)

const releaseTimeout = 10 * time.Second

func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, stageName string, stageErr error) {
	message := classifyStageFailure(stageName, stageErr)
	kind := services.FailureKind(stageErr)

	logger.Error("stage failed", logging.Args(
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldStage, stageName),
		logging.String(logging.FieldErrorKind, kind),
		logging.String(logging.FieldErrorHint, failureHint(kind)),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
	)...)

	if err := m.store.MarkFailed(ctx, job, queue.StatusFailed, message, kind); err != nil {
		if errors.Is(err, queue.ErrClaimLost) {
			m.abandonJob(logger, job, stageName)
			return
		}
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
	m.setLastError(stageErr)
	m.setLastJob(job)
	m.recordOutcome(false)
	m.notifyFailure(ctx, job, stageName, message)
}

func (m *Manager) cancelJob(ctx context.Context, logger *slog.Logger, job *queue.Job, nextStage string) {
	if err := m.store.MarkFailed(ctx, job, queue.StatusCancelled, queue.CancelReason, "cancelled"); err != nil {
		if errors.Is(err, queue.ErrClaimLost) {
			m.abandonJob(logger, job, nextStage)
			return
		}
		logger.Error("failed to persist cancellation", logging.Error(err))
		return
	}
	m.setLastJob(job)
	logger.Info("job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.String("before_stage", nextStage),
	)
}

// releaseJob hands the job back to the queue during shutdown so the next
// daemon run picks it up without consuming an attempt.
func (m *Manager) releaseJob(ctx context.Context, logger *slog.Logger, job *queue.Job, stageName string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := m.store.Release(releaseCtx, job, fmt.Sprintf("Interrupted during %s; requeued", stageName)); err != nil {
		if errors.Is(err, queue.ErrClaimLost) {
			return
		}
		logging.WarnWithContext(logger, "failed to release job on shutdown", "job_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the reclaimer will requeue it after the heartbeat timeout"),
			logging.String(logging.FieldImpact, "job restarts later than usual"),
		)
		return
	}
	logger.Info("job released on shutdown",
		logging.String(logging.FieldEventType, "job_released"),
		logging.String(logging.FieldStage, stageName),
	)
}

func (m *Manager) abandonJob(logger *slog.Logger, job *queue.Job, stageName string) {
	logging.WarnWithContext(logger, "abandoning job after claim loss", "job_abandoned",
		logging.String(logging.FieldStage, stageName),
		logging.String(logging.FieldErrorHint, "heartbeats stopped long enough for the reclaimer to requeue the job"),
		logging.String(logging.FieldImpact, "another attempt owns the job now"),
	)
	m.setLastError(fmt.Errorf("job %s: %w", job.PublicID, queue.ErrClaimLost))
}

func classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", stageName)
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		return fmt.Sprintf("%s failed", stageName)
	}
	return fmt.Sprintf("%s failed: %s", stageName, message)
}

func failureHint(kind string) string {
	switch kind {
	case "validation":
		return "fix the submission and retry the job"
	case "configuration":
		return "check matchreel config and restart the daemon"
	case "not_found":
		return "check the video reference"
	case "timeout":
		return "raise worker.stage_timeouts for this stage or check for a stuck tool"
	case "external_tool":
		return "check ffmpeg/ffprobe and the video host"
	case "transient":
		return "retry the job once the upstream service recovers"
	default:
		return "check daemon logs for the stage error"
	}
}
