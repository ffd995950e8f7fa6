package stage

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"matchreel/internal/logging"
	"matchreel/internal/queue"
)

// ProgressStore is the part of queue.Store stages use to publish progress.
type ProgressStore interface {
	UpdateProgress(ctx context.Context, job *queue.Job, status queue.Status, progress float64, message string) error
}

// pipeline lists processing statuses in execution order; each status owns
// the progress band up to the next one's floor.
var pipeline = []queue.Status{
	queue.StatusInitializing,
	queue.StatusDownloading,
	queue.StatusParsingNotes,
	queue.StatusAnalyzing,
	queue.StatusAssembling,
	queue.StatusUploading,
	queue.StatusCompleted,
}

// Band returns the progress range owned by status.
func Band(status queue.Status) (float64, float64) {
	for i, s := range pipeline {
		if s == status && i+1 < len(pipeline) {
			return queue.ProgressFloor(s), queue.ProgressFloor(pipeline[i+1])
		}
	}
	floor := queue.ProgressFloor(status)
	return floor, floor
}

// Reporter maps a stage-local completion fraction onto the job's progress band.
type Reporter struct {
	store  ProgressStore
	job    *queue.Job
	status queue.Status
	from   float64
	to     float64
	logger *slog.Logger
}

// NewReporter builds a reporter for job while it is in status.
func NewReporter(store ProgressStore, job *queue.Job, status queue.Status, logger *slog.Logger) *Reporter {
	from, to := Band(status)
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reporter{store: store, job: job, status: status, from: from, to: to, logger: logger}
}

// Report publishes fraction (0..1) of the stage as job progress. Completing
// a stage never reports the next stage's floor; that belongs to the next stage.
func (r *Reporter) Report(ctx context.Context, fraction float64, message string) error {
	if r == nil || r.store == nil || r.job == nil {
		return nil
	}
	fraction = math.Max(0, math.Min(1, fraction))
	progress := math.Round((r.from+(r.to-r.from)*fraction)*10) / 10
	if r.to > r.from && progress >= r.to {
		progress = math.Round((r.to-0.1)*10) / 10
	}
	err := r.store.UpdateProgress(ctx, r.job, r.status, progress, message)
	if err != nil && !errors.Is(err, queue.ErrClaimLost) {
		logging.WarnWithContext(r.logger, "progress update failed", "progress_update_failed",
			logging.String("status", string(r.status)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database health"),
			logging.String(logging.FieldImpact, "job status may lag behind actual progress"),
		)
	}
	return err
}
