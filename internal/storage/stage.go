package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"matchreel/internal/assembly"
	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/stage"
)

// Stage publishes a job's assembled clips and stores the batch as the job
// result.
type Stage struct {
	cfg         *config.Config
	store       stage.ProgressStore
	coordinator *Coordinator
	cleaner     *Cleaner
	logger      *slog.Logger
}

// StageOption customises the upload stage.
type StageOption func(*Stage)

// WithCleaner re-checks storage after every successful batch and runs the
// emergency cleanup once the archive reaches the critical threshold.
func WithCleaner(cleaner *Cleaner) StageOption {
	return func(s *Stage) { s.cleaner = cleaner }
}

// NewStage builds the upload stage.
func NewStage(cfg *config.Config, store stage.ProgressStore, coordinator *Coordinator, logger *slog.Logger, opts ...StageOption) *Stage {
	s := &Stage{cfg: cfg, store: store, coordinator: coordinator, logger: logging.NewComponentLogger(logger, "upload-stage")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare implements stage.Handler.
func (s *Stage) Prepare(_ context.Context, job *queue.Job) error {
	if s.coordinator == nil {
		return services.Wrap(services.ErrConfiguration, "uploading", "prepare", "storage is not configured", nil)
	}
	if strings.TrimSpace(job.ClipsJSON) == "" {
		return services.Wrap(services.ErrValidation, "uploading", "prepare", "job has no assembled clips", nil)
	}
	return nil
}

// Execute implements stage.Handler. A batch where some clips fail still
// completes the job; the failures travel in the result. The stage fails
// only when every clip failed.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)
	out, err := assembly.DecodeOutput(job.ClipsJSON)
	if err != nil {
		return err
	}
	reporter := stage.NewReporter(s.store, job, queue.StatusUploading, logger)
	_ = reporter.Report(ctx, 0, fmt.Sprintf("Uploading %d clips", len(out.Clips)))

	batch, err := s.coordinator.UploadClips(ctx, MetaFromJob(job), out.Clips, func(done, total int, title string) {
		_ = reporter.Report(ctx, float64(done)/float64(total), fmt.Sprintf("Uploaded %d/%d: %s", done, total, title))
	})
	if err != nil {
		return err
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return services.Wrap(services.ErrValidation, "uploading", "encode result", "", err)
	}
	job.ResultJSON = string(data)

	if len(batch.Failures) > 0 {
		logging.WarnWithContext(logger, "some clips were not uploaded", "upload_partial",
			logging.Int("uploaded", len(batch.Uploads)),
			logging.Int("failed", len(batch.Failures)),
			logging.String(logging.FieldErrorHint, "see job result for per-clip errors"),
		)
		if len(batch.Uploads) == 0 {
			return services.Wrap(services.ErrTransient, "uploading", "upload clips",
				fmt.Sprintf("all %d clips failed: %s", len(batch.Failures), batch.Failures[0].Error), nil)
		}
	}
	s.checkCapacity(ctx, logger)
	return nil
}

// checkCapacity re-evaluates storage after a batch. Errors are only logged.
func (s *Stage) checkCapacity(ctx context.Context, logger *slog.Logger) {
	if s.cleaner == nil {
		return
	}
	level := s.cleaner.CheckAlerts(ctx)
	if level.rank() < LevelCritical.rank() {
		return
	}
	report, err := s.cleaner.RunEmergency(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "post-upload emergency cleanup failed", "emergency_cleanup_failed",
			logging.String("level", string(level)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check archive connectivity"),
			logging.String(logging.FieldImpact, "archive stays above the critical threshold"),
		)
		return
	}
	logger.Info("post-upload emergency cleanup finished",
		logging.String(logging.FieldEventType, "emergency_cleanup"),
		logging.String("level", string(level)),
		logging.Int("files_deleted", report.FilesDeleted),
		logging.Float64("utilization_after", report.After),
	)
}

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	const name = "upload"
	if s.coordinator == nil || s.coordinator.host == nil {
		return stage.Unhealthy(name, "video host not configured")
	}
	return stage.Healthy(name)
}

// DecodeBatch restores the upload batch stored as a job result.
func DecodeBatch(raw string) (UploadBatch, error) {
	var batch UploadBatch
	if strings.TrimSpace(raw) == "" {
		return batch, nil
	}
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		return batch, fmt.Errorf("decode upload batch: %w", err)
	}
	return batch, nil
}
