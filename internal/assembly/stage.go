package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"matchreel/internal/analysis"
	"matchreel/internal/config"
	"matchreel/internal/deps"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/stage"
)

// Stage hands ranked highlights and manual cuts to an Assembler and stores
// the produced clip list on the job.
type Stage struct {
	cfg       *config.Config
	store     stage.ProgressStore
	assembler Assembler
	logger    *slog.Logger
}

// NewStage builds the assemble stage. A nil assembler uses FFmpegAssembler.
func NewStage(cfg *config.Config, store stage.ProgressStore, assembler Assembler, logger *slog.Logger) *Stage {
	logger = logging.NewComponentLogger(logger, "assemble-stage")
	if assembler == nil {
		assembler = NewFFmpegAssembler(cfg.FFmpegBinary(), logger)
	}
	return &Stage{cfg: cfg, store: store, assembler: assembler, logger: logger}
}

// Prepare implements stage.Handler.
func (s *Stage) Prepare(_ context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.InputPath) == "" {
		return services.Wrap(services.ErrValidation, "assembling", "prepare", "job has no input video", nil)
	}
	if strings.TrimSpace(job.WorkDir) == "" {
		return services.Wrap(services.ErrValidation, "assembling", "prepare", "job has no work directory", nil)
	}
	return nil
}

// Execute implements stage.Handler.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)
	result, err := analysis.DecodeResult(job.HighlightsJSON)
	if err != nil {
		return err
	}
	cuts, err := job.ManualCuts()
	if err != nil {
		return services.Wrap(services.ErrValidation, "assembling", "decode manual cuts", "", err)
	}

	reporter := stage.NewReporter(s.store, job, queue.StatusAssembling, logger)
	_ = reporter.Report(ctx, 0, fmt.Sprintf("Assembling %d highlights", len(result.Highlights)+len(cuts)))

	out, err := s.assembler.Assemble(ctx, Request{
		JobID:            job.PublicID,
		VideoPath:        job.InputPath,
		VideoDuration:    result.Stats.VideoSeconds,
		WorkDir:          job.WorkDir,
		Club:             job.Club,
		Opponent:         job.Opponent,
		Highlights:       result.Highlights,
		ManualCuts:       cuts,
		PlayerHighlights: job.PlayerHighlights,
		MinClipSeconds:   s.cfg.Analysis.MinClipSeconds,
		MaxClipSeconds:   s.cfg.Analysis.MaxClipSeconds,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if services.FailureKind(err) == "unknown" {
			return services.Wrap(services.ErrExternalTool, "assembling", "assemble clips", "", err)
		}
		return err
	}
	if len(out.Clips) == 0 {
		logging.WarnWithContext(logger, "no clips assembled", "assembly_empty",
			logging.Int("highlights", len(result.Highlights)),
			logging.String(logging.FieldErrorHint, "add manual cuts or timestamped notes"),
			logging.String(logging.FieldImpact, "job completes without uploads"),
		)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return services.Wrap(services.ErrValidation, "assembling", "encode clips", "", err)
	}
	job.ClipsJSON = string(data)
	_ = reporter.Report(ctx, 1, fmt.Sprintf("Assembled %d clips", len(out.Clips)))
	return nil
}

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	const name = "assemble"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	statuses := deps.CheckBinaries(deps.MediaRequirements(s.cfg.FFmpegBinary(), s.cfg.FFprobeBinary()))
	if missing := deps.Missing(statuses); len(missing) > 0 {
		return stage.Unhealthy(name, deps.Describe(missing))
	}
	return stage.Healthy(name)
}

// DecodeOutput restores the clip list stored by the assemble stage. An empty
// value means nothing was assembled.
func DecodeOutput(raw string) (Output, error) {
	var out Output
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, services.Wrap(services.ErrValidation, "uploading", "decode clips", "stored clip list is invalid", err)
	}
	return out, nil
}
