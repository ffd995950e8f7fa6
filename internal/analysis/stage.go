package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"matchreel/internal/config"
	"matchreel/internal/deps"
	"matchreel/internal/logging"
	"matchreel/internal/media"
	"matchreel/internal/notes"
	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/stage"
)

// VideoOpener opens the job's input for frame extraction.
type VideoOpener func(ctx context.Context, path string) (media.VideoHandle, error)

// Stage runs the Scene Analyzer for one job and stores the ranked highlights.
type Stage struct {
	cfg     *config.Config
	store   stage.ProgressStore
	logger  *slog.Logger
	open    VideoOpener
	options []Option
}

// StageOption customises the analyze stage.
type StageOption func(*Stage)

// WithVideoOpener replaces ffmpeg-backed frame extraction.
func WithVideoOpener(open VideoOpener) StageOption {
	return func(s *Stage) {
		if open != nil {
			s.open = open
		}
	}
}

// WithAnalyzerOptions applies opts to every per-job Analyzer.
func WithAnalyzerOptions(opts ...Option) StageOption {
	return func(s *Stage) {
		s.options = append(s.options, opts...)
	}
}

// NewStage builds the analyze stage.
func NewStage(cfg *config.Config, store stage.ProgressStore, logger *slog.Logger, opts ...StageOption) *Stage {
	s := &Stage{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "analyze-stage"),
	}
	s.open = func(ctx context.Context, path string) (media.VideoHandle, error) {
		video, err := media.Open(ctx, path, media.Options{
			FFmpegBinary:  cfg.FFmpegBinary(),
			FFprobeBinary: cfg.FFprobeBinary(),
			Width:         cfg.Analysis.FrameWidth,
			Height:        cfg.Analysis.FrameHeight,
		})
		if err != nil {
			return nil, err
		}
		return video, nil
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare implements stage.Handler.
func (s *Stage) Prepare(_ context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.InputPath) == "" {
		return services.Wrap(services.ErrValidation, "analyzing", "prepare", "job has no input video", nil)
	}
	return nil
}

// Execute implements stage.Handler.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)
	timeline, err := notes.DecodeTimeline(job.NotesJSON)
	if err != nil {
		return err
	}

	video, err := s.open(ctx, job.InputPath)
	if err != nil {
		return err
	}
	defer video.Close()

	reporter := stage.NewReporter(s.store, job, queue.StatusAnalyzing, logger)
	_ = reporter.Report(ctx, 0, fmt.Sprintf("Scanning %s of video", notes.FormatClock(video.Duration())))

	opts := append([]Option{WithProgress(func(fraction float64) {
		_ = reporter.Report(ctx, fraction, "Scanning video")
	})}, s.options...)
	analyzer := New(s.cfg.Analysis, logger, opts...)

	result, err := analyzer.Analyze(ctx, video, timeline, Options{})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrExternalTool, "analyzing", "scan video", "", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return services.Wrap(services.ErrValidation, "analyzing", "encode highlights", "", err)
	}
	job.HighlightsJSON = string(data)
	_ = reporter.Report(ctx, 1, fmt.Sprintf("Found %d highlights", len(result.Highlights)))
	return nil
}

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	const name = "analyze"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	statuses := deps.CheckBinaries(deps.MediaRequirements(s.cfg.FFmpegBinary(), s.cfg.FFprobeBinary()))
	if missing := deps.Missing(statuses); len(missing) > 0 {
		return stage.Unhealthy(name, deps.Describe(missing))
	}
	return stage.Healthy(name)
}

// DecodeResult restores the analysis result stored by the analyze stage.
func DecodeResult(raw string) (Result, error) {
	var result Result
	if strings.TrimSpace(raw) == "" {
		return result, services.Wrap(services.ErrValidation, "assembling", "decode highlights", "no analysis result stored", nil)
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, services.Wrap(services.ErrValidation, "assembling", "decode highlights", "stored analysis result is invalid", err)
	}
	return result, nil
}
