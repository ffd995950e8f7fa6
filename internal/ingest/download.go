package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/retry"
	"matchreel/internal/services"
	"matchreel/internal/stage"
)

// sourceBaseName is the file name (without extension) of downloaded inputs.
const sourceBaseName = "source"

// Stage resolves the job's video reference to a local file.
type Stage struct {
	cfg    *config.Config
	store  stage.ProgressStore
	client *http.Client
	retry  *retry.Executor
	logger *slog.Logger
}

// Option customises the download stage.
type Option func(*Stage)

// WithHTTPClient overrides the client used for remote videos.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Stage) {
		if client != nil {
			s.client = client
		}
	}
}

// WithRetry overrides the executor wrapping remote fetches.
func WithRetry(executor *retry.Executor) Option {
	return func(s *Stage) {
		if executor != nil {
			s.retry = executor
		}
	}
}

// NewStage builds the download stage.
func NewStage(cfg *config.Config, store stage.ProgressStore, logger *slog.Logger, opts ...Option) *Stage {
	logger = logging.NewComponentLogger(logger, "download")
	s := &Stage{
		cfg:    cfg,
		store:  store,
		client: &http.Client{},
		retry:  retry.New(retry.PolicyFromConfig(cfg.Retry), logger),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JobWorkDir returns the per-job working directory.
func JobWorkDir(cfg *config.Config, job *queue.Job) string {
	return filepath.Join(cfg.Paths.WorkDir, "jobs", job.PublicID)
}

// Prepare implements stage.Handler.
func (s *Stage) Prepare(_ context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.VideoRef) == "" {
		return services.Wrap(services.ErrValidation, "downloading", "prepare", "job has no video reference", nil)
	}
	if strings.TrimSpace(job.PublicID) == "" {
		return services.Wrap(services.ErrValidation, "downloading", "prepare", "job has no public id", nil)
	}
	return nil
}

// Execute implements stage.Handler.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)
	workDir := JobWorkDir(s.cfg, job)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "downloading", "create work dir", workDir, err)
	}
	job.WorkDir = workDir

	if !job.IsRemote() {
		return s.useLocal(job, logger)
	}
	return s.download(ctx, job, logger)
}

func (s *Stage) useLocal(job *queue.Job, logger *slog.Logger) error {
	resolved, err := config.ExpandPath(job.VideoRef)
	if err != nil {
		return services.Wrap(services.ErrValidation, "downloading", "resolve video path", job.VideoRef, err)
	}
	info, err := os.Stat(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return services.Wrap(services.ErrNotFound, "downloading", "stat video", resolved, err)
	case err != nil:
		return services.Wrap(services.ErrValidation, "downloading", "stat video", resolved, err)
	case info.IsDir():
		return services.Wrap(services.ErrValidation, "downloading", "stat video", "video path is a directory", nil)
	case info.Size() == 0:
		return services.Wrap(services.ErrValidation, "downloading", "stat video", "video file is empty", nil)
	}
	job.InputPath = resolved
	job.Downloaded = false
	logger.Info("using local video",
		logging.String(logging.FieldEventType, "video_local"),
		logging.String("path", resolved),
		logging.String("size", humanize.Bytes(uint64(info.Size()))),
	)
	return nil
}

func (s *Stage) download(ctx context.Context, job *queue.Job, logger *slog.Logger) error {
	source := strings.TrimSpace(job.VideoRef)
	dest := filepath.Join(job.WorkDir, sourceBaseName+remoteExtension(source))

	if job.Downloaded && job.InputPath == dest {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			logger.Info("reusing downloaded video",
				logging.String(logging.FieldEventType, "video_download_reused"),
				logging.String("path", dest),
			)
			return nil
		}
	}

	reporter := stage.NewReporter(s.store, job, queue.StatusDownloading, logger)
	_ = reporter.Report(ctx, 0, "Downloading video")

	size, err := retry.DoValue(ctx, s.retry, "download video", func(ctx context.Context) (int64, error) {
		return s.fetch(ctx, source, dest, reporter)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var statusErr *retry.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return services.Wrap(services.ErrNotFound, "downloading", "fetch video", source, err)
		}
		if services.FailureKind(err) != "unknown" {
			return err
		}
		if retry.IsRetryable(err) {
			return services.Wrap(services.ErrTransient, "downloading", "fetch video", source, err)
		}
		return services.Wrap(services.ErrValidation, "downloading", "fetch video", source, err)
	}

	job.InputPath = dest
	job.Downloaded = true
	_ = reporter.Report(ctx, 1, "Downloaded "+humanize.Bytes(uint64(size)))
	logger.Info("video downloaded",
		logging.String(logging.FieldEventType, "video_downloaded"),
		logging.String("path", dest),
		logging.Int64("bytes", size),
	)
	return nil
}

func (s *Stage) fetch(ctx context.Context, source, dest string, reporter *stage.Reporter) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, retry.Permanent(services.Wrap(services.ErrValidation, "downloading", "build request", source, err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse(resp); err != nil {
		return 0, err
	}

	partial := dest + ".part"
	out, err := os.Create(partial)
	if err != nil {
		return 0, retry.Permanent(services.Wrap(services.ErrConfiguration, "downloading", "create file", partial, err))
	}
	counter := &progressWriter{total: resp.ContentLength, report: func(fraction float64, written int64) {
		_ = reporter.Report(ctx, fraction, fmt.Sprintf("Downloaded %s", humanize.Bytes(uint64(written))))
	}}
	written, copyErr := io.Copy(io.MultiWriter(out, counter), resp.Body)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && resp.ContentLength > 0 && written != resp.ContentLength {
		copyErr = io.ErrUnexpectedEOF
	}
	if copyErr == nil && written == 0 {
		copyErr = retry.Permanent(services.Wrap(services.ErrValidation, "downloading", "fetch video", "remote video is empty", nil))
	}
	if copyErr != nil {
		_ = os.Remove(partial)
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, copyErr
	}
	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return 0, retry.Permanent(services.Wrap(services.ErrConfiguration, "downloading", "finalize file", dest, err))
	}
	return written, nil
}

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	const name = "download"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(s.cfg.Paths.WorkDir) == "" {
		return stage.Unhealthy(name, "work directory not configured")
	}
	return stage.Healthy(name)
}

// RemoveDownload deletes a fetched input file. Local inputs are never touched.
func RemoveDownload(job *queue.Job) error {
	if job == nil || !job.Downloaded || strings.TrimSpace(job.InputPath) == "" {
		return nil
	}
	if err := os.Remove(job.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove downloaded video: %w", err)
	}
	return nil
}

func remoteExtension(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ".mp4"
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	switch ext {
	case ".mp4", ".mov", ".mkv", ".m4v", ".avi", ".webm", ".ts":
		return ext
	default:
		return ".mp4"
	}
}

// progressWriter reports download progress in 5% steps.
type progressWriter struct {
	total   int64
	written int64
	last    float64
	report  func(fraction float64, written int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total <= 0 || p.report == nil {
		return len(b), nil
	}
	fraction := float64(p.written) / float64(p.total)
	if fraction-p.last >= 0.05 && fraction < 1 {
		p.last = fraction
		p.report(fraction, p.written)
	}
	return len(b), nil
}
