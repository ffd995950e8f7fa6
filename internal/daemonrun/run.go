package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"matchreel/internal/analysis"
	"matchreel/internal/api"
	"matchreel/internal/assembly"
	"matchreel/internal/config"
	"matchreel/internal/daemon"
	"matchreel/internal/deps"
	"matchreel/internal/health"
	"matchreel/internal/ingest"
	"matchreel/internal/logging"
	"matchreel/internal/notes"
	"matchreel/internal/notifications"
	"matchreel/internal/preflight"
	"matchreel/internal/queue"
	"matchreel/internal/retry"
	"matchreel/internal/storage"
	"matchreel/internal/webhook"
	"matchreel/internal/workflow"
)

// keepRunLogs run logs survive retention regardless of age.
const keepRunLogs = 3

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the matchreel daemon and blocks until a signal or ctx ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logger, runLog, err := logging.NewRunLogger(cfg, runID, opts.LogLevel, opts.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:        cfg.Paths.LogDir,
		Pattern:    "matchreel-*.log",
		Exclude:    []string{runLog.Path},
		KeepNewest: keepRunLogs,
	})
	pidPath := filepath.Join(cfg.Paths.DataDir, "matchreel.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	notifier := notifications.NewService(cfg)
	components, err := buildComponents(signalCtx, cfg, store, logger, notifier)
	if err != nil {
		store.Close()
		return err
	}

	d, err := daemon.New(cfg, store, logger, components)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, the api bind address and queue database access"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("matchreel daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// buildComponents wires every long-running service. Optional integrations
// that are not configured are logged and skipped rather than failing startup.
func buildComponents(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) (daemon.Components, error) {
	policy := retry.PolicyFromConfig(cfg.Retry)

	var host storage.VideoHost
	if httpHost, err := storage.NewHTTPHost(cfg.Storage.Host, policy, logger); err != nil {
		logging.WarnWithContext(logger, "video host disabled", "video_host_disabled",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set storage.host.base_url to enable uploads"),
			logging.String(logging.FieldImpact, "jobs will fail at the upload stage"),
		)
	} else {
		host = httpHost
	}

	var archive storage.Archive
	if cfg.Storage.Archive.Enabled {
		minioArchive, err := storage.NewMinioArchive(cfg.Storage.Archive, logger)
		if err != nil {
			return daemon.Components{}, err
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = minioArchive.EnsureBucket(bucketCtx)
		cancel()
		if err != nil {
			logging.WarnWithContext(logger, "archive bucket check failed", "archive_bucket_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check storage.archive endpoint and credentials"),
			)
		}
		archive = minioArchive
	}

	coordinator := storage.NewCoordinator(cfg.Storage, host, archive, store, logger)
	alerts := storage.NewAlertTracker(storage.ThresholdsFromConfig(cfg.Storage), notifier, logger)
	cleaner := storage.NewCleaner(cfg, archive, store, alerts, notifier, logger)

	manager := workflow.NewManager(cfg, store, logger,
		workflow.WithNotifier(notifier),
		workflow.WithWebhook(webhook.NewClient(cfg, logger)),
	)
	manager.ConfigureStages(workflow.StageSet{
		Download:   ingest.NewStage(cfg, store, logger),
		ParseNotes: notes.NewStage(store, nil, logger),
		Analyze:    analysis.NewStage(cfg, store, logger),
		Assemble:   assembly.NewStage(cfg, store, assembly.NewFFmpegAssembler(cfg.FFmpegBinary(), logger), logger),
		Upload:     storage.NewStage(cfg, store, coordinator, logger, storage.WithCleaner(cleaner)),
	})
	scheduler := storage.NewScheduler(cleaner, time.Duration(cfg.Storage.CleanupInterval)*time.Second, manager.ActiveWorkDirs, logger)

	monitor, err := health.New(cfg.Health, cfg.Retry, health.NewNtfyNotifier(notifier, logger), logger)
	if err != nil {
		return daemon.Components{}, fmt.Errorf("health monitor: %w", err)
	}

	jobs := api.NewJobService(store, cfg.Worker.Concurrency)
	components := daemon.Components{
		Workflow:    manager,
		Jobs:        jobs,
		Monitor:     monitor,
		Scheduler:   scheduler,
		Cleaner:     cleaner,
		Coordinator: coordinator,
	}
	if cfg.Intake.Enabled {
		components.Intake = ingest.NewConsumer(cfg.Intake, jobs, retry.New(policy, logger), logger)
	}
	return components, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := deps.CheckBinaries(deps.MediaRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("video_host_configured", cfg.Storage.Host.BaseURL != ""),
		logging.Bool("archive_enabled", cfg.Storage.Archive.Enabled),
		logging.Bool("intake_enabled", cfg.Intake.Enabled),
		logging.Bool("ntfy_configured", cfg.Notifications.NtfyTopic != ""),
		logging.Int("health_endpoints", len(cfg.Health.Endpoints)),
	}
	for _, st := range statuses {
		attrs = append(attrs, logging.Bool(strings.ToLower(st.Name)+"_available", st.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	if missing := deps.Missing(statuses); len(missing) > 0 {
		logging.WarnWithContext(logger, "required binaries missing", "dependency_missing",
			logging.String("missing", deps.Describe(missing)),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set paths in config"),
			logging.String(logging.FieldImpact, "analysis and assembly will fail"),
		)
	}
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, r := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "jobs depending on this service may fail"),
		)
	}
}
