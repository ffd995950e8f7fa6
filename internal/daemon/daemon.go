package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"matchreel/internal/api"
	"matchreel/internal/config"
	"matchreel/internal/deps"
	"matchreel/internal/health"
	"matchreel/internal/ingest"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/storage"
	"matchreel/internal/workflow"
)

// Components are the long-running services the daemon owns. Only Workflow
// is required; the rest are skipped when nil. Jobs defaults to a service
// over the daemon's store.
type Components struct {
	Workflow    *workflow.Manager
	Jobs        *api.JobService
	Monitor     *health.Monitor
	Scheduler   *storage.Scheduler
	Cleaner     *storage.Cleaner
	Coordinator *storage.Coordinator
	Intake      *ingest.Consumer
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	components Components
	jobs       *api.JobService
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Bind         string
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Database     queue.DatabaseHealth
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, components Components) (*Daemon, error) {
	if cfg == nil || store == nil || components.Workflow == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "matchreel.lock")
	jobs := components.Jobs
	if jobs == nil {
		jobs = api.NewJobService(store, cfg.Worker.Concurrency)
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		components: components,
		jobs:       jobs,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches every component.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another matchreel daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.components.Workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.components.Workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	if monitor := d.components.Monitor; monitor != nil {
		monitor.Start(runCtx)
	}
	if scheduler := d.components.Scheduler; scheduler != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			scheduler.Run(runCtx)
		}()
	}
	if intake := d.components.Intake; intake != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := intake.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logging.ErrorWithContext(d.logger, "amqp intake stopped", "intake_stopped",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check [intake] url and broker availability"),
				)
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("matchreel daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("bind", d.api.address()),
		logging.Bool("health_monitor", d.components.Monitor != nil),
		logging.Bool("storage_scheduler", d.components.Scheduler != nil),
		logging.Bool("intake", d.components.Intake != nil),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if monitor := d.components.Monitor; monitor != nil {
		monitor.Stop()
	}
	d.components.Workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("matchreel daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the address the HTTP API listens on, or "" when stopped.
func (d *Daemon) Addr() string {
	return d.api.address()
}

// Jobs exposes the job service shared by the HTTP API and the AMQP intake.
func (d *Daemon) Jobs() *api.JobService {
	return d.jobs
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Bind:         d.api.address(),
		Workflow:     d.components.Workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: deps.CheckBinaries(deps.MediaRequirements(d.cfg.FFmpegBinary(), d.cfg.FFprobeBinary())),
	}
	dbHealth, err := d.store.CheckHealth(ctx)
	if err != nil && dbHealth.Error == "" {
		dbHealth.Error = err.Error()
	}
	status.Database = dbHealth
	return status
}
