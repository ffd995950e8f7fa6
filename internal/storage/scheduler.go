package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"matchreel/internal/logging"
)

// ErrCleanupRunning is returned by RunNow while another cycle is in flight.
var ErrCleanupRunning = errors.New("storage cleanup already running")

// ActiveDirsFunc names the work directories of jobs still in flight.
type ActiveDirsFunc func(ctx context.Context) map[string]struct{}

// Scheduler runs cleanup cycles on a fixed interval.
type Scheduler struct {
	cleaner  *Cleaner
	interval time.Duration
	active   ActiveDirsFunc
	logger   *slog.Logger

	mu      sync.Mutex
	nextRun time.Time
	running bool
}

// NewScheduler builds a scheduler. interval <= 0 uses six hours.
func NewScheduler(cleaner *Cleaner, interval time.Duration, active ActiveDirsFunc, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		cleaner:  cleaner,
		interval: interval,
		active:   active,
		logger:   logging.NewComponentLogger(logger, "storage-scheduler"),
	}
}

// Run blocks until ctx is done. Alerts are checked immediately; the first
// cleanup cycle runs after one interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.cleaner.CheckAlerts(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.setNext(s.cleaner.clock().Add(s.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunNow(ctx); errors.Is(err, ErrCleanupRunning) {
				s.logger.Debug("scheduled cleanup skipped; a manual cycle is running")
			}
			s.setNext(s.cleaner.clock().Add(s.interval))
		}
	}
}

// RunNow executes one cleanup cycle. It returns ErrCleanupRunning without
// doing any work when another cycle has not finished.
func (s *Scheduler) RunNow(ctx context.Context) ([]CleanupReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrCleanupRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var active map[string]struct{}
	if s.active != nil {
		active = s.active(ctx)
	}
	reports, err := s.cleaner.RunCycle(ctx, active)
	if err != nil {
		logging.WarnWithContext(s.logger, "cleanup cycle incomplete", "cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check archive connectivity"),
			logging.String(logging.FieldImpact, "storage may exceed retention"),
		)
	}
	return reports, err
}

// NextRun returns when the next scheduled cycle is due.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Status reports storage state including the next scheduled run.
func (s *Scheduler) Status(ctx context.Context) (Report, error) {
	return s.cleaner.Status(ctx, s.NextRun())
}

func (s *Scheduler) setNext(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}
