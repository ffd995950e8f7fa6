package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/notifications"
	"matchreel/internal/queue"
)

// Alert targets.
const (
	TargetArchive = "archive"
	TargetWorkDir = "workdir"
)

// CleanupStore records cleanup outcomes.
type CleanupStore interface {
	MarkArchiveDeleted(ctx context.Context, key string, at time.Time) error
	RecordCleanupRun(ctx context.Context, run *queue.CleanupRun) error
	LastCleanupRun(ctx context.Context, kinds ...string) (*queue.CleanupRun, error)
	CleanupTotals(ctx context.Context) (queue.CleanupTotals, error)
}

// CleanupReport summarises one cleanup pass.
type CleanupReport struct {
	Kind         string    `json:"kind"`
	FilesDeleted int       `json:"filesDeleted"`
	BytesFreed   int64     `json:"bytesFreed"`
	Errors       int       `json:"errors"`
	Deleted      []string  `json:"deleted,omitempty"`
	Before       float64   `json:"utilizationBefore"`
	After        float64   `json:"utilizationAfter"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// Cleaner prunes the temporary archive and stale work directories. Copies
// on the permanent video host are never touched.
type Cleaner struct {
	cfg       config.Storage
	archive   Archive
	store     CleanupStore
	alerts    *AlertTracker
	notifier  notifications.Service
	jobsDir   string
	dirMaxAge time.Duration
	logger    *slog.Logger
	clock     func() time.Time
}

// NewCleaner builds a Cleaner. archive may be nil when the archive is
// disabled, in which case only work directories are swept.
func NewCleaner(cfg *config.Config, archive Archive, store CleanupStore, alerts *AlertTracker, notifier notifications.Service, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		cfg:       cfg.Storage,
		archive:   archive,
		store:     store,
		alerts:    alerts,
		notifier:  notifier,
		jobsDir:   filepath.Join(cfg.Paths.WorkDir, "jobs"),
		dirMaxAge: time.Duration(cfg.Worker.WorkDirRetentionHours) * time.Hour,
		logger:    logging.NewComponentLogger(logger, "storage-cleanup"),
		clock:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (c *Cleaner) SetClock(clock func() time.Time) {
	if clock != nil {
		c.clock = clock
		if c.alerts != nil {
			c.alerts.clock = clock
		}
	}
}

// RunRetention deletes archive objects older than the retention window.
func (c *Cleaner) RunRetention(ctx context.Context) (CleanupReport, error) {
	report := CleanupReport{Kind: queue.CleanupRetention, StartedAt: c.clock()}
	if c.archive == nil {
		return report, nil
	}
	days := c.cfg.RetentionDays
	if days <= 0 {
		days = 30
	}
	cutoff := report.StartedAt.Add(-time.Duration(days) * 24 * time.Hour)

	objects, err := c.archive.List(ctx)
	if err != nil {
		return report, err
	}
	before := usageOf(objects, c.cfg.Archive.CapacityBytes)
	report.Before = before.Utilization()
	var expired []ArchiveObject
	for _, obj := range objects {
		if obj.LastModified.Before(cutoff) {
			expired = append(expired, obj)
		}
	}
	c.deleteObjects(ctx, &report, expired)
	report.After = usageAfter(before, report.BytesFreed).Utilization()
	return c.finish(ctx, report, fmt.Sprintf("older than %d days", days))
}

// RunEmergency deletes the oldest archive objects until utilisation drops
// below the critical threshold. It does nothing when already below it.
func (c *Cleaner) RunEmergency(ctx context.Context) (CleanupReport, error) {
	report := CleanupReport{Kind: queue.CleanupEmergency, StartedAt: c.clock()}
	if c.archive == nil || c.cfg.Archive.CapacityBytes <= 0 {
		return report, nil
	}
	objects, err := c.archive.List(ctx)
	if err != nil {
		return report, err
	}
	SortOldestFirst(objects)
	usage := usageOf(objects, c.cfg.Archive.CapacityBytes)
	report.Before = usage.Utilization()
	critical := c.cfg.CriticalThreshold
	if critical <= 0 || report.Before < critical {
		report.After = report.Before
		report.FinishedAt = c.clock()
		return report, nil
	}

	c.logger.Warn("emergency cleanup started",
		logging.String(logging.FieldEventType, "emergency_cleanup"),
		logging.Float64("utilization", report.Before),
		logging.Float64("critical_threshold", critical),
		logging.String(logging.FieldImpact, "oldest archive copies are being deleted early"),
	)
	var victims []ArchiveObject
	used := usage.UsedBytes
	for _, obj := range objects {
		if float64(used)/float64(usage.CapacityBytes) < critical {
			break
		}
		victims = append(victims, obj)
		used -= obj.Size
	}
	c.deleteObjects(ctx, &report, victims)
	report.After = usageAfter(usage, report.BytesFreed).Utilization()
	return c.finish(ctx, report, fmt.Sprintf("utilisation %.1f%% over critical", report.Before*100))
}

// SweepWorkDirs removes stale job work directories. Directories named in
// active belong to running jobs and are kept.
func (c *Cleaner) SweepWorkDirs(ctx context.Context, active map[string]struct{}) (CleanupReport, error) {
	report := CleanupReport{Kind: queue.CleanupWorkDir, StartedAt: c.clock()}
	if c.dirMaxAge <= 0 {
		return report, nil
	}
	res := SweepStale(ctx, c.jobsDir, c.dirMaxAge, active, report.StartedAt, c.logger)
	report.FilesDeleted = len(res.Removed)
	report.BytesFreed = res.BytesFreed
	report.Errors = len(res.Errors)
	report.Deleted = res.Removed
	return c.finish(ctx, report, "stale work directories")
}

// RunCycle runs retention, the emergency check and the work-directory
// sweep, then refreshes alerts. Errors from individual passes are joined.
func (c *Cleaner) RunCycle(ctx context.Context, active map[string]struct{}) ([]CleanupReport, error) {
	var (
		reports []CleanupReport
		errs    []error
	)
	for _, pass := range []func(context.Context) (CleanupReport, error){
		c.RunRetention,
		c.RunEmergency,
		func(ctx context.Context) (CleanupReport, error) { return c.SweepWorkDirs(ctx, active) },
	} {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		report, err := pass(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if report.FilesDeleted > 0 || report.Errors > 0 {
			reports = append(reports, report)
		}
	}
	c.CheckAlerts(ctx)
	return reports, errors.Join(errs...)
}

// CheckAlerts evaluates archive and work-directory utilisation and returns
// the archive's level. The level is LevelNormal when usage is unknown.
func (c *Cleaner) CheckAlerts(ctx context.Context) Level {
	level := LevelNormal
	if c.archive != nil && c.cfg.Archive.CapacityBytes > 0 {
		if usage, err := c.archive.Usage(ctx); err == nil {
			level = ThresholdsFromConfig(c.cfg).Level(usage.Utilization())
			if c.alerts != nil {
				c.alerts.Evaluate(ctx, TargetArchive, usage)
			}
		} else {
			c.logger.Debug("archive usage unavailable", logging.Error(err))
		}
	}
	if c.alerts != nil {
		if disk, err := DiskUsageOf(c.jobsRoot()); err == nil {
			c.alerts.Evaluate(ctx, TargetWorkDir, disk.Usage())
		}
	}
	return level
}

func (c *Cleaner) deleteObjects(ctx context.Context, report *CleanupReport, objects []ArchiveObject) {
	for _, obj := range objects {
		if ctx.Err() != nil {
			report.Errors++
			return
		}
		if err := c.archive.Delete(ctx, obj.Key); err != nil {
			report.Errors++
			logging.WarnWithContext(c.logger, "archive delete failed", "archive_delete_failed",
				logging.String("key", obj.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "object retried on next cleanup"),
			)
			continue
		}
		report.FilesDeleted++
		report.BytesFreed += obj.Size
		report.Deleted = append(report.Deleted, obj.Key)
		if c.store != nil {
			if err := c.store.MarkArchiveDeleted(ctx, obj.Key, c.clock()); err != nil {
				c.logger.Debug("mark archive deleted failed", logging.String("key", obj.Key), logging.Error(err))
			}
		}
	}
}

func (c *Cleaner) finish(ctx context.Context, report CleanupReport, note string) (CleanupReport, error) {
	report.FinishedAt = c.clock()
	if report.FilesDeleted == 0 && report.Errors == 0 {
		return report, nil
	}
	if c.store != nil {
		run := &queue.CleanupRun{
			Kind:         report.Kind,
			FilesDeleted: report.FilesDeleted,
			BytesFreed:   report.BytesFreed,
			Errors:       report.Errors,
			Note:         note,
			StartedAt:    report.StartedAt,
			FinishedAt:   report.FinishedAt,
		}
		if err := c.store.RecordCleanupRun(ctx, run); err != nil {
			return report, fmt.Errorf("record cleanup run: %w", err)
		}
	}
	c.logger.Info("cleanup finished",
		logging.String(logging.FieldEventType, "cleanup_completed"),
		logging.String("kind", report.Kind),
		logging.Int("files_deleted", report.FilesDeleted),
		logging.String("freed", humanize.IBytes(uint64(report.BytesFreed))),
		logging.Int("errors", report.Errors),
	)
	if c.notifier != nil && report.FilesDeleted > 0 {
		if err := c.notifier.Publish(ctx, notifications.EventCleanupCompleted, notifications.Payload{
			"kind":  report.Kind,
			"files": report.FilesDeleted,
			"freed": humanize.IBytes(uint64(report.BytesFreed)),
		}); err != nil {
			c.logger.Debug("cleanup notification failed", logging.Error(err))
		}
	}
	return report, nil
}

func usageAfter(u Usage, freed int64) Usage {
	u.UsedBytes = max(u.UsedBytes-freed, 0)
	return u
}
