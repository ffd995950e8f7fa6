package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"matchreel/internal/queue"
)

// DiskUsage is filesystem usage for a path.
type DiskUsage struct {
	Path       string `json:"path"`
	TotalBytes uint64 `json:"totalBytes"`
	FreeBytes  uint64 `json:"freeBytes"`
	UsedBytes  uint64 `json:"usedBytes"`
}

// Utilization returns the used fraction of the filesystem.
func (d DiskUsage) Utilization() float64 {
	if d.TotalBytes == 0 {
		return 0
	}
	return float64(d.UsedBytes) / float64(d.TotalBytes)
}

// Usage converts d for alert evaluation.
func (d DiskUsage) Usage() Usage {
	return Usage{UsedBytes: int64(d.UsedBytes), CapacityBytes: int64(d.TotalBytes)}
}

// DiskUsageOf reports the filesystem holding path.
func DiskUsageOf(path string) (DiskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	free := st.Bavail * bsize
	used := total - st.Bfree*bsize
	return DiskUsage{Path: path, TotalBytes: total, FreeBytes: free, UsedBytes: used}, nil
}

// Report is the storage status surfaced by the API and CLI.
type Report struct {
	ArchiveEnabled bool                `json:"archiveEnabled"`
	Archive        Usage               `json:"archive"`
	Utilization    float64             `json:"utilization"`
	Level          Level               `json:"level"`
	Alerts         []Alert             `json:"alerts"`
	LastCleanup    *queue.CleanupRun   `json:"lastCleanup,omitempty"`
	Totals         queue.CleanupTotals `json:"totals"`
	NextCleanup    time.Time           `json:"nextCleanup"`
	WorkDir        DiskUsage           `json:"workDir"`
	Error          string              `json:"error,omitempty"`
}

// Status assembles a Report. next is the scheduler's next run time.
func (c *Cleaner) Status(ctx context.Context, next time.Time) (Report, error) {
	report := Report{ArchiveEnabled: c.archive != nil, Level: LevelNormal, NextCleanup: next}
	if c.archive != nil {
		usage, err := c.archive.Usage(ctx)
		if err != nil {
			report.Error = err.Error()
		} else {
			if usage.CapacityBytes == 0 {
				usage.CapacityBytes = c.cfg.Archive.CapacityBytes
			}
			report.Archive = usage
			report.Utilization = usage.Utilization()
			report.Level = ThresholdsFromConfig(c.cfg).Level(report.Utilization)
		}
	}
	if disk, err := DiskUsageOf(c.jobsRoot()); err == nil {
		report.WorkDir = disk
	}
	if c.alerts != nil {
		report.Alerts = c.alerts.Active()
	}
	if report.Alerts == nil {
		report.Alerts = []Alert{}
	}
	if c.store != nil {
		last, err := c.store.LastCleanupRun(ctx)
		if err != nil {
			return report, err
		}
		report.LastCleanup = last
		totals, err := c.store.CleanupTotals(ctx)
		if err != nil {
			return report, err
		}
		report.Totals = totals
	}
	return report, nil
}

func (c *Cleaner) jobsRoot() string {
	return filepath.Dir(c.jobsDir)
}
