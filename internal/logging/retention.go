package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RetentionTarget selects the files in Dir whose names match Pattern.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
	// KeepNewest files are retained regardless of age.
	KeepNewest int
}

// RetentionResult summarises one pruning pass.
type RetentionResult struct {
	Removed int
	Bytes   int64
}

type logFile struct {
	path string
	size int64
	mod  time.Time
}

// CleanupOldLogs removes regular files older than retentionDays from each
// target. Symlinks are never followed or removed. A retentionDays value of 0
// disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) RetentionResult {
	var result RetentionResult
	if retentionDays <= 0 {
		return result
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	for _, target := range targets {
		files := collectLogFiles(target)
		sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
		if target.KeepNewest > 0 && len(files) > 0 {
			files = files[min(target.KeepNewest, len(files)):]
		}
		for _, f := range files {
			if !f.mod.Before(cutoff) {
				continue
			}
			if err := os.Remove(f.path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", f.path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			result.Removed++
			result.Bytes += f.size
		}
	}

	if result.Removed > 0 && logger != nil {
		logger.Info("old logs pruned",
			String(FieldEventType, "logs_pruned"),
			Int("files", result.Removed),
			String("freed", humanize.IBytes(uint64(result.Bytes))),
			Int("retention_days", retentionDays),
		)
	}
	return result
}

func collectLogFiles(target RetentionTarget) []logFile {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	excluded := make(map[string]struct{}, len(target.Exclude))
	for _, path := range target.Exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
			excluded[abs] = struct{}{}
		}
	}
	pattern := strings.TrimSpace(target.Pattern)

	var files []logFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path, err := filepath.Abs(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if _, skip := excluded[path]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: path, size: info.Size(), mod: info.ModTime()})
	}
	return files
}
