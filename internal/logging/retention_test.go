package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"matchreel/internal/logging"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("log line\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestCleanupOldLogsPrunesExpiredRuns(t *testing.T) {
	dir := t.TempDir()
	day := 24 * time.Hour
	oldest := filepath.Join(dir, "matchreel-a.log")
	older := filepath.Join(dir, "matchreel-b.log")
	recent := filepath.Join(dir, "matchreel-c.log")
	current := filepath.Join(dir, "matchreel-d.log")
	unrelated := filepath.Join(dir, "notes.txt")
	writeAged(t, oldest, 30*day)
	writeAged(t, older, 20*day)
	writeAged(t, recent, day)
	writeAged(t, current, 40*day)
	writeAged(t, unrelated, 40*day)
	if err := os.Symlink(oldest, filepath.Join(dir, logging.CurrentLogName)); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	result := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "matchreel-*.log",
		Exclude: []string{current},
	})
	if result.Removed != 2 || result.Bytes == 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, gone := range []string{oldest, older} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed", gone)
		}
	}
	for _, kept := range []string{recent, current, unrelated} {
		if _, err := os.Stat(kept); err != nil {
			t.Fatalf("expected %s to remain: %v", kept, err)
		}
	}
	if _, err := os.Lstat(filepath.Join(dir, logging.CurrentLogName)); err != nil {
		t.Fatalf("symlink should never be pruned: %v", err)
	}
}

func TestCleanupOldLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	day := 24 * time.Hour
	writeAged(t, filepath.Join(dir, "matchreel-1.log"), 30*day)
	writeAged(t, filepath.Join(dir, "matchreel-2.log"), 20*day)
	writeAged(t, filepath.Join(dir, "matchreel-3.log"), 10*day)

	result := logging.CleanupOldLogs(nil, 1, logging.RetentionTarget{Dir: dir, Pattern: "matchreel-*.log", KeepNewest: 2})
	if result.Removed != 1 {
		t.Fatalf("expected one file removed, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(dir, "matchreel-1.log")); !os.IsNotExist(err) {
		t.Fatal("expected the oldest run log to be removed")
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, filepath.Join(dir, "matchreel-1.log"), 400*24*time.Hour)
	if result := logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir}); result.Removed != 0 {
		t.Fatalf("expected pruning disabled, got %+v", result)
	}
}
