package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"matchreel/internal/logging"
	"matchreel/internal/testsupport"
)

func TestSweepStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := SweepStale(context.Background(), dir, time.Hour, nil, time.Now(), logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestSweepStaleRemovesOldDirectories(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	oldDir := filepath.Join(root, "old-job")
	activeDir := filepath.Join(root, "active-job")
	recentDir := filepath.Join(root, "recent-job")
	testsupport.WriteFile(t, filepath.Join(oldDir, "clip.mp4"), 10)
	testsupport.WriteFile(t, filepath.Join(activeDir, "clip.mp4"), 10)
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, dir := range []string{oldDir, activeDir} {
		if err := os.Chtimes(dir, old, old); err != nil {
			t.Fatalf("set old time: %v", err)
		}
	}

	result := SweepStale(context.Background(), root, time.Hour, map[string]struct{}{"active-job": {}}, now, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != oldDir || result.BytesFreed != 10 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, dir := range []string{activeDir, recentDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should still exist", dir)
		}
	}

	dirs, err := ListWorkDirs(root)
	if err != nil || len(dirs) != 2 {
		t.Fatalf("ListWorkDirs: %v %v", dirs, err)
	}
}
