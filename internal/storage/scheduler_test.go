package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"matchreel/internal/logging"
)

type gatedArchive struct {
	*memArchive
	entered chan struct{}
	release chan struct{}
}

func (a *gatedArchive) List(ctx context.Context) ([]ArchiveObject, error) {
	select {
	case a.entered <- struct{}{}:
	default:
	}
	select {
	case <-a.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return a.memArchive.List(ctx)
}

func TestRunNowRejectsOverlappingCycle(t *testing.T) {
	_, mem, store, notifier, cfg := newCleanerFixture(t, 1000)
	archive := &gatedArchive{memArchive: mem, entered: make(chan struct{}, 1), release: make(chan struct{})}
	mem.add("clips/old.mp4", 10, cleanupNow.AddDate(0, 0, -45))
	cleaner := NewCleaner(cfg, archive, store, nil, notifier, logging.NewNop())
	cleaner.SetClock(func() time.Time { return cleanupNow })
	scheduler := NewScheduler(cleaner, time.Hour, nil, logging.NewNop())
	ctx := context.Background()

	type outcome struct {
		reports []CleanupReport
		err     error
	}
	first := make(chan outcome, 1)
	go func() {
		reports, err := scheduler.RunNow(ctx)
		first <- outcome{reports, err}
	}()
	select {
	case <-archive.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never reached the archive")
	}

	reports, err := scheduler.RunNow(ctx)
	if !errors.Is(err, ErrCleanupRunning) || reports != nil {
		t.Fatalf("expected ErrCleanupRunning, got %v reports=%v", err, reports)
	}

	close(archive.release)
	got := <-first
	if got.err != nil {
		t.Fatalf("first RunNow: %v", got.err)
	}
	if len(got.reports) != 1 || got.reports[0].FilesDeleted != 1 {
		t.Fatalf("expected the retention pass to delete one copy, got %+v", got.reports)
	}

	if _, err := scheduler.RunNow(ctx); err != nil {
		t.Fatalf("RunNow after the cycle finished: %v", err)
	}
}
