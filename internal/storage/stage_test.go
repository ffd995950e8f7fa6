package storage

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"matchreel/internal/assembly"
	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/notifications"
	"matchreel/internal/queue"
	"matchreel/internal/services"
)

type progressStore struct {
	updates []float64
}

func (p *progressStore) UpdateProgress(_ context.Context, job *queue.Job, status queue.Status, progress float64, _ string) error {
	p.updates = append(p.updates, progress)
	job.Status = status
	return nil
}

func TestUploadStageStoresBatchAsResult(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	data, err := json.Marshal(assembly.Output{Clips: f.clips(t, "Smith")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.job.ClipsJSON = string(data)
	progress := &progressStore{}
	st := NewStage(f.cfg, progress, f.coord, logging.NewNop())

	if err := st.Prepare(context.Background(), f.job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := st.Execute(context.Background(), f.job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	batch, err := DecodeBatch(f.job.ResultJSON)
	if err != nil || len(batch.Uploads) != 2 {
		t.Fatalf("unexpected result %q err=%v", f.job.ResultJSON, err)
	}
	if len(progress.updates) != 3 || progress.updates[0] != 85 || math.Abs(progress.updates[2]-99.9) > 1e-9 {
		t.Fatalf("unexpected progress %v", progress.updates)
	}
}

func TestUploadStageFailsWhenEveryClipFails(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	clips := f.clips(t)
	f.host.failTitles[clips[0].Title] = errors.New("quota exceeded")
	data, _ := json.Marshal(assembly.Output{Clips: clips})
	f.job.ClipsJSON = string(data)
	st := NewStage(f.cfg, &progressStore{}, f.coord, logging.NewNop())

	err := st.Execute(context.Background(), f.job)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient failure, got %v", err)
	}
	batch, _ := DecodeBatch(f.job.ResultJSON)
	if len(batch.Failures) != 1 {
		t.Fatalf("failures should still be recorded, got %+v", batch)
	}
}

func archiveAlert(tracker *AlertTracker) (Alert, bool) {
	for _, alert := range tracker.Active() {
		if alert.Target == TargetArchive {
			return alert, true
		}
	}
	return Alert{}, false
}

func TestUploadStageRunsEmergencyCleanupAtCritical(t *testing.T) {
	f := newCoordinatorFixture(t, func(cfg *config.Config) {
		cfg.Storage.Archive.CapacityBytes = 400
	})
	f.archive.capacity = 400
	f.archive.add("clips/older-match.mp4", 220, time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}
	alerts := NewAlertTracker(ThresholdsFromConfig(f.cfg.Storage), notifier, logging.NewNop())
	cleaner := NewCleaner(f.cfg, f.archive, f.store, alerts, notifier, logging.NewNop())

	data, _ := json.Marshal(assembly.Output{Clips: f.clips(t, "Smith")})
	f.job.ClipsJSON = string(data)
	st := NewStage(f.cfg, &progressStore{}, f.coord, logging.NewNop(), WithCleaner(cleaner))
	if err := st.Execute(context.Background(), f.job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// 370 of 400 bytes is over critical; dropping the oldest copy brings it back.
	keys := f.archive.keys()
	if len(keys) != 2 || slices.Contains(keys, "clips/older-match.mp4") {
		t.Fatalf("expected the oldest copy to be removed, got %v", keys)
	}
	if alert, ok := archiveAlert(alerts); !ok || alert.Level != LevelCritical {
		t.Fatalf("expected a critical archive alert, got %+v ok=%v", alert, ok)
	}
	if !slices.Contains(notifier.snapshot(), notifications.EventCleanupCompleted) {
		t.Fatalf("expected a cleanup notification, got %v", notifier.snapshot())
	}
	last, err := f.store.LastCleanupRun(context.Background(), queue.CleanupEmergency)
	if err != nil || last == nil || last.FilesDeleted != 1 {
		t.Fatalf("expected a recorded emergency run, got %+v err=%v", last, err)
	}
}

func TestUploadStageRaisesWarningWithoutDeleting(t *testing.T) {
	f := newCoordinatorFixture(t, func(cfg *config.Config) {
		cfg.Storage.Archive.CapacityBytes = 400
	})
	f.archive.capacity = 400
	f.archive.add("clips/older-match.mp4", 170, time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC))
	alerts := NewAlertTracker(ThresholdsFromConfig(f.cfg.Storage), nil, logging.NewNop())
	cleaner := NewCleaner(f.cfg, f.archive, f.store, alerts, nil, logging.NewNop())

	data, _ := json.Marshal(assembly.Output{Clips: f.clips(t, "Smith")})
	f.job.ClipsJSON = string(data)
	st := NewStage(f.cfg, &progressStore{}, f.coord, logging.NewNop(), WithCleaner(cleaner))
	if err := st.Execute(context.Background(), f.job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if keys := f.archive.keys(); len(keys) != 3 {
		t.Fatalf("nothing should be deleted below critical, got %v", keys)
	}
	if alert, ok := archiveAlert(alerts); !ok || alert.Level != LevelWarning {
		t.Fatalf("expected a warning archive alert, got %+v ok=%v", alert, ok)
	}
}

func TestUploadStagePrepareRequiresClips(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	st := NewStage(f.cfg, &progressStore{}, f.coord, logging.NewNop())
	if err := st.Prepare(context.Background(), &queue.Job{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := NewStage(f.cfg, nil, nil, nil).Prepare(context.Background(), f.job); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if h := st.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected healthy stage, got %+v", h)
	}
}
