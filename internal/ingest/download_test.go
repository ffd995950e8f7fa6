package ingest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"matchreel/internal/ingest"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/retry"
	"matchreel/internal/services"
	"matchreel/internal/testsupport"
)

type progressStore struct {
	statuses []queue.Status
	updates  []float64
}

func (p *progressStore) UpdateProgress(_ context.Context, job *queue.Job, status queue.Status, progress float64, _ string) error {
	p.statuses = append(p.statuses, status)
	p.updates = append(p.updates, progress)
	job.Status = status
	return nil
}

func fastRetry() *retry.Executor {
	return retry.New(retry.Policy{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}, logging.NewNop())
}

func TestDownloadStageUsesLocalFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	video := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "match.mp4"), 2048)
	store := &progressStore{}
	st := ingest.NewStage(cfg, store, logging.NewNop())
	job := &queue.Job{ID: 1, PublicID: "job-local", VideoRef: video}

	if err := st.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := st.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.InputPath != video || job.Downloaded {
		t.Fatalf("unexpected input %q downloaded=%v", job.InputPath, job.Downloaded)
	}
	if job.WorkDir != filepath.Join(cfg.Paths.WorkDir, "jobs", "job-local") {
		t.Fatalf("unexpected work dir %q", job.WorkDir)
	}
	if info, err := os.Stat(job.WorkDir); err != nil || !info.IsDir() {
		t.Fatalf("work dir not created: %v", err)
	}
	if len(store.updates) != 0 {
		t.Fatalf("local inputs should not enter the downloading status, got %v", store.statuses)
	}
	if err := ingest.RemoveDownload(job); err != nil {
		t.Fatalf("RemoveDownload: %v", err)
	}
	if _, err := os.Stat(video); err != nil {
		t.Fatalf("local input must never be removed: %v", err)
	}
}

func TestDownloadStageLocalErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := ingest.NewStage(cfg, &progressStore{}, logging.NewNop())

	missing := &queue.Job{PublicID: "job-missing", VideoRef: filepath.Join(t.TempDir(), "nope.mp4")}
	if err := st.Execute(context.Background(), missing); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	empty := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "empty.mp4"), 0)
	if err := st.Execute(context.Background(), &queue.Job{PublicID: "job-empty", VideoRef: empty}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := st.Prepare(context.Background(), &queue.Job{PublicID: "x"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty ref, got %v", err)
	}
}

func TestDownloadStageFetchesRemoteWithRetry(t *testing.T) {
	payload := strings.Repeat("v", 64*1024)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	store := &progressStore{}
	st := ingest.NewStage(cfg, store, logging.NewNop(), ingest.WithHTTPClient(srv.Client()), ingest.WithRetry(fastRetry()))
	job := &queue.Job{ID: 2, PublicID: "job-remote", VideoRef: srv.URL + "/media/match.MOV?sig=abc"}

	if err := st.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d requests", hits.Load())
	}
	if !job.Downloaded || filepath.Base(job.InputPath) != "source.mov" {
		t.Fatalf("unexpected input %q downloaded=%v", job.InputPath, job.Downloaded)
	}
	data, err := os.ReadFile(job.InputPath)
	if err != nil || string(data) != payload {
		t.Fatalf("downloaded content mismatch: %d bytes err=%v", len(data), err)
	}
	if _, err := os.Stat(job.InputPath + ".part"); !os.IsNotExist(err) {
		t.Fatalf("partial file should be gone, stat err=%v", err)
	}
	if len(store.statuses) < 2 || store.statuses[0] != queue.StatusDownloading {
		t.Fatalf("expected downloading progress, got %v", store.statuses)
	}
	if first, last := store.updates[0], store.updates[len(store.updates)-1]; first != 10 || last != 19.9 {
		t.Fatalf("unexpected progress range %v", store.updates)
	}

	// A reclaimed job reuses the finished download without another request.
	if err := st.Execute(context.Background(), job); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected reuse, got %d requests", hits.Load())
	}

	if err := ingest.RemoveDownload(job); err != nil {
		t.Fatalf("RemoveDownload: %v", err)
	}
	if _, err := os.Stat(job.InputPath); !os.IsNotExist(err) {
		t.Fatalf("downloaded input should be removed, stat err=%v", err)
	}
}

func TestDownloadStageNotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	st := ingest.NewStage(cfg, &progressStore{}, logging.NewNop(), ingest.WithHTTPClient(srv.Client()), ingest.WithRetry(fastRetry()))
	err := st.Execute(context.Background(), &queue.Job{PublicID: "job-404", VideoRef: srv.URL + "/missing.mp4"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", hits.Load())
	}
}
