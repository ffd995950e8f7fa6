package workflow_test

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/notifications"
	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/testsupport"
	"matchreel/internal/webhook"
	"matchreel/internal/workflow"
)

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	log      *callLog
	stages   map[string]*stubStage
	notifier *recordingNotifier
	mgr      *workflow.Manager
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithConcurrency(1)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	log := &callLog{}
	h := &harness{
		cfg:      cfg,
		store:    store,
		log:      log,
		notifier: &recordingNotifier{},
		stages: map[string]*stubStage{
			workflow.StageDownload:   newStubStage(workflow.StageDownload, log),
			workflow.StageParseNotes: newStubStage(workflow.StageParseNotes, log),
			workflow.StageAnalyze:    newStubStage(workflow.StageAnalyze, log),
			workflow.StageAssemble:   newStubStage(workflow.StageAssemble, log),
			workflow.StageUpload:     newStubStage(workflow.StageUpload, log),
		},
	}
	h.stages[workflow.StageUpload].execute = func(_ context.Context, job *queue.Job) error {
		job.ResultJSON = `{"uploads":[{"assetId":"x-team"}]}`
		return nil
	}
	h.mgr = workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithNotifier(h.notifier),
		workflow.WithWebhook(webhook.NewClient(cfg, logging.NewNop())),
	)
	h.mgr.ConfigureStages(workflow.StageSet{
		Download:   h.stages[workflow.StageDownload],
		ParseNotes: h.stages[workflow.StageParseNotes],
		Analyze:    h.stages[workflow.StageAnalyze],
		Assemble:   h.stages[workflow.StageAssemble],
		Upload:     h.stages[workflow.StageUpload],
	})
	return h
}

func (h *harness) enqueue(t *testing.T, mutate func(*queue.Submission)) *queue.Job {
	t.Helper()
	video := testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(h.cfg), "videos", "match.mp4"), 1024)
	sub := testsupport.Submission("Harbour FC", video)
	if mutate != nil {
		mutate(&sub)
	}
	return testsupport.EnqueueJob(t, h.store, sub)
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.mgr.Stop)
}

func TestManagerRunsStagesInOrderAndCompletes(t *testing.T) {
	h := newHarness(t)
	sink := newWebhookSink(t)
	job := h.enqueue(t, func(sub *queue.Submission) { sub.WebhookURL = sink.srv.URL })
	h.start(t)

	done := waitForStatus(t, h.store, job.ID, queue.StatusCompleted, queue.StatusFailed)
	if done.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.ErrorMessage)
	}
	if done.Progress != 100 {
		t.Fatalf("expected progress 100, got %v", done.Progress)
	}
	if !strings.Contains(done.ResultJSON, "x-team") {
		t.Fatalf("result not persisted: %q", done.ResultJSON)
	}

	want := []string{
		workflow.StageDownload,
		workflow.StageParseNotes,
		workflow.StageAnalyze,
		workflow.StageAssemble,
		workflow.StageUpload,
	}
	if got := h.log.snapshot(); !slices.Equal(got, want) {
		t.Fatalf("stage order = %v, want %v", got, want)
	}
	if got := h.stages[workflow.StageDownload].seenStatuses(); len(got) != 1 || got[0] != queue.StatusInitializing {
		t.Fatalf("local job should not report downloading, saw %v", got)
	}
	if got := h.stages[workflow.StageAnalyze].seenStatuses(); len(got) != 1 || got[0] != queue.StatusAnalyzing {
		t.Fatalf("analyze stage saw statuses %v", got)
	}

	payloads := sink.waitFor(t, 1)
	if payloads[0].JobID != job.PublicID || payloads[0].Status != webhook.StatusCompleted {
		t.Fatalf("unexpected webhook payload: %+v", payloads[0])
	}
	if !strings.Contains(string(payloads[0].Result), "x-team") {
		t.Fatalf("webhook result missing uploads: %s", payloads[0].Result)
	}
	if h.notifier.count(notifications.EventJobFailed) != 0 {
		t.Fatal("completed job must not publish a failure")
	}
}

func TestManagerReportsDownloadingForRemoteVideo(t *testing.T) {
	h := newHarness(t)
	job := h.enqueue(t, func(sub *queue.Submission) { sub.VideoRef = "https://videos.example.com/match.mp4" })
	h.start(t)

	waitForStatus(t, h.store, job.ID, queue.StatusCompleted)
	if got := h.stages[workflow.StageDownload].seenStatuses(); len(got) != 1 || got[0] != queue.StatusDownloading {
		t.Fatalf("remote job should report downloading, saw %v", got)
	}
}

func TestManagerFailsJobOnStageError(t *testing.T) {
	h := newHarness(t)
	sink := newWebhookSink(t)
	h.stages[workflow.StageAnalyze].execute = func(context.Context, *queue.Job) error {
		return services.Wrap(services.ErrValidation, "analyzing", "decode timeline", "stored note timeline is invalid", nil)
	}
	job := h.enqueue(t, func(sub *queue.Submission) { sub.WebhookURL = sink.srv.URL })
	h.start(t)

	failed := waitForStatus(t, h.store, job.ID, queue.StatusFailed)
	if failed.ErrorKind != "validation" {
		t.Fatalf("expected validation kind, got %q", failed.ErrorKind)
	}
	if !strings.Contains(failed.ErrorMessage, "analyze failed") {
		t.Fatalf("unexpected error message %q", failed.ErrorMessage)
	}
	if slices.Contains(h.log.snapshot(), workflow.StageAssemble) {
		t.Fatal("assemble must not run after analyze fails")
	}

	payloads := sink.waitFor(t, 1)
	if payloads[0].Status != webhook.StatusFailed || !strings.Contains(payloads[0].Error, "timeline") {
		t.Fatalf("unexpected webhook payload: %+v", payloads[0])
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.notifier.count(notifications.EventJobFailed) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.notifier.count(notifications.EventJobFailed) != 1 {
		t.Fatal("expected one job_failed notification")
	}
}

func TestManagerRecoversStagePanic(t *testing.T) {
	h := newHarness(t)
	h.stages[workflow.StageParseNotes].execute = func(context.Context, *queue.Job) error {
		panic("bad note line")
	}
	first := h.enqueue(t, nil)
	second := h.enqueue(t, nil)
	h.start(t)

	failed := waitForStatus(t, h.store, first.ID, queue.StatusFailed)
	if !strings.Contains(failed.ErrorMessage, "panicked") {
		t.Fatalf("expected panic in error message, got %q", failed.ErrorMessage)
	}
	// The worker survives and keeps draining the queue.
	waitForStatus(t, h.store, second.ID, queue.StatusFailed)
}

func TestManagerFailsStageOnTimeout(t *testing.T) {
	h := newHarness(t, testsupport.WithStageTimeout(workflow.StageAnalyze, 1))
	h.stages[workflow.StageAnalyze].execute = func(ctx context.Context, _ *queue.Job) error {
		<-ctx.Done()
		return ctx.Err()
	}
	job := h.enqueue(t, nil)
	h.start(t)

	failed := waitForStatus(t, h.store, job.ID, queue.StatusFailed)
	if failed.ErrorKind != "timeout" {
		t.Fatalf("expected timeout kind, got %q (%s)", failed.ErrorKind, failed.ErrorMessage)
	}
	if slices.Contains(h.log.snapshot(), workflow.StageAssemble) {
		t.Fatal("assemble must not run after a timeout")
	}
}

func TestManagerHonoursCancelBetweenStages(t *testing.T) {
	h := newHarness(t)
	h.stages[workflow.StageParseNotes].execute = func(_ context.Context, job *queue.Job) error {
		if _, err := h.store.RequestCancel(context.Background(), job.ID); err != nil {
			return err
		}
		return nil
	}
	job := h.enqueue(t, nil)
	h.start(t)

	cancelled := waitForStatus(t, h.store, job.ID, queue.StatusCancelled)
	if cancelled.ErrorKind != "cancelled" {
		t.Fatalf("expected cancelled kind, got %q", cancelled.ErrorKind)
	}
	if slices.Contains(h.log.snapshot(), workflow.StageAnalyze) {
		t.Fatal("analyze must not run after cancellation was requested")
	}
}

func TestManagerReleasesJobOnStop(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.stages[workflow.StageAnalyze].execute = func(ctx context.Context, _ *queue.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	job := h.enqueue(t, nil)
	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("analyze stage never started")
	}

	status := h.mgr.Status(context.Background())
	if !slices.Contains(status.ActiveJobs, job.PublicID) {
		t.Fatalf("expected %s active, got %v", job.PublicID, status.ActiveJobs)
	}
	if _, ok := h.mgr.ActiveWorkDirs(context.Background())[job.PublicID]; !ok {
		t.Fatal("active job work dir must be protected from sweeping")
	}

	h.mgr.Stop()
	released, err := h.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if released.Status != queue.StatusQueued {
		t.Fatalf("expected queued after stop, got %s", released.Status)
	}
	if released.Attempts != 0 {
		t.Fatalf("release must not consume an attempt, got %d", released.Attempts)
	}
	if released.ClaimedBy != "" {
		t.Fatalf("claim should be cleared, got %q", released.ClaimedBy)
	}
}

func TestManagerStartValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error without stages")
	}

	h := newHarness(t)
	h.start(t)
	if err := h.mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error on double start")
	}
	status := h.mgr.Status(context.Background())
	if !status.Running || status.Workers != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.StageHealth) != 5 {
		t.Fatalf("expected 5 stage health entries, got %d", len(status.StageHealth))
	}
}

func TestHeartbeatReclaimRequeuesThenFails(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(2))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	job := testsupport.EnqueueJob(t, store, testsupport.Submission("Harbour FC", "/videos/match.mp4"))

	past := time.Now().Add(-time.Hour)
	store.SetClock(func() time.Time { return past })
	if _, err := store.ClaimNext(ctx, "dead-worker"); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	store.SetClock(time.Now)

	monitor := workflow.NewHeartbeatMonitor(cfg, store, logging.NewNop())
	result, err := monitor.ReclaimStale(ctx)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if result.Requeued != 1 || result.Failed != 0 {
		t.Fatalf("unexpected reclaim result %+v", result)
	}
	requeued, _ := store.GetByID(ctx, job.ID)
	if requeued.Status != queue.StatusQueued || requeued.NextAttemptAt == nil {
		t.Fatalf("expected queued with backoff, got %s next=%v", requeued.Status, requeued.NextAttemptAt)
	}
	if !requeued.NextAttemptAt.After(time.Now()) {
		t.Fatalf("next attempt should be delayed, got %v", requeued.NextAttemptAt)
	}

	// Second claim exhausts the attempt budget.
	later := time.Now().Add(time.Hour)
	store.SetClock(func() time.Time { return later })
	if claimed, err := store.ClaimNext(ctx, "dead-worker"); err != nil || claimed == nil {
		t.Fatalf("second ClaimNext: %v %v", claimed, err)
	}
	monitor.SetClock(func() time.Time { return later.Add(time.Hour) })
	result, err = monitor.ReclaimStale(ctx)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if result.Failed != 1 || result.Requeued != 0 {
		t.Fatalf("expected job to fail after exhausting attempts, got %+v", result)
	}
	failed, _ := store.GetByID(ctx, job.ID)
	if failed.Status != queue.StatusFailed || failed.ErrorMessage != queue.ClaimLostReason {
		t.Fatalf("unexpected failed job %s %q", failed.Status, failed.ErrorMessage)
	}
}

func TestHeartbeatBackoffGrowsAndClamps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Worker.AttemptBackoffInitial = 10
	cfg.Worker.AttemptBackoffMax = 60
	monitor := workflow.NewHeartbeatMonitor(cfg, nil, logging.NewNop())

	first := monitor.Backoff(1)
	if first < 8*time.Second || first > 12*time.Second {
		t.Fatalf("first backoff %v outside jitter range", first)
	}
	if late := monitor.Backoff(10); late > 60*time.Second {
		t.Fatalf("backoff %v exceeds max", late)
	}

	cfg.Worker.AttemptBackoffInitial = 0
	if d := workflow.NewHeartbeatMonitor(cfg, nil, logging.NewNop()).Backoff(3); d != 0 {
		t.Fatalf("disabled backoff should be zero, got %v", d)
	}
}
