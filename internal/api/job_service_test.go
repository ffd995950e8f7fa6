package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"matchreel/internal/api"
	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/testsupport"
)

func newService(t *testing.T) (*api.JobService, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return api.NewJobService(store, 2), store
}

func TestJobServiceSubmitAndDescribe(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	testsupport.EnqueueJob(t, store, testsupport.Submission("Harbour FC", "/videos/a.mp4"))
	testsupport.EnqueueJob(t, store, testsupport.Submission("Harbour FC", "/videos/b.mp4"))

	resp, err := svc.Submit(ctx, api.SubmitRequest{
		Club:             "Harbour FC",
		Opponent:         "Rovers",
		MatchDate:        "2024-10-12",
		VideoURL:         "https://cdn.example.com/match.mp4",
		Notes:            "15:30 - Smith goal",
		ManualCuts:       []queue.ManualCut{{Start: 10, End: 20, Description: "kick off"}},
		PlayerHighlights: true,
		WebhookURL:       "https://club.example.com/hook",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.JobID == "" || resp.Status != string(queue.StatusQueued) {
		t.Fatalf("unexpected response %+v", resp)
	}
	// Two jobs ahead on two workers: one wave of waiting plus our own job.
	if resp.EstimatedCompletionSeconds != int64((20 * time.Minute).Seconds()) {
		t.Fatalf("unexpected estimate %d", resp.EstimatedCompletionSeconds)
	}

	job, err := svc.Describe(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if job.VideoRef != "https://cdn.example.com/match.mp4" || job.MatchDate != "2024-10-12" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Progress.Stage != "queued" || job.Progress.Percent != 0 || !job.PlayerHighlights {
		t.Fatalf("unexpected progress %+v", job.Progress)
	}
	if job.CreatedAt == "" {
		t.Fatal("expected formatted timestamps")
	}
}

func TestJobServiceSubmitRejectsInvalid(t *testing.T) {
	svc, _ := newService(t)
	cases := []api.SubmitRequest{
		{VideoRef: "/videos/a.mp4"},
		{Club: "Harbour FC"},
		{Club: "Harbour FC", VideoRef: "/videos/a.mp4", MatchDate: "12/10/2024"},
		{Club: "Harbour FC", VideoRef: "/videos/a.mp4", ManualCuts: []queue.ManualCut{{Start: 20, End: 10}}},
	}
	for i, req := range cases {
		if _, err := svc.Submit(context.Background(), req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestJobServiceDescribeUnknown(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Describe(context.Background(), "missing"); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestJobServiceCancelAndRetry(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	running := testsupport.EnqueueJob(t, store, testsupport.Submission("Harbour FC", "/videos/a.mp4"))
	waiting := testsupport.EnqueueJob(t, store, testsupport.Submission("Harbour FC", "/videos/b.mp4"))

	claimed, err := store.ClaimNext(ctx, "worker-1")
	if err != nil || claimed == nil || claimed.ID != running.ID {
		t.Fatalf("ClaimNext: job=%+v err=%v", claimed, err)
	}

	result, err := svc.Cancel(ctx, []string{running.PublicID, waiting.PublicID, "missing"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if result.UpdatedCount != 2 {
		t.Fatalf("expected two updates, got %+v", result)
	}
	if result.Jobs[0].Outcome != api.CancelRequested || result.Jobs[1].Outcome != api.CancelCancelled || result.Jobs[2].Outcome != api.CancelNotFound {
		t.Fatalf("unexpected outcomes %+v", result.Jobs)
	}

	retry, err := svc.Retry(ctx, []string{waiting.PublicID, running.PublicID})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retry.Jobs[0].Outcome != api.RetryUpdated || retry.Jobs[1].Outcome != api.RetryNotFailed {
		t.Fatalf("unexpected retry outcomes %+v", retry.Jobs)
	}
	again, err := svc.Describe(ctx, waiting.PublicID)
	if err != nil || again.Status != string(queue.StatusQueued) {
		t.Fatalf("expected requeued job, got %+v err=%v", again, err)
	}
}

func TestJobServiceListAndStats(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	first := testsupport.EnqueueJob(t, store, testsupport.Submission("Harbour FC", "/videos/a.mp4"))
	second := testsupport.EnqueueJob(t, store, testsupport.Submission("Harbour FC", "/videos/b.mp4"))

	jobs, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", jobs)
	}
	stats, err := svc.Stats(ctx)
	if err != nil || stats["queued"] != 2 {
		t.Fatalf("unexpected stats %v err=%v", stats, err)
	}
}

func TestEstimateCompletion(t *testing.T) {
	if got := api.EstimateCompletion(0, 2, time.Minute); got != time.Minute {
		t.Fatalf("empty queue: %v", got)
	}
	if got := api.EstimateCompletion(5, 2, time.Minute); got != 3*time.Minute {
		t.Fatalf("five ahead: %v", got)
	}
}
