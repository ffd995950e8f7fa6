package testsupport

import (
	"context"
	"testing"
	"time"

	"matchreel/internal/config"
	"matchreel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Submission returns a valid submission for club with a local video path.
func Submission(club, videoRef string) queue.Submission {
	return queue.Submission{
		Club:      club,
		Opponent:  "Rovers",
		MatchDate: time.Date(2024, time.October, 12, 0, 0, 0, 0, time.UTC),
		VideoRef:  videoRef,
		NotesText: "15:30 - Smith goal",
	}
}

// EnqueueJob enqueues sub and fails the test on error.
func EnqueueJob(t testing.TB, store *queue.Store, sub queue.Submission) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), sub)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
