package workflow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"matchreel/internal/notifications"
	"matchreel/internal/queue"
	"matchreel/internal/stage"
	"matchreel/internal/webhook"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type stubStage struct {
	name    string
	log     *callLog
	execute func(ctx context.Context, job *queue.Job) error
	health  stage.Health

	mu       sync.Mutex
	statuses []queue.Status
}

func newStubStage(name string, log *callLog) *stubStage {
	return &stubStage{name: name, log: log, health: stage.Healthy(name)}
}

func (s *stubStage) Prepare(context.Context, *queue.Job) error { return nil }

func (s *stubStage) Execute(ctx context.Context, job *queue.Job) error {
	s.mu.Lock()
	s.statuses = append(s.statuses, job.Status)
	s.mu.Unlock()
	if s.log != nil {
		s.log.add(s.name)
	}
	if s.execute != nil {
		return s.execute(ctx, job)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health { return s.health }

func (s *stubStage) seenStatuses() []queue.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]queue.Status(nil), s.statuses...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.last = payload
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type webhookSink struct {
	srv      *httptest.Server
	mu       sync.Mutex
	payloads []webhook.Payload
}

func newWebhookSink(t *testing.T) *webhookSink {
	t.Helper()
	sink := &webhookSink{}
	sink.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhook.Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sink.mu.Lock()
		sink.payloads = append(sink.payloads, payload)
		sink.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(sink.srv.Close)
	return sink
}

func (s *webhookSink) waitFor(t *testing.T, n int) []webhook.Payload {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.payloads) >= n {
			out := append([]webhook.Payload(nil), s.payloads...)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d webhook deliveries", n)
	return nil
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want ...queue.Status) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		for _, status := range want {
			if job.Status == status {
				return job
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	job, _ := store.GetByID(context.Background(), id)
	t.Fatalf("timed out waiting for status %v; job is %s (%s)", want, job.Status, job.ErrorMessage)
	return nil
}
