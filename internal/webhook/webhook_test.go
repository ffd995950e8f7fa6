package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"matchreel/internal/logging"
	"matchreel/internal/testsupport"
	"matchreel/internal/webhook"
)

func TestSendPostsPayloadAndRetries(t *testing.T) {
	var hits atomic.Int32
	var got webhook.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" || r.Header.Get("X-Matchreel-Job") != "job-1" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	client := webhook.NewClient(cfg, logging.NewNop())
	err := client.Send(context.Background(), srv.URL, webhook.Payload{
		JobID:            "job-1",
		Status:           webhook.StatusCompleted,
		Result:           json.RawMessage(`{"uploads":2}`),
		ProcessingTimeMs: 1500,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected retry after 502, got %d requests", hits.Load())
	}
	if got.JobID != "job-1" || got.Status != "completed" || got.ProcessingTimeMs != 1500 || string(got.Result) != `{"uploads":2}` {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	client := webhook.NewClient(testsupport.NewConfig(t), logging.NewNop())
	if err := client.Send(context.Background(), srv.URL, webhook.Payload{JobID: "j", Status: webhook.StatusFailed, Error: "boom"}); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one attempt, got %d", hits.Load())
	}
	// Notify swallows the failure.
	client.Notify(context.Background(), srv.URL, webhook.Payload{JobID: "j", Status: webhook.StatusFailed})
}

func TestSendWithoutURLIsNoop(t *testing.T) {
	client := webhook.NewClient(testsupport.NewConfig(t), logging.NewNop())
	if err := client.Send(context.Background(), " ", webhook.Payload{}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
