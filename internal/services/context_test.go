package services

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = WithJobID(ctx, "job-1")
	ctx = WithStage(ctx, "analyzing")
	ctx = WithWorker(ctx, "worker-2")
	ctx = WithRequestID(ctx, "req-1")

	if id, ok := JobIDFromContext(ctx); !ok || id != "job-1" {
		t.Fatalf("unexpected job id %q %v", id, ok)
	}
	if stage, ok := StageFromContext(ctx); !ok || stage != "analyzing" {
		t.Fatalf("unexpected stage %q %v", stage, ok)
	}
	if worker, ok := WorkerFromContext(ctx); !ok || worker != "worker-2" {
		t.Fatalf("unexpected worker %q %v", worker, ok)
	}
	if rid, ok := RequestIDFromContext(ctx); !ok || rid != "req-1" {
		t.Fatalf("unexpected request id %q %v", rid, ok)
	}
}

func TestContextHelpersIgnoreEmpty(t *testing.T) {
	ctx := WithStage(context.Background(), "")
	if _, ok := StageFromContext(ctx); ok {
		t.Fatal("expected no stage for empty value")
	}
	if _, ok := JobIDFromContext(WithJobID(context.Background(), "")); ok {
		t.Fatal("expected no job id for empty value")
	}
}
