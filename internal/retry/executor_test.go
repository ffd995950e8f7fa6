package retry_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"matchreel/internal/retry"
	"matchreel/internal/services"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
}

func TestDoStopsAfterOneAttemptOnNotFound(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	exec := retry.New(fastPolicy(5), nil)
	err := exec.Do(context.Background(), "fetch", func(ctx context.Context) error {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return retry.CheckResponse(resp)
	})
	var statusErr *retry.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected exactly one attempt, got %d", got)
	}
}

func TestDoRetriesServerErrorsUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := retry.New(fastPolicy(5), nil)
	err := exec.Do(context.Background(), "fetch", func(ctx context.Context) error {
		resp, err := http.Get(server.URL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return retry.CheckResponse(resp)
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	exec := retry.New(fastPolicy(4), nil)
	err := exec.Do(context.Background(), "flaky", func(context.Context) error {
		calls++
		return fmt.Errorf("upstream: %w", services.ErrTransient)
	})
	if err == nil || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
}

func TestDoPermanentUnwrapsAndStops(t *testing.T) {
	calls := 0
	sentinel := errors.New("bad payload")
	exec := retry.New(fastPolicy(4), nil)
	err := exec.Do(context.Background(), "submit", func(context.Context) error {
		calls++
		return retry.Permanent(sentinel)
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt, got %d", calls)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := retry.New(retry.Policy{MaxAttempts: 10, Initial: time.Hour, Max: time.Hour, Multiplier: 2}, nil)
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- exec.Do(ctx, "slow", func(context.Context) error {
			calls++
			return services.ErrTransient
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop waiting after cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected one attempt before cancellation, got %d", calls)
	}
}

func TestDoValueReturnsResult(t *testing.T) {
	exec := retry.New(fastPolicy(3), nil)
	attempt := 0
	got, err := retry.DoValue(context.Background(), exec, "compute", func(context.Context) (int, error) {
		attempt++
		if attempt == 1 {
			return 0, &retry.StatusError{Code: http.StatusTooManyRequests}
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("DoValue = %d, %v; want 42, nil", got, err)
	}
}

func TestIsRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "500", err: &retry.StatusError{Code: 500}, want: true},
		{name: "429", err: &retry.StatusError{Code: 429}, want: true},
		{name: "408", err: &retry.StatusError{Code: 408}, want: true},
		{name: "404", err: &retry.StatusError{Code: 404}, want: false},
		{name: "400", err: &retry.StatusError{Code: 400}, want: false},
		{name: "transient", err: services.ErrTransient, want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "validation", err: services.Wrap(services.ErrValidation, "upload", "check", "bad", nil), want: false},
		{name: "permanent 500", err: retry.Permanent(&retry.StatusError{Code: 500}), want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
