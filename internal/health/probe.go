package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"matchreel/internal/retry"
)

// probe issues GET requests to ep until one succeeds or the retry policy is
// exhausted. Each attempt has its own timeout.
func (m *Monitor) probe(ctx context.Context, ep Endpoint) CheckResult {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = m.timeout
	}
	result := CheckResult{}
	err := m.retry.Do(ctx, "health check "+ep.Name, func(ctx context.Context) error {
		result.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, ep.URL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", "matchreel-health/0.1.0")
		start := m.clock()
		resp, err := m.client.Do(req)
		result.Latency = m.clock().Sub(start)
		if err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("no response within %s: %w", timeout, context.DeadlineExceeded)
			}
			return err
		}
		defer resp.Body.Close()
		result.StatusCode = resp.StatusCode
		if err := retry.CheckResponse(resp); err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	})
	result.CheckedAt = m.clock()
	result.LatencyMs = result.Latency.Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Healthy = true
	return result
}

