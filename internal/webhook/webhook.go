// Package webhook posts job completion and failure callbacks to the URL a
// caller supplied at submission time. Delivery is best-effort: transient
// failures are retried through the retry executor and the final outcome is
// returned for logging, never propagated as a job failure.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/retry"
)

const defaultUserAgent = "matchreel-webhook/0.1.0"

// Status values carried in callbacks.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Payload is the JSON body posted to the caller.
type Payload struct {
	JobID            string          `json:"jobId"`
	Status           string          `json:"status"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            string          `json:"error,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

// Client delivers callbacks.
type Client struct {
	http      *http.Client
	retry     *retry.Executor
	userAgent string
	logger    *slog.Logger
}

// NewClient constructs a Client from the [webhook] and [retry] settings.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	logger = logging.NewComponentLogger(logger, "webhook")
	timeout := time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := retry.PolicyFromConfig(cfg.Retry)
	if cfg.Webhook.MaxAttempts > 0 {
		policy = policy.WithMaxAttempts(cfg.Webhook.MaxAttempts)
	}
	ua := strings.TrimSpace(cfg.Webhook.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		retry:     retry.New(policy, logger),
		userAgent: ua,
		logger:    logger,
	}
}

// WithHTTPClient returns a copy of c using client for requests.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	clone := *c
	if client != nil {
		clone.http = client
	}
	return &clone
}

// Send posts payload to url. An empty url is a no-op.
func (c *Client) Send(ctx context.Context, url string, payload Payload) error {
	url = strings.TrimSpace(url)
	if c == nil || url == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	return c.retry.Do(ctx, "post webhook", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Matchreel-Job", payload.JobID)
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := retry.CheckResponse(resp); err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// Notify sends payload and logs the outcome. It never returns an error so
// callers cannot accidentally fail a job on delivery problems.
func (c *Client) Notify(ctx context.Context, url string, payload Payload) {
	if c == nil || strings.TrimSpace(url) == "" {
		return
	}
	logger := logging.WithContext(ctx, c.logger)
	if err := c.Send(ctx, url, payload); err != nil {
		logging.WarnWithContext(logger, "webhook delivery failed", "webhook_failed",
			logging.String("status", payload.Status),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the caller's webhook endpoint"),
			logging.String(logging.FieldImpact, "caller must poll job status"),
		)
		return
	}
	logger.Info("webhook delivered",
		logging.String(logging.FieldEventType, "webhook_delivered"),
		logging.String("status", payload.Status),
	)
}
