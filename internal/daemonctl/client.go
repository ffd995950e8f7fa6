package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"matchreel/internal/api"
	"matchreel/internal/config"
	"matchreel/internal/health"
	"matchreel/internal/storage"
)

// ErrDaemonNotRunning indicates the daemon HTTP API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the daemon bound at cfg.API.Bind.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	return NewClientFor(cfg.API.Bind, cfg.API.Token)
}

// NewClientFor builds a client for an explicit bind address.
func NewClientFor(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address is not configured")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// Cleanup and health checks can run for a while server side.
		http: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Submit enqueues a job.
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResponse, error) {
	var out api.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", nil, req, &out)
	return out, err
}

// Jobs lists jobs, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, statuses ...string) ([]api.Job, error) {
	values := url.Values{}
	for _, status := range statuses {
		if s := strings.TrimSpace(status); s != "" {
			values.Add("status", s)
		}
	}
	var out api.JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Job describes one job by public or numeric id.
func (c *Client) Job(ctx context.Context, ref string) (api.Job, error) {
	var out api.JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(ref), nil, nil, &out)
	return out.Job, err
}

// Cancel requests cancellation of one job. Not-found and already-finished
// outcomes are returned as results, not errors.
func (c *Client) Cancel(ctx context.Context, ref string) (api.CancelJobsResult, error) {
	var out api.CancelJobsResult
	err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(ref), nil, nil, &out)
	if IsStatus(err, http.StatusNotFound) || IsStatus(err, http.StatusConflict) {
		err = nil
	}
	return out, err
}

// Retry requeues one failed or cancelled job.
func (c *Client) Retry(ctx context.Context, ref string) (api.RetryJobsResult, error) {
	var out api.RetryJobsResult
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(ref)+"/retry", nil, nil, &out)
	if IsStatus(err, http.StatusNotFound) || IsStatus(err, http.StatusConflict) {
		err = nil
	}
	return out, err
}

// Health fetches the aggregate health summary. A 503 still yields a summary.
func (c *Client) Health(ctx context.Context) (health.Summary, error) {
	var out health.Summary
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
	if IsStatus(err, http.StatusServiceUnavailable) && out.Overall != "" {
		err = nil
	}
	return out, err
}

// RegisterEndpoint adds or updates a monitored endpoint and returns its first check.
func (c *Client) RegisterEndpoint(ctx context.Context, req api.RegisterEndpointRequest) (health.Record, error) {
	var out health.Record
	err := c.do(ctx, http.MethodPost, "/api/health/endpoints", nil, req, &out)
	return out, err
}

// RemoveEndpoint stops monitoring an endpoint.
func (c *Client) RemoveEndpoint(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/health/endpoints/"+url.PathEscape(name), nil, nil, nil)
}

// CheckEndpoints checks one endpoint, or all when name is empty.
func (c *Client) CheckEndpoints(ctx context.Context, name string) ([]health.Record, error) {
	values := url.Values{}
	if strings.TrimSpace(name) != "" {
		values.Set("endpoint", name)
	}
	var out []health.Record
	err := c.do(ctx, http.MethodPost, "/api/health/check", values, nil, &out)
	return out, err
}

// Storage fetches the storage report.
func (c *Client) Storage(ctx context.Context) (storage.Report, error) {
	var out storage.Report
	err := c.do(ctx, http.MethodGet, "/api/storage", nil, nil, &out)
	return out, err
}

// Cleanup triggers a cleanup cycle, or only the emergency pass.
func (c *Client) Cleanup(ctx context.Context, emergency bool) (api.CleanupResponse, error) {
	values := url.Values{}
	if emergency {
		values.Set("emergency", "1")
	}
	var out api.CleanupResponse
	err := c.do(ctx, http.MethodPost, "/api/storage/cleanup", values, nil, &out)
	return out, err
}

// MakePublic publishes hosted videos by id or every clip of one job.
func (c *Client) MakePublic(ctx context.Context, req api.PublishRequest) (api.PublishResponse, error) {
	var out api.PublishResponse
	err := c.do(ctx, http.MethodPost, "/api/storage/public", nil, req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var decodeErr error
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		decodeErr = json.Unmarshal(data, out)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload api.ErrorResponse
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}

func isUnavailable(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
