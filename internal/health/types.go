package health

import (
	"time"

	"matchreel/internal/config"
)

// Status is the last observed state of an endpoint.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Endpoint is a polled upstream service.
type Endpoint struct {
	Name     string        `json:"name"`
	URL      string        `json:"url"`
	Critical bool          `json:"critical"`
	Timeout  time.Duration `json:"-"`
}

// EndpointFromConfig converts a [[health.endpoints]] entry.
func EndpointFromConfig(ep config.Endpoint) Endpoint {
	return Endpoint{
		Name:     ep.Name,
		URL:      ep.URL,
		Critical: ep.Critical,
		Timeout:  time.Duration(ep.TimeoutSeconds) * time.Second,
	}
}

// CheckResult is the outcome of one check, after retries.
type CheckResult struct {
	Healthy    bool          `json:"healthy"`
	StatusCode int           `json:"statusCode,omitempty"`
	Latency    time.Duration `json:"-"`
	LatencyMs  int64         `json:"latencyMs"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
	CheckedAt  time.Time     `json:"checkedAt"`
}

// Record is the health state kept for one endpoint.
type Record struct {
	Endpoint            Endpoint     `json:"endpoint"`
	Status              Status       `json:"status"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	TotalChecks         int          `json:"totalChecks"`
	TotalFailures       int          `json:"totalFailures"`
	LastCheck           *CheckResult `json:"lastCheck,omitempty"`
	LastSuccess         time.Time    `json:"lastSuccess,omitzero"`
	LastFailure         time.Time    `json:"lastFailure,omitzero"`
	AlertOpen           bool         `json:"alertOpen"`
	AlertOpenedAt       time.Time    `json:"alertOpenedAt,omitzero"`
	AvgLatencyMs        float64      `json:"avgLatencyMs"`
	Uptime              float64      `json:"uptimePercent"`
	Samples             int          `json:"samples"`
}

// Overall health values.
const (
	OverallHealthy   = "healthy"
	OverallUnhealthy = "unhealthy"
)

// Summary is the aggregate view served at /health.
type Summary struct {
	Overall          string    `json:"overall"`
	TotalEndpoints   int       `json:"totalEndpoints"`
	HealthyEndpoints int       `json:"healthyEndpoints"`
	CriticalDown     int       `json:"criticalDown"`
	Endpoints        []Record  `json:"endpoints"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

// Healthy reports whether Overall is healthy.
func (s Summary) Healthy() bool { return s.Overall == OverallHealthy }

// EventKind names a monitor event.
type EventKind string

const (
	EventAlert     EventKind = "alert"
	EventRecovered EventKind = "recovered"
	EventSlow      EventKind = "slow"
)

// Event is delivered to a Notifier when alert state changes or a response
// is slow.
type Event struct {
	Kind     EventKind
	Endpoint Endpoint
	Failures int
	Error    string
	Latency  time.Duration
	Downtime time.Duration
	At       time.Time
}

type sample struct {
	at      time.Time
	healthy bool
	latency time.Duration
}
