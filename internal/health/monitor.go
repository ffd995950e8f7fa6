package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/retry"
	"matchreel/internal/services"
)

const maxConcurrentChecks = 8

type entry struct {
	record  Record
	history []sample
}

// Monitor owns the endpoint records. Check results are applied one at a
// time under the monitor lock; probes themselves run concurrently.
type Monitor struct {
	mu      sync.RWMutex
	entries map[string]*entry

	client         *http.Client
	retry          *retry.Executor
	notifier       Notifier
	logger         *slog.Logger
	clock          func() time.Time
	interval       time.Duration
	uptimeInterval time.Duration
	window         time.Duration
	timeout        time.Duration
	slow           time.Duration
	threshold      int
	maxSamples     int

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithHTTPClient overrides the probe client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Monitor) {
		if client != nil {
			m.client = client
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithRetryPolicy overrides the per-check retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(m *Monitor) {
		m.retry = retry.New(policy, m.logger)
	}
}

// WithThresholds overrides the slow-response threshold and the default
// per-attempt timeout. Zero values keep the configured durations.
func WithThresholds(slow, timeout time.Duration) Option {
	return func(m *Monitor) {
		if slow > 0 {
			m.slow = slow
		}
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// New builds a monitor from the [health] section and registers its
// endpoints. notifier may be nil.
func New(cfg config.Health, retryCfg config.Retry, notifier Notifier, logger *slog.Logger, opts ...Option) (*Monitor, error) {
	logger = logging.NewComponentLogger(logger, "health")
	m := &Monitor{
		entries:        make(map[string]*entry),
		client:         &http.Client{},
		notifier:       notifier,
		logger:         logger,
		clock:          time.Now,
		interval:       seconds(cfg.Interval, 60),
		uptimeInterval: seconds(cfg.UptimeInterval, 300),
		window:         time.Duration(max(cfg.HistoryWindowHours, 1)) * time.Hour,
		timeout:        seconds(cfg.TimeoutSeconds, 30),
		slow:           seconds(cfg.SlowThresholdSeconds, 10),
		threshold:      max(cfg.FailureThreshold, 1),
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 2
	}
	m.retry = retry.New(retry.PolicyFromConfig(retryCfg).WithMaxAttempts(attempts), logger)
	m.maxSamples = max(int(m.window/m.interval)+1, 100)
	for _, opt := range opts {
		opt(m)
	}
	for _, ep := range cfg.Endpoints {
		if err := m.Register(EndpointFromConfig(ep)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

// Register adds an endpoint or replaces the settings of an existing one.
// State is kept when the URL is unchanged.
func (m *Monitor) Register(ep Endpoint) error {
	ep.Name = strings.TrimSpace(ep.Name)
	ep.URL = strings.TrimSpace(ep.URL)
	if ep.Name == "" {
		return services.Wrap(services.ErrValidation, "health", "register", "endpoint name is required", nil)
	}
	parsed, err := url.Parse(ep.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return services.Wrap(services.ErrValidation, "health", "register", fmt.Sprintf("endpoint %q needs an http(s) url", ep.Name), err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[ep.Name]; ok && existing.record.Endpoint.URL == ep.URL {
		existing.record.Endpoint = ep
		return nil
	}
	m.entries[ep.Name] = &entry{record: Record{Endpoint: ep, Status: StatusUnknown}}
	m.logger.Info("endpoint registered",
		logging.String(logging.FieldEventType, "endpoint_registered"),
		logging.String("endpoint", ep.Name),
		logging.Bool("critical", ep.Critical),
	)
	return nil
}

// Remove drops an endpoint. It reports whether the endpoint existed.
func (m *Monitor) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[name]; !ok {
		return false
	}
	delete(m.entries, name)
	m.logger.Info("endpoint removed",
		logging.String(logging.FieldEventType, "endpoint_removed"),
		logging.String("endpoint", name),
	)
	return true
}

// Start launches the check and uptime loops. The first round of checks runs
// immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(2)
	go m.loop(ctx, m.interval, func(ctx context.Context) { m.CheckAll(ctx) }, true)
	go m.loop(ctx, m.uptimeInterval, func(context.Context) { m.RecomputeUptime() }, false)
	m.logger.Info("health monitor started",
		logging.String(logging.FieldEventType, "health_monitor_started"),
		logging.Duration("interval", m.interval),
		logging.Int("endpoints", m.count()),
	)
}

// Stop halts the loops and waits for in-flight checks.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.lifecycle.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context, every time.Duration, fn func(context.Context), immediate bool) {
	defer m.wg.Done()
	if immediate {
		fn(ctx)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// CheckNow checks one endpoint immediately.
func (m *Monitor) CheckNow(ctx context.Context, name string) (Record, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	var ep Endpoint
	if ok {
		ep = e.record.Endpoint
	}
	m.mu.RUnlock()
	if !ok {
		return Record{}, services.Wrap(services.ErrNotFound, "health", "check", fmt.Sprintf("endpoint %q is not registered", name), nil)
	}
	result := m.probe(ctx, ep)
	return m.apply(ctx, ep, result), nil
}

// CheckAll checks every endpoint concurrently and returns the updated
// records sorted by name.
func (m *Monitor) CheckAll(ctx context.Context) []Record {
	m.mu.RLock()
	endpoints := make([]Endpoint, 0, len(m.entries))
	for _, e := range m.entries {
		endpoints = append(endpoints, e.record.Endpoint)
	}
	m.mu.RUnlock()

	results := make([]CheckResult, len(endpoints))
	var g errgroup.Group
	g.SetLimit(maxConcurrentChecks)
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = m.probe(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return m.Records()
	}
	for i, ep := range endpoints {
		m.apply(ctx, ep, results[i])
	}
	return m.Records()
}

// apply folds a check result into the endpoint record and emits events
// after the lock is released.
func (m *Monitor) apply(ctx context.Context, ep Endpoint, result CheckResult) Record {
	var events []Event
	m.mu.Lock()
	e, ok := m.entries[ep.Name]
	if !ok || e.record.Endpoint.URL != ep.URL {
		// Removed or re-pointed while the probe was in flight.
		m.mu.Unlock()
		return Record{Endpoint: ep, Status: StatusUnknown, LastCheck: &result}
	}
	rec := &e.record
	rec.TotalChecks++
	rec.LastCheck = &result
	if result.Healthy {
		if rec.AlertOpen {
			events = append(events, Event{
				Kind:     EventRecovered,
				Endpoint: rec.Endpoint,
				Downtime: result.CheckedAt.Sub(rec.AlertOpenedAt),
				At:       result.CheckedAt,
			})
			rec.AlertOpen = false
			rec.AlertOpenedAt = time.Time{}
		}
		rec.Status = StatusHealthy
		rec.ConsecutiveFailures = 0
		rec.LastSuccess = result.CheckedAt
		if m.slow > 0 && result.Latency > m.slow {
			events = append(events, Event{Kind: EventSlow, Endpoint: rec.Endpoint, Latency: result.Latency, At: result.CheckedAt})
		}
	} else {
		rec.Status = StatusUnhealthy
		rec.ConsecutiveFailures++
		rec.TotalFailures++
		rec.LastFailure = result.CheckedAt
		if !rec.AlertOpen && rec.ConsecutiveFailures >= m.threshold {
			rec.AlertOpen = true
			rec.AlertOpenedAt = result.CheckedAt
			events = append(events, Event{
				Kind:     EventAlert,
				Endpoint: rec.Endpoint,
				Failures: rec.ConsecutiveFailures,
				Error:    result.Error,
				At:       result.CheckedAt,
			})
		}
	}
	e.history = append(e.history, sample{at: result.CheckedAt, healthy: result.Healthy, latency: result.Latency})
	if over := len(e.history) - m.maxSamples; over > 0 {
		e.history = append(e.history[:0], e.history[over:]...)
	}
	rec.AvgLatencyMs = averageLatencyMs(e.history)
	snapshot := *rec
	m.mu.Unlock()

	m.logResult(snapshot, result)
	for _, ev := range events {
		m.emit(ctx, ev)
	}
	return snapshot
}

func (m *Monitor) logResult(rec Record, result CheckResult) {
	attrs := []logging.Attr{
		logging.String("endpoint", rec.Endpoint.Name),
		logging.Int64("latency_ms", result.LatencyMs),
		logging.Int("attempts", result.Attempts),
	}
	if result.Healthy {
		m.logger.Debug("endpoint healthy", logging.Args(attrs...)...)
		return
	}
	m.logger.Debug("endpoint check failed", logging.Args(append(attrs,
		logging.Int("consecutive_failures", rec.ConsecutiveFailures),
		logging.String("error", result.Error),
	)...)...)
}

func (m *Monitor) emit(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventAlert:
		logging.WarnWithContext(m.logger, "endpoint down", "health_alert",
			logging.String("endpoint", ev.Endpoint.Name),
			logging.Bool("critical", ev.Endpoint.Critical),
			logging.Int("consecutive_failures", ev.Failures),
			logging.String("error", ev.Error),
			logging.String(logging.FieldErrorHint, "check the endpoint service and network"),
			logging.String(logging.FieldImpact, "jobs depending on this service may fail"),
		)
	case EventRecovered:
		m.logger.Info("endpoint recovered",
			logging.String(logging.FieldEventType, "health_recovered"),
			logging.String("endpoint", ev.Endpoint.Name),
			logging.Duration("downtime", ev.Downtime),
		)
	case EventSlow:
		logging.WarnWithContext(m.logger, "endpoint slow", "slow_response",
			logging.String("endpoint", ev.Endpoint.Name),
			logging.Duration("latency", ev.Latency),
			logging.String(logging.FieldErrorHint, "check endpoint load"),
			logging.String(logging.FieldImpact, "none; endpoint still counted healthy"),
		)
	}
	if m.notifier != nil {
		m.notifier.Notify(ctx, ev)
	}
}

// RecomputeUptime drops history older than the window and refreshes every
// record's uptime percentage.
func (m *Monitor) RecomputeUptime() {
	cutoff := m.clock().Add(-m.window)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		keep := e.history[:0]
		for _, s := range e.history {
			if !s.at.Before(cutoff) {
				keep = append(keep, s)
			}
		}
		e.history = keep
		e.record.Samples = len(keep)
		e.record.AvgLatencyMs = averageLatencyMs(keep)
		if len(keep) == 0 {
			e.record.Uptime = 0
			continue
		}
		healthy := 0
		for _, s := range keep {
			if s.healthy {
				healthy++
			}
		}
		e.record.Uptime = float64(healthy) / float64(len(keep)) * 100
	}
}

// averageLatencyMs is the mean latency of the successful checks in history.
// Failed checks are excluded.
func averageLatencyMs(history []sample) float64 {
	var (
		total time.Duration
		n     int
	)
	for _, s := range history {
		if s.healthy {
			total += s.latency
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(total.Microseconds()) / float64(n) / 1000
}

// Records returns a snapshot of every record sorted by name.
func (m *Monitor) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.entries))
	for _, e := range m.entries {
		rec := e.record
		if rec.LastCheck != nil {
			check := *rec.LastCheck
			rec.LastCheck = &check
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint.Name < out[j].Endpoint.Name })
	return out
}

// Summary aggregates the records. The system is unhealthy when a critical
// endpoint is down, or when every checked endpoint is down.
func (m *Monitor) Summary() Summary {
	records := m.Records()
	s := Summary{TotalEndpoints: len(records), Endpoints: records, GeneratedAt: m.clock()}
	checked, down := 0, 0
	for _, rec := range records {
		switch rec.Status {
		case StatusHealthy:
			s.HealthyEndpoints++
			checked++
		case StatusUnhealthy:
			checked++
			down++
			if rec.Endpoint.Critical {
				s.CriticalDown++
			}
		}
	}
	s.Overall = OverallHealthy
	if s.CriticalDown > 0 || (checked > 0 && down == checked) {
		s.Overall = OverallUnhealthy
	}
	return s
}

func (m *Monitor) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
