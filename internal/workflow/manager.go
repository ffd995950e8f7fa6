package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/notifications"
	"matchreel/internal/queue"
	"matchreel/internal/webhook"
)

// Manager coordinates the worker pool that processes queued jobs.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	errorWait    time.Duration
	notifier     notifications.Service
	webhook      *webhook.Client

	heartbeat *HeartbeatMonitor
	stages    []pipelineStage

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastJob  *queue.Job
	active   map[string]*queue.Job
	workers  []string
	finished int
	failed   int
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the ntfy service built from configuration.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithWebhook overrides the completion webhook client.
func WithWebhook(client *webhook.Client) ManagerOption {
	return func(m *Manager) {
		if client != nil {
			m.webhook = client
		}
	}
}

// NewManager constructs a workflow manager. Stages are registered with
// ConfigureStages before Start.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow-manager")
	pollInterval := time.Duration(cfg.Worker.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	errorWait := time.Duration(cfg.Worker.ErrorRetryInterval) * time.Second
	if errorWait <= 0 {
		errorWait = pollInterval
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		pollInterval: pollInterval,
		errorWait:    errorWait,
		notifier:     notifications.NewService(cfg),
		webhook:      webhook.NewClient(cfg, logger),
		heartbeat:    NewHeartbeatMonitor(cfg, store, logger),
		active:       make(map[string]*queue.Job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConfigureStages registers the stage handlers. Calling it while the
// manager is running has no effect on jobs already in flight.
func (m *Manager) ConfigureStages(set StageSet) {
	m.mu.Lock()
	m.stages = set.pipeline()
	m.mu.Unlock()
}
