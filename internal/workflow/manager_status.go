package workflow

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	ActiveJobs  []string
	Completed   int
	Failed      int
	LastError   string
	LastJob     *queue.Job
	QueueStats  map[queue.Status]int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:   m.running,
		Workers:   len(m.workers),
		Completed: m.finished,
		Failed:    m.failed,
	}
	lastErr := m.lastErr
	if m.lastJob != nil {
		copy := *m.lastJob
		summary.LastJob = &copy
	}
	for id := range m.active {
		summary.ActiveJobs = append(summary.ActiveJobs, id)
	}
	stages := append([]pipelineStage(nil), m.stages...)
	m.mu.RUnlock()

	sort.Strings(summary.ActiveJobs)
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats

	summary.StageHealth = make(map[string]stage.Health, len(stages))
	for _, stg := range stages {
		if stg.handler == nil {
			continue
		}
		summary.StageHealth[stg.name] = stg.handler.HealthCheck(ctx)
	}
	return summary
}

// ActiveWorkDirs returns the names of per-job work directories that must
// not be swept: jobs held by this manager plus any the store still lists as
// processing or queued.
func (m *Manager) ActiveWorkDirs(ctx context.Context) map[string]struct{} {
	dirs := make(map[string]struct{})
	add := func(job *queue.Job) {
		if dir := strings.TrimSpace(job.WorkDir); dir != "" {
			dirs[filepath.Base(dir)] = struct{}{}
		}
		if job.PublicID != "" {
			dirs[job.PublicID] = struct{}{}
		}
	}

	m.mu.RLock()
	for _, job := range m.active {
		add(job)
	}
	m.mu.RUnlock()

	statuses := []queue.Status{queue.StatusQueued}
	for _, status := range queue.AllStatuses() {
		if status.IsProcessing() {
			statuses = append(statuses, status)
		}
	}
	jobs, err := m.store.List(ctx, statuses...)
	if err != nil {
		m.logger.Warn("failed to list active jobs for work dir sweep", logging.Error(err))
		return dirs
	}
	for _, job := range jobs {
		add(job)
	}
	return dirs
}

func (m *Manager) trackActive(job *queue.Job) {
	m.mu.Lock()
	m.active[job.PublicID] = job
	m.mu.Unlock()
}

func (m *Manager) untrackActive(job *queue.Job) {
	m.mu.Lock()
	delete(m.active, job.PublicID)
	m.mu.Unlock()
}

func (m *Manager) recordOutcome(completed bool) {
	m.mu.Lock()
	if completed {
		m.finished++
	} else {
		m.failed++
	}
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
