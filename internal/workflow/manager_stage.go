package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/stage"
)

var stageMessages = map[queue.Status]string{
	queue.StatusInitializing: "Resolving local video",
	queue.StatusDownloading:  "Downloading video",
	queue.StatusParsingNotes: "Parsing match notes",
	queue.StatusAnalyzing:    "Analyzing video",
	queue.StatusAssembling:   "Assembling clips",
	queue.StatusUploading:    "Uploading clips",
}

func (m *Manager) processJob(ctx context.Context, job *queue.Job) {
	jobCtx, cancelJob := context.WithCancelCause(services.WithJobID(ctx, job.PublicID))
	defer cancelJob(nil)
	logger := logging.WithContext(jobCtx, m.logger)

	m.trackActive(job)
	defer m.untrackActive(job)

	hbCtx, stopHeartbeat := context.WithCancel(jobCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job, func() { cancelJob(queue.ErrClaimLost) })
	defer func() {
		stopHeartbeat()
		hbWG.Wait()
	}()

	started := time.Now()
	logger.Info("job claimed",
		logging.String(logging.FieldEventType, "job_claimed"),
		logging.Int("attempt", job.Attempts),
		logging.String("club", job.Club),
		logging.Bool("remote", job.IsRemote()),
	)

	for _, stg := range m.snapshotStages() {
		if m.cancelRequested(jobCtx, logger, job) {
			m.cancelJob(jobCtx, logger, job, stg.name)
			return
		}
		err := m.runStage(jobCtx, stg, job)
		if err == nil {
			continue
		}
		switch {
		case errors.Is(context.Cause(jobCtx), queue.ErrClaimLost) || errors.Is(err, queue.ErrClaimLost):
			m.abandonJob(logger, job, stg.name)
		case ctx.Err() != nil:
			m.releaseJob(ctx, logger, job, stg.name)
		default:
			m.failJob(jobCtx, logger, job, stg.name, err)
		}
		return
	}
	m.completeJob(jobCtx, logger, job, time.Since(started))
}

func (m *Manager) runStage(ctx context.Context, stg pipelineStage, job *queue.Job) error {
	status := stg.statusFor(job)
	ctx = services.WithStage(ctx, stg.name)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)

	if err := m.store.UpdateProgress(ctx, job, status, 0, stageMessages[status]); err != nil {
		return fmt.Errorf("persist %s start: %w", stg.name, err)
	}
	m.setLastJob(job)

	timeout := m.cfg.StageTimeout(stg.name)
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("status", string(status)),
		logging.Duration("timeout", timeout),
	)
	start := time.Now()
	if err := invokeStage(stageCtx, stg.handler, job); err != nil {
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return services.Wrap(services.ErrTimeout, stg.name, "execute",
				fmt.Sprintf("stage exceeded its %s timeout", timeout), err)
		}
		return err
	}
	if err := m.store.SaveOutputs(ctx, job); err != nil {
		return fmt.Errorf("persist %s outputs: %w", stg.name, err)
	}
	m.setLastJob(job)
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Float64("progress", job.Progress),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}

// invokeStage runs Prepare and Execute on a copy of job so a handler that
// ignores cancellation cannot keep mutating the worker's job after the
// timeout fires. Outputs are copied back only on success.
func invokeStage(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	work := *job
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("stage panicked: %v", r)
			}
		}()
		if err := handler.Prepare(ctx, &work); err != nil {
			done <- err
			return
		}
		done <- handler.Execute(ctx, &work)
	}()

	select {
	case err := <-done:
		if err == nil {
			*job = work
		}
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			if err == nil {
				*job = work
			}
			return err
		default:
			return ctx.Err()
		}
	}
}

func (m *Manager) snapshotStages() []pipelineStage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]pipelineStage(nil), m.stages...)
}

func (m *Manager) cancelRequested(ctx context.Context, logger *slog.Logger, job *queue.Job) bool {
	requested, err := m.store.CancelRequested(ctx, job.ID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("cancel flag unavailable", logging.Error(err))
		}
		return false
	}
	return requested
}
