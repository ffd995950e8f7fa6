package api

import (
	"context"
	"errors"

	"matchreel/internal/queue"
)

type RetryOutcome string

const (
	RetryUpdated   RetryOutcome = "retried"
	RetryNotFound  RetryOutcome = "not_found"
	RetryNotFailed RetryOutcome = "not_failed"
)

type RetryJobResult struct {
	JobID   string       `json:"jobId"`
	Outcome RetryOutcome `json:"outcome"`
}

type RetryJobsResult struct {
	UpdatedCount int64            `json:"updatedCount"`
	Jobs         []RetryJobResult `json:"jobs"`
}

type CancelOutcome string

const (
	CancelCancelled CancelOutcome = "cancelled"
	CancelRequested CancelOutcome = "cancel_requested"
	CancelNotFound  CancelOutcome = "not_found"
	CancelFinished  CancelOutcome = "already_finished"
)

type CancelJobResult struct {
	JobID       string        `json:"jobId"`
	Outcome     CancelOutcome `json:"outcome"`
	PriorStatus string        `json:"priorStatus,omitempty"`
}

type CancelJobsResult struct {
	UpdatedCount int64             `json:"updatedCount"`
	Jobs         []CancelJobResult `json:"jobs"`
}

// Retry requeues failed or cancelled jobs by reference.
func (s *JobService) Retry(ctx context.Context, refs []string) (RetryJobsResult, error) {
	result := RetryJobsResult{Jobs: make([]RetryJobResult, 0, len(refs))}
	for _, ref := range refs {
		job, err := s.store.Lookup(ctx, ref)
		if errors.Is(err, queue.ErrJobNotFound) {
			result.Jobs = append(result.Jobs, RetryJobResult{JobID: ref, Outcome: RetryNotFound})
			continue
		}
		if err != nil {
			return RetryJobsResult{}, err
		}
		if job.Status != queue.StatusFailed && job.Status != queue.StatusCancelled {
			result.Jobs = append(result.Jobs, RetryJobResult{JobID: job.PublicID, Outcome: RetryNotFailed})
			continue
		}
		updated, err := s.store.Retry(ctx, job.ID)
		if err != nil {
			return RetryJobsResult{}, err
		}
		outcome := RetryNotFailed
		if updated > 0 {
			outcome = RetryUpdated
			result.UpdatedCount += updated
		}
		result.Jobs = append(result.Jobs, RetryJobResult{JobID: job.PublicID, Outcome: outcome})
	}
	return result, nil
}

// Cancel aborts jobs by reference. Queued jobs are cancelled immediately;
// claimed jobs stop at their next stage boundary.
func (s *JobService) Cancel(ctx context.Context, refs []string) (CancelJobsResult, error) {
	result := CancelJobsResult{Jobs: make([]CancelJobResult, 0, len(refs))}
	for _, ref := range refs {
		job, err := s.store.Lookup(ctx, ref)
		if errors.Is(err, queue.ErrJobNotFound) {
			result.Jobs = append(result.Jobs, CancelJobResult{JobID: ref, Outcome: CancelNotFound})
			continue
		}
		if err != nil {
			return CancelJobsResult{}, err
		}
		prior := string(job.Status)
		updated, err := s.store.RequestCancel(ctx, job.ID)
		switch {
		case errors.Is(err, queue.ErrJobFinished):
			result.Jobs = append(result.Jobs, CancelJobResult{JobID: job.PublicID, Outcome: CancelFinished, PriorStatus: prior})
			continue
		case errors.Is(err, queue.ErrJobNotFound):
			result.Jobs = append(result.Jobs, CancelJobResult{JobID: job.PublicID, Outcome: CancelNotFound})
			continue
		case err != nil:
			return CancelJobsResult{}, err
		}
		outcome := CancelRequested
		if updated != nil && updated.Status == queue.StatusCancelled {
			outcome = CancelCancelled
		}
		result.UpdatedCount++
		result.Jobs = append(result.Jobs, CancelJobResult{JobID: job.PublicID, Outcome: outcome, PriorStatus: prior})
	}
	return result, nil
}
