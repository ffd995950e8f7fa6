package api

import (
	"context"
	"time"

	"matchreel/internal/queue"
)

// defaultJobEstimate is the planning figure for one job's wall time.
const defaultJobEstimate = 10 * time.Minute

// JobStore abstracts the queue persistence used by the job service.
type JobStore interface {
	Enqueue(ctx context.Context, sub queue.Submission) (*queue.Job, error)
	Lookup(ctx context.Context, ref string) (*queue.Job, error)
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	UploadsForJob(ctx context.Context, jobID int64) ([]queue.UploadRecord, error)
	RequestCancel(ctx context.Context, id int64) (*queue.Job, error)
	Retry(ctx context.Context, ids ...int64) (int64, error)
}

// JobService exposes job operations returning API DTOs.
type JobService struct {
	store       JobStore
	concurrency int
	estimate    time.Duration
	now         func() time.Time
}

// NewJobService constructs a JobService. concurrency feeds the completion
// estimate returned on submission.
func NewJobService(store JobStore, concurrency int) *JobService {
	if store == nil {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &JobService{store: store, concurrency: concurrency, estimate: defaultJobEstimate, now: time.Now}
}

// Submit validates and enqueues a job.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	sub, err := req.ToSubmission(s.now())
	if err != nil {
		return SubmitResponse{}, err
	}
	ahead := 0
	if stats, err := s.store.Stats(ctx); err == nil {
		for status, count := range stats {
			if status == queue.StatusQueued || status.IsProcessing() {
				ahead += count
			}
		}
	}
	job, err := s.store.Enqueue(ctx, sub)
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{
		JobID:                      job.PublicID,
		Status:                     string(job.Status),
		EstimatedCompletionSeconds: int64(EstimateCompletion(ahead, s.concurrency, s.estimate).Seconds()),
	}, nil
}

// EstimateCompletion returns the expected wait for a job with ahead jobs
// already queued or running on a pool of concurrency workers.
func EstimateCompletion(ahead, concurrency int, perJob time.Duration) time.Duration {
	if concurrency <= 0 {
		concurrency = 1
	}
	if ahead < 0 {
		ahead = 0
	}
	waves := ahead/concurrency + 1
	return time.Duration(waves) * perJob
}

// Describe fetches one job with its uploads. Unknown references return
// queue.ErrJobNotFound.
func (s *JobService) Describe(ctx context.Context, ref string) (*Job, error) {
	job, err := s.store.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	uploads, err := s.store.UploadsForJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	dto := FromJob(job, uploads)
	return &dto, nil
}

// List returns jobs filtered by status, newest first.
func (s *JobService) List(ctx context.Context, statuses ...queue.Status) ([]Job, error) {
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return SortJobsNewestFirst(FromJobs(jobs)), nil
}

// Stats returns queue summary counts keyed by status string.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}
