package queue

import "errors"

var (
	// ErrJobNotFound is returned when a job identifier matches nothing.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned for operations that need a live job.
	ErrJobFinished = errors.New("job already finished")
	// ErrClaimLost is returned when a worker no longer owns the job it updates.
	ErrClaimLost = errors.New("job claim lost")
)
