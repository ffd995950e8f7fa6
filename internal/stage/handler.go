package stage

import (
	"context"

	"matchreel/internal/queue"
)

// Handler describes the contract the worker pool needs from each pipeline
// stage. Prepare validates inputs and may fail fast; Execute does the work
// and records its outputs on the job. Both run under the stage timeout.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}
