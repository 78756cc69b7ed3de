package scheduler

import "context"

// Job is a unit of work run by the worker pool.
type Job interface {
	// Execute runs the job. It must respect ctx cancellation.
	Execute(ctx context.Context) error

	// Subject identifies the record the job works on, for logging.
	Subject() string

	Description() string
}
