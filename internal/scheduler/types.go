package scheduler

import (
	"context"
	"sync/atomic"
)

// JobFunc is one run of a scheduled job. ctx is cancelled when the run exceeds its timeout
// or the scheduler stops.
type JobFunc func(ctx context.Context) error

// Job is a named JobFunc bound to a cron spec.
type Job struct {
	Name string
	Spec string
	// running guards against a slow run overlapping the next tick
	running atomic.Bool
	fn      JobFunc
}

type JobHandler interface {
	// Runs the job once, skipping if a previous run is still in flight
	Execute(ctx context.Context) error
	// Returns the name of the job, which may be inferred from the function name
	GetName() string
}
