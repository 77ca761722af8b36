package pool

import "errors"

// Sentinel errors for pool operations. Any of them returned from Submit means
// the task was rejected and will not run.
var (
	// ErrNotStarted indicates Submit was called before Start.
	ErrNotStarted = errors.New("event pool not started")

	// ErrStopped indicates the pool has been stopped.
	ErrStopped = errors.New("event pool stopped")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("event pool already started")

	// ErrQueueFull indicates the task queue is at capacity.
	ErrQueueFull = errors.New("event pool queue full")

	// ErrStopTimeout indicates workers did not drain within the timeout.
	ErrStopTimeout = errors.New("timeout waiting for event workers to stop")
)

// IsRejected reports whether err means Submit refused the task.
func IsRejected(err error) bool {
	return errors.Is(err, ErrNotStarted) || errors.Is(err, ErrStopped) || errors.Is(err, ErrQueueFull)
}
