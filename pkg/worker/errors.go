package worker

import "errors"

// Submit and lifecycle errors.
var (
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrQueueFull          = errors.New("worker pool queue full")
	ErrNilProcessor       = errors.New("worker pool needs a processor")
	ErrStopTimeout        = errors.New("worker pool stop timed out")
)

// IsShed reports whether Submit turned work away because the pool is
// saturated or shutting down. The caller still owns the work and may run it
// inline. Any other Submit error means the pool was used before Start.
func IsShed(err error) bool {
	return errors.Is(err, ErrQueueFull) || errors.Is(err, ErrPoolStopped)
}
