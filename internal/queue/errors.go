package queue

import "errors"

var (
	// ErrNotFound reports an unknown or already evicted job id.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateRequest reports an enqueue whose correlation id is already
	// owned by a queued or running job.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrJobFinished reports an operation that needs a non-terminal job.
	ErrJobFinished = errors.New("job already finished")
	// ErrJobActive reports an operation that needs a terminal job.
	ErrJobActive = errors.New("job still active")
	// ErrStopped reports use of a queue after Stop.
	ErrStopped = errors.New("queue stopped")
	// ErrCanceledByUser is the cancellation cause recorded by Cancel.
	ErrCanceledByUser = errors.New("canceled by user")
)
