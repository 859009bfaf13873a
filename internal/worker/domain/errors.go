package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")

	// ErrInvalidPayload is returned when job payload JSON is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrMaxAttemptsExceeded is returned when a job has exhausted its retry budget
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

	// ErrUnknownJobType is returned when no executor is registered for a job type
	ErrUnknownJobType = errors.New("unknown job type")
)

// RetryableError wraps catastrophic failures that should trigger a retry
// through the queue's backoff policy (upstream entirely unreachable,
// database connection lost before any work started). Per-record failures
// never become a RetryableError; they are tallied inside the job result.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is a catastrophic failure the queue
// should retry.
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}
