package apperrors

import "errors"

var (
	// ErrNotFound is returned when a job id or table key is unknown.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyTerminal is returned when cancelling a job that has already
	// reached a terminal state.
	ErrAlreadyTerminal = errors.New("job already in terminal state")

	// ErrSourceUnreadable marks dataset source failures: missing files,
	// encoding errors, inconsistent column counts. Never retried.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrCancelled marks cooperative cancellation of a running job.
	ErrCancelled = errors.New("job cancelled")

	// ErrJobTimeout marks a job that exceeded its wall-clock ceiling.
	// Distinguishable from other failures so callers can retry with a
	// larger ceiling.
	ErrJobTimeout = errors.New("job timed out")

	// ErrUnsupportedFormat is returned for dataset formats with no
	// registered adapter.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)
