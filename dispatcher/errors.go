package dispatcher

import "errors"

var (
	// ErrMissingRetryTarget is returned when an entry has no retry destination.
	ErrMissingRetryTarget = errors.New("retry destination is not configured")
	// ErrMissingDeadLetterTarget is returned when an entry has no dead-letter destination.
	ErrMissingDeadLetterTarget = errors.New("dead-letter destination is not configured")
	// ErrNilClient is returned by constructors called without a broker client.
	ErrNilClient = errors.New("broker client is required")
)
