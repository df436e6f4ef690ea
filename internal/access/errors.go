package access

import "errors"

// Error taxonomy for access decisions. API handlers map these onto
// status codes; anything not listed here is an internal fault and is
// normalised to an opaque 500 at the boundary.
var (
	// ErrUnauthorized is returned when the caller may not touch the
	// lock. A lock that does not exist and a lock owned by someone
	// else produce this same error: callers cannot probe for lock IDs.
	ErrUnauthorized = errors.New("access: unauthorized")

	// ErrInvalidFormat is returned when a PIN or target state fails
	// format validation. The offending value is never included.
	ErrInvalidFormat = errors.New("access: invalid format")

	// ErrWrongPIN is returned by Transition when verification came back
	// negative. A definitive no, distinct from a missing session.
	ErrWrongPIN = errors.New("access: pin verification failed")

	// ErrSameState is returned when a transition targets the state the
	// lock is already in. Nothing is written.
	ErrSameState = errors.New("access: lock already in target state")
)
