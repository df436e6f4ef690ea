package lock

import "errors"

// Domain errors for the lock package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, lock.ErrLockNotFound) {
//	    // handle not found case
//	}
var (
	// ErrLockNotFound is returned when a lock ID does not exist.
	ErrLockNotFound = errors.New("lock: not found")

	// ErrLockExists is returned when creating a lock with an ID that already exists.
	ErrLockExists = errors.New("lock: already exists")

	// ErrSameState is returned when a transition targets the state the
	// lock is already in. Nothing is written in that case.
	ErrSameState = errors.New("lock: already in target state")

	// ErrInvalidState is returned when a state value is not recognised.
	ErrInvalidState = errors.New("lock: invalid state")

	// ErrInvalidName is returned when a lock name is empty or too long.
	ErrInvalidName = errors.New("lock: invalid name")

	// ErrInvalidOwner is returned when a lock has no owner.
	ErrInvalidOwner = errors.New("lock: invalid owner")

	// ErrInvalidBattery is returned when a battery level is outside 0-100.
	ErrInvalidBattery = errors.New("lock: invalid battery level")
)
