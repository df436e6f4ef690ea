// Package lock provides the lock registry: persistence, cached reads,
// state transitions, and the append-only activity history.
//
// A lock has exactly two states, locked and unlocked. Transitions are
// written with a conditional UPDATE keyed on the expected prior state
// and the activity record is appended in the same transaction, so a
// race between concurrent attempts produces exactly one transition and
// one history entry.
//
// The package knows nothing about PINs or authorisation. Credential
// material lives behind the credential store, and ownership checks are
// the access service's job; the registry persists whatever it is told.
package lock
