package lock

import "time"

// State is the publicly visible position of a lock.
type State string

// Lock states. The values double as activity actions: a successful
// transition records the state the lock moved INTO.
const (
	StateLocked   State = "locked"
	StateUnlocked State = "unlocked"
)

// IsValidState returns true if the state is a recognised lock state.
func IsValidState(s State) bool {
	return s == StateLocked || s == StateUnlocked
}

// maxNameLength bounds lock display names.
const maxNameLength = 100

// Lock represents a single keyless door lock.
//
// A Lock deliberately carries NO credential material: PIN hashes live in
// a separate table behind the credential store, so neither this struct
// nor any query the registry runs can leak a hash.
type Lock struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`

	IsLocked     bool `json:"is_locked"`
	BatteryLevel int  `json:"battery_level"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State returns the lock's position as a State value.
func (l *Lock) State() State {
	if l.IsLocked {
		return StateLocked
	}
	return StateUnlocked
}

// Clone returns an independent copy of the Lock.
// Used by the registry so cached entries cannot be mutated by callers.
func (l *Lock) Clone() *Lock {
	if l == nil {
		return nil
	}
	cpy := *l
	return &cpy
}

// Validate checks the lock's fields before persistence.
func (l *Lock) Validate() error {
	if l.OwnerID == "" {
		return ErrInvalidOwner
	}
	if l.Name == "" || len(l.Name) > maxNameLength {
		return ErrInvalidName
	}
	if l.BatteryLevel < 0 || l.BatteryLevel > 100 {
		return ErrInvalidBattery
	}
	return nil
}

// ActivityRecord is one append-only entry in a lock's transition history.
// Records exist only for successful transitions; denied attempts are
// audited elsewhere and never appear here.
type ActivityRecord struct {
	ID        string    `json:"id"`
	LockID    string    `json:"lock_id"`
	Action    State     `json:"action"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}
