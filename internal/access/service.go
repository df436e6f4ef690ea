package access

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/dushansineth-design/keyless-door-app/internal/auth"
	"github.com/dushansineth-design/keyless-door-app/internal/credential"
	"github.com/dushansineth-design/keyless-door-app/internal/lock"
)

// Identity is the authenticated caller, taken from verified JWT claims.
// It is never populated from a request body.
type Identity struct {
	UserID   string
	Username string
	Role     auth.Role
}

// lockStripes is the number of mutex stripes serialising per-lock
// operations. Power of two so the fnv hash distributes evenly.
const lockStripes = 16

// Telemetry receives verification timings. Implementations must not
// block; the InfluxDB client's batched writer satisfies this.
type Telemetry interface {
	WriteVerifyDuration(lockID string, valid bool, duration time.Duration)
}

// Service is the single gatekeeper for credential and transition
// operations. It is the only caller of the credential store: every
// request passes an ownership check before any credential is touched,
// and a missing lock is indistinguishable from a lock the caller does
// not own.
type Service struct {
	locks     *lock.Registry
	creds     credential.Store
	logger    *slog.Logger
	telemetry Telemetry

	stripes [lockStripes]sync.Mutex
}

// NewService creates the access control service.
func NewService(locks *lock.Registry, creds credential.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		locks:  locks,
		creds:  creds,
		logger: logger,
	}
}

// SetTelemetry sets the verification-timing sink. Pass nil to disable.
func (s *Service) SetTelemetry(t Telemetry) {
	s.telemetry = t
}

// stripe returns the mutex guarding a lock ID.
func (s *Service) stripe(lockID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(lockID)) //nolint:errcheck // fnv writes never fail
	return &s.stripes[h.Sum32()%lockStripes]
}

// authorize loads the lock and checks ownership. Both a missing lock
// and a non-owned lock return ErrUnauthorized; only storage faults
// surface as distinct errors.
func (s *Service) authorize(ctx context.Context, caller Identity, lockID string) (*lock.Lock, error) {
	if caller.UserID == "" || lockID == "" {
		return nil, ErrUnauthorized
	}

	l, err := s.locks.Get(ctx, lockID)
	if err != nil {
		if errors.Is(err, lock.ErrLockNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("loading lock: %w", err)
	}

	if l.OwnerID != caller.UserID {
		return nil, ErrUnauthorized
	}
	return l, nil
}

// SetPin stores a new PIN for a lock the caller owns.
// A rejected PIN leaves any existing credential untouched.
func (s *Service) SetPin(ctx context.Context, caller Identity, lockID, rawPin string) error {
	if _, err := s.authorize(ctx, caller, lockID); err != nil {
		return err
	}

	if err := s.creds.SetPin(ctx, lockID, rawPin); err != nil {
		if errors.Is(err, credential.ErrInvalidPIN) {
			return ErrInvalidFormat
		}
		return fmt.Errorf("setting pin: %w", err)
	}

	s.logger.Info("pin updated", "lock_id", lockID, "user_id", caller.UserID)
	return nil
}

// VerifyPin checks an attempt against the lock's credential.
// A negative result is a value, not an error: (false, nil).
func (s *Service) VerifyPin(ctx context.Context, caller Identity, lockID, attemptPin string) (bool, error) {
	if _, err := s.authorize(ctx, caller, lockID); err != nil {
		return false, err
	}

	start := time.Now()
	valid, err := s.creds.VerifyPin(ctx, lockID, attemptPin)
	if err != nil {
		if errors.Is(err, credential.ErrInvalidPIN) {
			return false, ErrInvalidFormat
		}
		return false, fmt.Errorf("verifying pin: %w", err)
	}

	if s.telemetry != nil {
		s.telemetry.WriteVerifyDuration(lockID, valid, time.Since(start))
	}
	return valid, nil
}

// Transition moves a lock the caller owns into the target state.
//
// Unlocking requires positive PIN verification; locking back is
// owner-only and ignores the PIN. The verify-then-write sequence is
// serialised per lock with a striped mutex, and the underlying write
// is conditional on the prior state, so racing attempts produce
// exactly one transition and one activity record.
func (s *Service) Transition(ctx context.Context, caller Identity, lockID string, target lock.State, attemptPin string) (*lock.Lock, error) {
	if !lock.IsValidState(target) {
		return nil, ErrInvalidFormat
	}

	l, err := s.authorize(ctx, caller, lockID)
	if err != nil {
		return nil, err
	}

	mu := s.stripe(lockID)
	mu.Lock()
	defer mu.Unlock()

	if l.State() == target {
		return nil, ErrSameState
	}

	if target == lock.StateUnlocked {
		start := time.Now()
		valid, err := s.creds.VerifyPin(ctx, lockID, attemptPin)
		if err != nil {
			if errors.Is(err, credential.ErrInvalidPIN) {
				return nil, ErrInvalidFormat
			}
			return nil, fmt.Errorf("verifying pin for unlock: %w", err)
		}
		if s.telemetry != nil {
			s.telemetry.WriteVerifyDuration(lockID, valid, time.Since(start))
		}
		if !valid {
			s.logger.Warn("unlock denied", "lock_id", lockID, "user_id", caller.UserID)
			return nil, ErrWrongPIN
		}
	}

	updated, err := s.locks.Transition(ctx, lockID, target, caller.UserID)
	if err != nil {
		switch {
		case errors.Is(err, lock.ErrSameState):
			return nil, ErrSameState
		case errors.Is(err, lock.ErrLockNotFound):
			// Deleted between authorize and write.
			return nil, ErrUnauthorized
		default:
			return nil, fmt.Errorf("transitioning lock: %w", err)
		}
	}
	return updated, nil
}
