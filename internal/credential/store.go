package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dushansineth-design/keyless-door-app/internal/auth"
)

// ErrInvalidPIN is returned when a PIN does not match the required format.
// The offending value itself never appears in any error string.
var ErrInvalidPIN = errors.New("credential: pin must be exactly 4 digits")

// pinPattern is the only accepted PIN shape: exactly four ASCII digits.
var pinPattern = regexp.MustCompile(`^\d{4}$`)

// IsValidPIN reports whether a raw PIN matches the required format.
func IsValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// Store defines the credential persistence interface.
//
// Implementations hold PIN hashes only. No method ever returns raw or
// hashed PIN material, and none accepts a hash from outside.
type Store interface {
	// SetPin validates the raw PIN, hashes it, and atomically creates or
	// replaces the credential for the lock. A rejected PIN leaves any
	// existing credential untouched.
	SetPin(ctx context.Context, lockID, rawPin string) error

	// VerifyPin checks an attempt against the stored credential.
	// A lock with no credential yields (false, nil): absence fails
	// closed. Storage faults are errors, never a false result.
	VerifyPin(ctx context.Context, lockID, attemptPin string) (bool, error)

	// Delete removes the credential for a lock. Deleting a credential
	// that does not exist is not an error.
	Delete(ctx context.Context, lockID string) error
}

// SQLiteStore implements Store using SQLite.
// PIN hashes live in the lock_credentials table, one row per lock,
// structurally separate from the locks table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed credential store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// SetPin validates, hashes, and upserts the credential for a lock.
func (s *SQLiteStore) SetPin(ctx context.Context, lockID, rawPin string) error {
	if lockID == "" {
		return fmt.Errorf("credential: lock id is required")
	}
	if !IsValidPIN(rawPin) {
		return ErrInvalidPIN
	}

	hash, err := auth.HashPassword(rawPin)
	if err != nil {
		return fmt.Errorf("hashing pin: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lock_credentials (lock_id, pin_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(lock_id) DO UPDATE SET pin_hash = excluded.pin_hash, updated_at = excluded.updated_at`,
		lockID, hash, now, now,
	)
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// VerifyPin checks an attempt against the stored credential.
func (s *SQLiteStore) VerifyPin(ctx context.Context, lockID, attemptPin string) (bool, error) {
	if !IsValidPIN(attemptPin) {
		return false, ErrInvalidPIN
	}

	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT pin_hash FROM lock_credentials WHERE lock_id = ?", lockID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		// No credential configured: fail closed, not an error.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading credential: %w", err)
	}

	ok, err := auth.VerifyPassword(attemptPin, hash)
	if err != nil {
		return false, fmt.Errorf("verifying credential: %w", err)
	}
	return ok, nil
}

// Delete removes the credential for a lock.
func (s *SQLiteStore) Delete(ctx context.Context, lockID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM lock_credentials WHERE lock_id = ?", lockID)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}
