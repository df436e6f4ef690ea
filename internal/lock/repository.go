package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lock persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a lock by its unique identifier.
	// Returns ErrLockNotFound if the lock does not exist.
	GetByID(ctx context.Context, id string) (*Lock, error)

	// List retrieves all locks.
	List(ctx context.Context) ([]Lock, error)

	// ListByOwner retrieves all locks owned by a specific user.
	ListByOwner(ctx context.Context, ownerID string) ([]Lock, error)

	// Create inserts a new lock. The ID is generated if empty.
	// Returns ErrLockExists if a lock with the same ID already exists.
	Create(ctx context.Context, l *Lock) error

	// Rename changes a lock's display name.
	// Returns ErrLockNotFound if the lock does not exist.
	Rename(ctx context.Context, id, name string) error

	// Delete removes a lock by ID. Credentials and activity cascade.
	// Returns ErrLockNotFound if the lock does not exist.
	Delete(ctx context.Context, id string) error

	// Transition moves the lock into the target state and appends the
	// activity record in a single transaction. The state UPDATE is
	// conditional on the prior state: if the lock is already in the
	// target state, nothing is written and ErrSameState is returned.
	Transition(ctx context.Context, id string, target State, actor string) (*Lock, error)

	// UpdateBattery sets the battery level reported by the device.
	// Returns ErrInvalidBattery for values outside 0-100.
	UpdateBattery(ctx context.Context, id string, level int) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const lockColumns = "id, owner_id, name, is_locked, battery_level, created_at, updated_at"

// GetByID retrieves a lock by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Lock, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+lockColumns+" FROM locks WHERE id = ?", id)

	l, err := scanLock(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLockNotFound
		}
		return nil, fmt.Errorf("querying lock by id: %w", err)
	}
	return l, nil
}

// List retrieves all locks ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Lock, error) {
	return r.queryLocks(ctx, "SELECT "+lockColumns+" FROM locks ORDER BY name")
}

// ListByOwner retrieves all locks owned by a specific user.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Lock, error) {
	return r.queryLocks(ctx,
		"SELECT "+lockColumns+" FROM locks WHERE owner_id = ? ORDER BY name", ownerID)
}

// Create inserts a new lock. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, l *Lock) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = "lck-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	l.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	l.UpdatedAt = l.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO locks (id, owner_id, name, is_locked, battery_level, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.OwnerID, l.Name, boolToInt(l.IsLocked), l.BatteryLevel, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLockExists
		}
		return fmt.Errorf("creating lock: %w", err)
	}
	return nil
}

// Rename changes a lock's display name.
func (r *SQLiteRepository) Rename(ctx context.Context, id, name string) error {
	if name == "" || len(name) > maxNameLength {
		return ErrInvalidName
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"UPDATE locks SET name = ?, updated_at = ? WHERE id = ?", name, now, id)
	if err != nil {
		return fmt.Errorf("renaming lock: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrLockNotFound
	}
	return nil
}

// Delete removes a lock by ID. Credentials and activity cascade via FK.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM locks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting lock: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrLockNotFound
	}
	return nil
}

// Transition moves the lock into the target state and appends the activity
// record in a single transaction. The UPDATE is keyed on the expected prior
// state, so under concurrent attempts exactly one caller wins: the losers
// see zero rows affected and get ErrSameState with nothing written.
func (r *SQLiteRepository) Transition(ctx context.Context, id string, target State, actor string) (*Lock, error) {
	if !IsValidState(target) {
		return nil, ErrInvalidState
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transition transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	targetLocked := target == StateLocked
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := tx.ExecContext(ctx,
		"UPDATE locks SET is_locked = ?, updated_at = ? WHERE id = ? AND is_locked = ?",
		boolToInt(targetLocked), now, id, boolToInt(!targetLocked),
	)
	if err != nil {
		return nil, fmt.Errorf("updating lock state: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		// Either the lock is already in the target state or it doesn't exist.
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM locks WHERE id = ?", id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking lock existence: %w", err)
		}
		if exists == 0 {
			return nil, ErrLockNotFound
		}
		return nil, ErrSameState
	}

	activityID := "act-" + uuid.NewString()[:8]
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lock_activity (id, lock_id, action, actor, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		activityID, id, string(target), actor, now,
	); err != nil {
		return nil, fmt.Errorf("appending activity record: %w", err)
	}

	row := tx.QueryRowContext(ctx, "SELECT "+lockColumns+" FROM locks WHERE id = ?", id)
	l, err := scanLock(row)
	if err != nil {
		return nil, fmt.Errorf("reading lock after transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition: %w", err)
	}
	return l, nil
}

// UpdateBattery sets the battery level reported by the device.
func (r *SQLiteRepository) UpdateBattery(ctx context.Context, id string, level int) error {
	if level < 0 || level > 100 {
		return ErrInvalidBattery
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"UPDATE locks SET battery_level = ?, updated_at = ? WHERE id = ?", level, now, id)
	if err != nil {
		return fmt.Errorf("updating battery level: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrLockNotFound
	}
	return nil
}

// queryLocks runs a query returning lock rows and scans them all.
func (r *SQLiteRepository) queryLocks(ctx context.Context, query string, args ...any) ([]Lock, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying locks: %w", err)
	}
	defer rows.Close()

	var locks []Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lock: %w", err)
		}
		locks = append(locks, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating locks: %w", err)
	}

	if locks == nil {
		locks = []Lock{}
	}
	return locks, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

// scanLock scans a lock from any scanner (Row or Rows).
func scanLock(s scanner) (*Lock, error) {
	var l Lock
	var isLocked int
	var createdAt, updatedAt string

	err := s.Scan(&l.ID, &l.OwnerID, &l.Name, &isLocked, &l.BatteryLevel, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	l.IsLocked = isLocked != 0
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &l, nil
}

// boolToInt converts a bool to SQLite's 0/1 integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if an error is a SQLite unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
