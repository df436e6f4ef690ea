package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// ActivityRepository defines read access to a lock's transition history.
// The history is append-only and is written exclusively inside the lock
// repository's transition transaction, so no write methods exist here.
type ActivityRepository interface {
	// ListByLock returns recent activity for a lock, newest first.
	// limit defaults to 50 and is capped at 200.
	ListByLock(ctx context.Context, lockID string, limit, offset int) ([]ActivityRecord, error)

	// CountByLock returns the total number of activity records for a lock.
	CountByLock(ctx context.Context, lockID string) (int, error)
}

// SQLiteActivityRepository implements ActivityRepository using SQLite.
type SQLiteActivityRepository struct {
	db *sql.DB
}

// NewSQLiteActivityRepository creates a new SQLite-backed activity repository.
func NewSQLiteActivityRepository(db *sql.DB) *SQLiteActivityRepository {
	return &SQLiteActivityRepository{db: db}
}

// ListByLock returns recent activity for a lock, newest first.
func (r *SQLiteActivityRepository) ListByLock(ctx context.Context, lockID string, limit, offset int) ([]ActivityRecord, error) {
	if lockID == "" {
		return nil, fmt.Errorf("lock id is required")
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, lock_id, action, actor, created_at
		 FROM lock_activity
		 WHERE lock_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		lockID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying lock activity: %w", err)
	}
	defer rows.Close()

	records := make([]ActivityRecord, 0, limit)
	for rows.Next() {
		var rec ActivityRecord
		var action, createdAt string

		if err := rows.Scan(&rec.ID, &rec.LockID, &action, &rec.Actor, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}

		rec.Action = State(action)
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}

	return records, nil
}

// CountByLock returns the total number of activity records for a lock.
func (r *SQLiteActivityRepository) CountByLock(ctx context.Context, lockID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM lock_activity WHERE lock_id = ?", lockID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting activity: %w", err)
	}
	return count, nil
}
