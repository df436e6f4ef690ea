package lock

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the lock schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "lock-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	// Busy timeout matters here: the transition race tests hammer the
	// same row from several goroutines.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			display_name  TEXT,
			role          TEXT NOT NULL DEFAULT 'user',
			enabled       INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			last_login_at TEXT
		);

		CREATE TABLE locks (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name          TEXT NOT NULL,
			is_locked     INTEGER NOT NULL DEFAULT 1,
			battery_level INTEGER NOT NULL DEFAULT 100,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE lock_credentials (
			lock_id    TEXT PRIMARY KEY REFERENCES locks(id) ON DELETE CASCADE,
			pin_hash   TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE lock_activity (
			id         TEXT PRIMARY KEY,
			lock_id    TEXT NOT NULL REFERENCES locks(id) ON DELETE CASCADE,
			action     TEXT NOT NULL CHECK (action IN ('locked', 'unlocked')),
			actor      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	return db
}

// seedTestOwner inserts a user row directly and returns its ID.
// The lock package doesn't manage users; this just satisfies the FK.
func seedTestOwner(t *testing.T, db *sql.DB, username string) string {
	t.Helper()

	id := "usr-" + username
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(
		`INSERT INTO users (id, username, password_hash, role, enabled, created_at, updated_at)
		 VALUES (?, ?, 'x', 'user', 1, ?, ?)`,
		id, username, now, now,
	)
	if err != nil {
		t.Fatalf("seeding test owner %s: %v", username, err)
	}
	return id
}

// seedTestLock creates a lock owned by ownerID and returns it.
func seedTestLock(t *testing.T, db *sql.DB, ownerID, name string) *Lock {
	t.Helper()

	repo := NewSQLiteRepository(db)
	l := &Lock{
		OwnerID:      ownerID,
		Name:         name,
		IsLocked:     true,
		BatteryLevel: 100,
	}
	if err := repo.Create(context.Background(), l); err != nil {
		t.Fatalf("creating test lock %s: %v", name, err)
	}
	return l
}
