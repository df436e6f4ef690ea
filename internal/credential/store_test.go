package credential

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the credential schema.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "credential-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// FKs deliberately not enforced here: the store is exercised in
	// isolation from the locks table.
	schemaSQL := `
		CREATE TABLE lock_credentials (
			lock_id    TEXT PRIMARY KEY,
			pin_hash   TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	return db
}

func TestStore_SetAndVerifyPin(t *testing.T) {
	db := testDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	if err := store.SetPin(ctx, "lck-front", "1234"); err != nil {
		t.Fatalf("SetPin() error = %v", err)
	}

	ok, err := store.VerifyPin(ctx, "lck-front", "1234")
	if err != nil {
		t.Fatalf("VerifyPin() error = %v", err)
	}
	if !ok {
		t.Error("correct PIN should verify")
	}

	ok, err = store.VerifyPin(ctx, "lck-front", "4321")
	if err != nil {
		t.Fatalf("VerifyPin(wrong) error = %v", err)
	}
	if ok {
		t.Error("wrong PIN should not verify")
	}
}

func TestStore_SetPin_FormatValidation(t *testing.T) {
	db := testDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	tests := []struct {
		name string
		pin  string
	}{
		{"too short", "123"},
		{"too long", "12345"},
		{"letters", "abcd"},
		{"mixed", "12a4"},
		{"empty", ""},
		{"whitespace", "12 4"},
		{"negative", "-123"},
		{"unicode digits", "١٢٣٤"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.SetPin(ctx, "lck-x", tt.pin); !errors.Is(err, ErrInvalidPIN) {
				t.Errorf("SetPin(%s) error = %v, want ErrInvalidPIN", tt.name, err)
			}
		})
	}
}

func TestStore_SetPin_RejectedLeavesExistingCredential(t *testing.T) {
	db := testDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	if err := store.SetPin(ctx, "lck-front", "1234"); err != nil {
		t.Fatalf("SetPin() error = %v", err)
	}

	// A rejected update must not disturb the stored credential
	if err := store.SetPin(ctx, "lck-front", "12345"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("SetPin(invalid) error = %v, want ErrInvalidPIN", err)
	}

	ok, err := store.VerifyPin(ctx, "lck-front", "1234")
	if err != nil {
		t.Fatalf("VerifyPin() error = %v", err)
	}
	if !ok {
		t.Error("original PIN should still verify after rejected update")
	}
}

func TestStore_SetPin_OverwriteInvalidatesOldPin(t *testing.T) {
	db := testDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	if err := store.SetPin(ctx, "lck-front", "1234"); err != nil {
		t.Fatalf("SetPin() error = %v", err)
	}
	if err := store.SetPin(ctx, "lck-front", "5678"); err != nil {
		t.Fatalf("SetPin(overwrite) error = %v", err)
	}

	ok, _ := store.VerifyPin(ctx, "lck-front", "1234")
	if ok {
		t.Error("old PIN should no longer verify after overwrite")
	}

	ok, _ = store.VerifyPin(ctx, "lck-front", "5678")
	if !ok {
		t.Error("new PIN should verify after overwrite")
	}
}

func TestStore_VerifyPin_MissingCredentialFailsClosed(t *testing.T) {
	db := testDB(t)
	store := NewSQLiteStore(db)

	ok, err := store.VerifyPin(context.Background(), "lck-never-set", "1234")
	if err != nil {
		t.Fatalf("VerifyPin() error = %v, want nil for missing credential", err)
	}
	if ok {
		t.Error("missing credential must verify false")
	}
}

func TestStore_VerifyPin_FormatValidation(t *testing.T) {
	db := testDB(t)
	store := NewSQLiteStore(db)

	_, err := store.VerifyPin(context.Background(), "lck-x", "12345")
	if !errors.Is(err, ErrInvalidPIN) {
		t.Errorf("VerifyPin(malformed) error = %v, want ErrInvalidPIN", err)
	}
}

func TestStore_Delete(t *testing.T) {
	db := testDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	if err := store.SetPin(ctx, "lck-front", "1234"); err != nil {
		t.Fatalf("SetPin() error = %v", err)
	}
	if err := store.Delete(ctx, "lck-front"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	ok, err := store.VerifyPin(ctx, "lck-front", "1234")
	if err != nil {
		t.Fatalf("VerifyPin() error = %v", err)
	}
	if ok {
		t.Error("deleted credential must not verify")
	}

	// Deleting a missing credential is not an error
	if err := store.Delete(ctx, "lck-never-set"); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
}

func TestStore_StoredHashIsNotThePin(t *testing.T) {
	db := testDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	if err := store.SetPin(ctx, "lck-front", "1234"); err != nil {
		t.Fatalf("SetPin() error = %v", err)
	}

	var hash string
	if err := db.QueryRow(
		"SELECT pin_hash FROM lock_credentials WHERE lock_id = ?", "lck-front").Scan(&hash); err != nil {
		t.Fatalf("reading stored hash: %v", err)
	}

	if strings.Contains(hash, "1234") {
		t.Error("stored value must not contain the raw PIN")
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("stored value should be a PHC argon2id string, got prefix %q", hash[:min(10, len(hash))])
	}
}

func TestIsValidPIN(t *testing.T) {
	valid := []string{"0000", "1234", "9999"}
	invalid := []string{"", "123", "12345", "abcd", "12.4", " 123", "123\n"}

	for _, pin := range valid {
		if !IsValidPIN(pin) {
			t.Errorf("IsValidPIN(%q) = false, want true", pin)
		}
	}
	for _, pin := range invalid {
		if IsValidPIN(pin) {
			t.Errorf("IsValidPIN(%q) = true, want false", pin)
		}
	}
}
