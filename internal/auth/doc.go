// Package auth provides authentication and authorisation for Keyless Core.
//
// It implements a 2-role model (user → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access/refresh token rotation with reuse-based theft detection
//   - First-boot admin seeding with a one-time generated password
//
// The admin role manages user accounts and reads the audit trail, but it
// does NOT bypass lock ownership: credential and transition operations on
// a lock are available only to the account that owns the lock, regardless
// of role. Lock-level authorisation is an ownership check, not a role
// check, and lives in the access service rather than here.
package auth
