// Package credential stores and verifies per-lock PIN credentials.
//
// PINs are exactly four digits, hashed with Argon2id into PHC strings
// and kept in the lock_credentials table, one row per lock. The raw PIN
// exists only transiently inside SetPin and VerifyPin; it is never
// stored, returned, logged, or embedded in an error.
//
// Verification fails closed: a lock with no credential verifies false
// for every attempt. Only the access service calls this package —
// handlers and transports go through it, never here directly.
package credential
