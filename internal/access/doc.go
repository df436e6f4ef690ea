// Package access is the authorisation gate in front of the lock
// registry and the credential store.
//
// Every operation takes an Identity derived from verified JWT claims
// and checks lock ownership before anything else. The check is
// deliberately opaque: a lock that does not exist answers exactly like
// a lock owned by another account, so the API cannot be used to probe
// for valid lock IDs. Roles do not enter into it — admins own their
// locks like everyone else.
//
// Unlocking demands a positive PIN verification; locking back does
// not. Failed attempts leave no trace in the activity history (the
// audit trail records them instead).
package access
