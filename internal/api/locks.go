package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dushansineth-design/keyless-door-app/internal/access"
	"github.com/dushansineth-design/keyless-door-app/internal/lock"
)

// ─── Request/Response Types ────────────────────────────────────────

type createLockRequest struct {
	Name string `json:"name"`
}

type renameLockRequest struct {
	Name string `json:"name"`
}

type transitionRequest struct {
	Target string `json:"target"`
	Pin    string `json:"pin,omitempty"`
}

type pinRequest struct {
	Pin string `json:"pin"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// ─── Lock CRUD ─────────────────────────────────────────────────────

// handleListLocks returns the locks the caller owns.
// There is no cross-owner listing; admins see their own locks like anyone else.
func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	locks, err := s.registry.ListByOwner(r.Context(), identity.UserID)
	if err != nil {
		s.logger.Error("list locks failed", "user_id", identity.UserID, "error", err)
		writeInternalError(w, "failed to list locks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"locks": locks,
		"count": len(locks),
	})
}

// handleCreateLock registers a new lock owned by the caller.
// New locks start locked with a full battery and no PIN; unlocking is
// impossible until the owner sets one.
func (s *Server) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req createLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	l := &lock.Lock{
		OwnerID:      identity.UserID,
		Name:         req.Name,
		IsLocked:     true,
		BatteryLevel: 100,
	}

	if err := s.registry.Create(r.Context(), l); err != nil {
		if errors.Is(err, lock.ErrInvalidName) {
			writeBadRequest(w, "name is required and must be at most 100 characters")
			return
		}
		s.logger.Error("create lock failed", "user_id", identity.UserID, "error", err)
		writeInternalError(w, "failed to create lock")
		return
	}

	s.auditLog("create", "lock", l.ID, identity.UserID, map[string]any{
		"name": l.Name,
	})

	writeJSON(w, http.StatusCreated, l)
}

// handleGetLock returns a single lock the caller owns.
// Locks owned by others are reported as not found, the same as locks that
// do not exist.
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ownedLock(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// handleRenameLock changes a lock's display name.
func (s *Server) handleRenameLock(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ownedLock(w, r)
	if !ok {
		return
	}
	identity := identityFromContext(r.Context())

	var req renameLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	updated, err := s.registry.Rename(r.Context(), l.ID, req.Name)
	if err != nil {
		if errors.Is(err, lock.ErrInvalidName) {
			writeBadRequest(w, "name is required and must be at most 100 characters")
			return
		}
		s.logger.Error("rename lock failed", "lock_id", l.ID, "error", err)
		writeInternalError(w, "failed to rename lock")
		return
	}

	s.auditLog("rename", "lock", l.ID, identity.UserID, map[string]any{
		"name": req.Name,
	})

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteLock removes a lock and its credential.
func (s *Server) handleDeleteLock(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ownedLock(w, r)
	if !ok {
		return
	}
	identity := identityFromContext(r.Context())

	if err := s.registry.Delete(r.Context(), l.ID); err != nil {
		s.logger.Error("delete lock failed", "lock_id", l.ID, "error", err)
		writeInternalError(w, "failed to delete lock")
		return
	}

	// The credential row is orphaned once the lock is gone; remove it so
	// a future lock can never inherit it.
	if s.creds != nil {
		if err := s.creds.Delete(r.Context(), l.ID); err != nil {
			s.logger.Error("delete credential failed", "lock_id", l.ID, "error", err)
		}
	}

	s.auditLog("delete", "lock", l.ID, identity.UserID, map[string]any{
		"name": l.Name,
	})

	w.WriteHeader(http.StatusNoContent)
}

// ─── State Transitions ─────────────────────────────────────────────

// handleTransition moves a lock between locked and unlocked.
//
// Unlocking requires the lock's PIN; locking back does not. The access
// service decides; this handler only maps its verdicts onto status codes.
// Denied unlock attempts are recorded in the audit trail, never in the
// lock's activity history.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	lockID := chi.URLParam(r, "id")
	identity := identityFromContext(r.Context())

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	updated, err := s.access.Transition(r.Context(), identity, lockID, lock.State(req.Target), req.Pin)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrUnauthorized):
			writeUnauthorized(w, "unauthorised")
		case errors.Is(err, access.ErrInvalidFormat):
			writeBadRequest(w, "invalid target state or pin format")
		case errors.Is(err, access.ErrWrongPIN):
			s.auditLog("unlock_denied", "lock", lockID, identity.UserID, map[string]any{
				"reason": "wrong_pin",
			})
			writeError(w, http.StatusForbidden, ErrCodeInvalidPIN, "pin verification failed")
		case errors.Is(err, access.ErrSameState):
			writeConflict(w, "lock already in requested state")
		default:
			s.logger.Error("transition failed", "lock_id", lockID, "error", err)
			writeInternalError(w, "transition failed")
		}
		return
	}

	if s.influx != nil {
		s.influx.WriteTransition(updated.ID, string(updated.State()))
	}

	writeJSON(w, http.StatusOK, updated)
}

// ─── PIN Management ────────────────────────────────────────────────

// handleSetPin stores a new PIN for a lock. The PIN itself never appears
// in the response, the logs, or the audit trail.
func (s *Server) handleSetPin(w http.ResponseWriter, r *http.Request) {
	lockID := chi.URLParam(r, "id")
	identity := identityFromContext(r.Context())

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.access.SetPin(r.Context(), identity, lockID, req.Pin); err != nil {
		switch {
		case errors.Is(err, access.ErrUnauthorized):
			writeUnauthorized(w, "unauthorised")
		case errors.Is(err, access.ErrInvalidFormat):
			writeBadRequest(w, "pin must be exactly 4 digits")
		default:
			s.logger.Error("set pin failed", "lock_id", lockID, "error", err)
			writeInternalError(w, "failed to set pin")
		}
		return
	}

	s.auditLog("pin_set", "lock", lockID, identity.UserID, nil)

	writeJSON(w, http.StatusOK, map[string]string{"status": "pin_set"})
}

// handleVerifyPin checks a PIN attempt without touching the lock's state.
// A wrong PIN is a successful verification with a negative answer, not an
// error.
func (s *Server) handleVerifyPin(w http.ResponseWriter, r *http.Request) {
	lockID := chi.URLParam(r, "id")
	identity := identityFromContext(r.Context())

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	valid, err := s.access.VerifyPin(r.Context(), identity, lockID, req.Pin)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrUnauthorized):
			writeUnauthorized(w, "unauthorised")
		case errors.Is(err, access.ErrInvalidFormat):
			writeBadRequest(w, "pin must be exactly 4 digits")
		default:
			s.logger.Error("verify pin failed", "lock_id", lockID, "error", err)
			writeInternalError(w, "failed to verify pin")
		}
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Valid: valid})
}

// ─── Activity ──────────────────────────────────────────────────────

// handleLockActivity returns a lock's transition history, newest first.
//
// Query parameters:
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleLockActivity(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ownedLock(w, r)
	if !ok {
		return
	}

	if s.activity == nil {
		writeInternalError(w, "activity history not configured")
		return
	}

	q := r.URL.Query()
	limit, offset := 0, 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	records, err := s.activity.ListByLock(r.Context(), l.ID, limit, offset)
	if err != nil {
		s.logger.Error("list lock activity failed", "lock_id", l.ID, "error", err)
		writeInternalError(w, "failed to list activity")
		return
	}

	total, err := s.activity.CountByLock(r.Context(), l.ID)
	if err != nil {
		s.logger.Error("count lock activity failed", "lock_id", l.ID, "error", err)
		writeInternalError(w, "failed to list activity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"activity": records,
		"total":    total,
	})
}

// ─── Helpers ───────────────────────────────────────────────────────

// ownedLock loads the lock from the URL and verifies the caller owns it.
// A missing lock and a lock owned by someone else are both reported as
// 404, so lock IDs cannot be probed. Writes the error response itself
// and returns ok=false when the caller should stop.
func (s *Server) ownedLock(w http.ResponseWriter, r *http.Request) (*lock.Lock, bool) {
	id := chi.URLParam(r, "id")
	identity := identityFromContext(r.Context())

	l, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, lock.ErrLockNotFound) {
			writeNotFound(w, "lock not found")
			return nil, false
		}
		s.logger.Error("get lock failed", "lock_id", id, "error", err)
		writeInternalError(w, "failed to get lock")
		return nil, false
	}

	if l.OwnerID != identity.UserID {
		writeNotFound(w, "lock not found")
		return nil, false
	}
	return l, true
}
