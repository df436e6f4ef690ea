package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dushansineth-design/keyless-door-app/internal/auth"
)

// Auth constants.
const (
	// ticketTTL is how long a WebSocket ticket is valid.
	ticketTTL = 60 * time.Second

	// defaultRefreshTTLMinutes is used when no refresh token TTL is configured
	// (30 days).
	defaultRefreshTTLMinutes = 43200

	// defaultAccessTTLMinutes is used when no access token TTL is configured.
	defaultAccessTTLMinutes = 15
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the response body for successful login and refresh.
type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"` // seconds
	User         *auth.User `json:"user,omitempty"`
}

// meResponse is the response body for GET /auth/me.
type meResponse struct {
	User        *auth.User `json:"user"`
	Permissions []string   `json:"permissions"`
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use, expire after ticketTTL, and carry the identity
// of the user who requested them.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	userID    string
	username  string
	role      auth.Role
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue creates a ticket bound to the given identity.
func (ts *ticketStore) issue(userID, username string, role auth.Role) string {
	ticket := generateTicket()
	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{
		userID:    userID,
		username:  username,
		role:      role,
		expiresAt: time.Now().Add(ticketTTL),
	}
	ts.mu.Unlock()
	return ticket
}

// consume checks if a ticket is valid and removes it (single-use).
func (ts *ticketStore) consume(ticket string) (ticketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}

	// Remove ticket (single-use)
	delete(ts.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// cleanExpired removes expired tickets from the store.
func (ts *ticketStore) cleanExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// cleanLoop runs cleanExpired periodically until the context is cancelled.
func (ts *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.cleanExpired()
		}
	}
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// handleLogin authenticates a user against the user store and issues an
// access/refresh token pair.
//
// Unknown usernames and wrong passwords produce the same 401 so usernames
// cannot be probed.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := s.userRepo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			s.logger.Error("login lookup failed", "error", err)
			writeInternalError(w, "login failed")
			return
		}
		// Burn comparable time on unknown usernames so response timing
		// does not reveal whether the account exists.
		//nolint:errcheck // result deliberately ignored
		auth.VerifyPassword(req.Password, auth.TimingDummyHash())
		writeUnauthorized(w, "invalid credentials")
		return
	}

	valid, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.logger.Error("password verification failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "login failed")
		return
	}
	if !valid {
		s.logger.Warn("login denied", "username", req.Username)
		s.auditLog("login_denied", "user", user.ID, "", map[string]any{
			"reason": "wrong_password",
		})
		writeUnauthorized(w, "invalid credentials")
		return
	}

	if !user.Enabled {
		s.logger.Warn("login denied", "username", req.Username)
		s.auditLog("login_denied", "user", user.ID, "", map[string]any{
			"reason": "account_disabled",
		})
		writeUnauthorized(w, "account disabled")
		return
	}

	resp, err := s.issueTokens(r.Context(), user)
	if err != nil {
		s.logger.Error("token issue failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "login failed")
		return
	}

	if err := s.userRepo.UpdateLastLogin(r.Context(), user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("update last login failed", "user_id", user.ID, "error", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	s.auditLog("login", "user", user.ID, user.ID, nil)

	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token: the presented token is revoked and
// a fresh access/refresh pair is issued.
//
// Presenting an already-rotated token is treated as theft: the whole session
// chain for that user is revoked and the attempt is audited.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	stored, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	if stored.Revoked() {
		// This token was already rotated or revoked. Someone is replaying
		// an old token; revoke every session for the user.
		s.logger.Warn("refresh token reuse detected", "user_id", stored.UserID, "token_id", stored.ID)
		if err := s.tokenRepo.RevokeAllForUser(r.Context(), stored.UserID); err != nil {
			s.logger.Error("revoke sessions after token reuse failed", "user_id", stored.UserID, "error", err)
		}
		s.auditLog("token_reuse", "session", stored.ID, stored.UserID, map[string]any{
			"response": "all_sessions_revoked",
		})
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	if stored.Expired(time.Now()) {
		writeUnauthorized(w, "refresh token expired")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), stored.UserID)
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}
	if !user.Enabled {
		writeUnauthorized(w, "account disabled")
		return
	}

	accessToken, newRefresh, newToken, err := s.mintTokenPair(user)
	if err != nil {
		s.logger.Error("token issue failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	if err := s.tokenRepo.RotateRefreshToken(r.Context(), stored.ID, newToken); err != nil {
		s.logger.Error("token rotation failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTLMinutes() * 60,
	})
}

// handleLogout revokes the presented refresh token. The access token simply
// expires; only the refresh token is server-side state.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	identity := identityFromContext(r.Context())

	if req.RefreshToken != "" {
		stored, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
		if err == nil && stored.UserID == identity.UserID {
			if err := s.tokenRepo.Revoke(r.Context(), stored.ID); err != nil {
				s.logger.Error("revoke on logout failed", "user_id", identity.UserID, "error", err)
			}
		}
	}

	s.logger.Info("user logged out", "user_id", identity.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleMe returns the authenticated caller's account and effective permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	user, err := s.userRepo.GetByID(r.Context(), identity.UserID)
	if err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	perms := auth.PermissionsForRole(user.Role)
	permStrings := make([]string, 0, len(perms))
	for _, p := range perms {
		permStrings = append(permStrings, string(p))
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:        user,
		Permissions: permStrings,
	})
}

// handleWSTicket generates a single-use WebSocket authentication ticket bound
// to the caller. The client exchanges it on the WebSocket URL so the JWT
// never appears in a query string.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	ticket := s.tickets.issue(identity.UserID, identity.Username, identity.Role)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// issueTokens mints and persists a token pair for a fresh login.
func (s *Server) issueTokens(ctx context.Context, user *auth.User) (*tokenResponse, error) {
	accessToken, rawRefresh, token, err := s.mintTokenPair(user)
	if err != nil {
		return nil, err
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTLMinutes() * 60,
		User:         user,
	}, nil
}

// mintTokenPair creates a signed access token and an unsaved refresh token row.
func (s *Server) mintTokenPair(user *auth.User) (accessToken, rawRefresh string, token *auth.RefreshToken, err error) {
	accessToken, err = auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, s.accessTTLMinutes())
	if err != nil {
		return "", "", nil, err
	}

	rawRefresh, err = auth.GenerateRefreshToken()
	if err != nil {
		return "", "", nil, err
	}

	refreshTTL := s.secCfg.JWT.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTLMinutes
	}

	token = &auth.RefreshToken{
		UserID:    user.ID,
		TokenHash: auth.HashToken(rawRefresh),
		ExpiresAt: time.Now().UTC().Add(time.Duration(refreshTTL) * time.Minute),
	}
	return accessToken, rawRefresh, token, nil
}

// accessTTLMinutes returns the configured access token TTL with a sane default.
func (s *Server) accessTTLMinutes() int {
	if s.secCfg.JWT.AccessTokenTTL > 0 {
		return s.secCfg.JWT.AccessTokenTTL
	}
	return defaultAccessTTLMinutes
}
