package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/dushansineth-design/keyless-door-app/internal/audit"
	"github.com/dushansineth-design/keyless-door-app/internal/auth"
)

func TestUserEndpoints_AdminOnly(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/users"},
		{http.MethodPost, "/api/v1/users"},
		{http.MethodGet, "/api/v1/users/" + user.ID},
		{http.MethodDelete, "/api/v1/users/" + user.ID},
		{http.MethodGet, "/api/v1/audit"},
	}
	for _, p := range paths {
		w := doRequest(t, srv, p.method, p.path, token, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s status = %d, want %d", p.method, p.path, w.Code, http.StatusForbidden)
		}
	}
}

func TestHandleCreateUser(t *testing.T) {
	srv := testServer(t)
	admin := createTestUser(t, srv, "admin", auth.RoleAdmin, true)
	token := accessTokenFor(t, admin)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/users", token, createUserRequest{
		Username:    "bob",
		DisplayName: "Bob",
		Password:    "a-long-enough-password",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var created auth.User
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Username != "bob" {
		t.Errorf("username = %q, want bob", created.Username)
	}
	if created.Role != auth.RoleUser {
		t.Errorf("role = %q, want default %q", created.Role, auth.RoleUser)
	}
	if created.PasswordHash != "" {
		t.Error("response contains the password hash")
	}
}

func TestHandleCreateUser_DuplicateUsername(t *testing.T) {
	srv := testServer(t)
	admin := createTestUser(t, srv, "admin", auth.RoleAdmin, true)
	createTestUser(t, srv, "bob", auth.RoleUser, true)
	token := accessTokenFor(t, admin)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/users", token, createUserRequest{
		Username:    "bob",
		DisplayName: "Bob",
		Password:    "a-long-enough-password",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestHandleCreateUser_ShortPassword(t *testing.T) {
	srv := testServer(t)
	admin := createTestUser(t, srv, "admin", auth.RoleAdmin, true)
	token := accessTokenFor(t, admin)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/users", token, createUserRequest{
		Username:    "bob",
		DisplayName: "Bob",
		Password:    "short",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleDeleteUser_SelfForbidden(t *testing.T) {
	srv := testServer(t)
	admin := createTestUser(t, srv, "admin", auth.RoleAdmin, true)
	token := accessTokenFor(t, admin)

	w := doRequest(t, srv, http.MethodDelete, "/api/v1/users/"+admin.ID, token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestHandleUpdateUser_DisableRevokesSessions(t *testing.T) {
	srv := testServer(t)
	admin := createTestUser(t, srv, "admin", auth.RoleAdmin, true)
	bob := createTestUser(t, srv, "bob", auth.RoleUser, true)
	adminToken := accessTokenFor(t, admin)

	loginAs(t, srv, "bob", testPassword)

	disabled := false
	w := doRequest(t, srv, http.MethodPatch, "/api/v1/users/"+bob.ID, adminToken, updateUserRequest{
		Enabled: &disabled,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	active, err := srv.tokenRepo.ListActiveByUser(context.Background(), bob.ID)
	if err != nil {
		t.Fatalf("ListActiveByUser: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active sessions after disable = %d, want 0", len(active))
	}

	// A still-valid access token no longer passes the middleware either.
	bobToken := accessTokenFor(t, bob)
	w = doRequest(t, srv, http.MethodGet, "/api/v1/locks", bobToken, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("disabled user request status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHandleUpdateUser_SelfProtection(t *testing.T) {
	srv := testServer(t)
	admin := createTestUser(t, srv, "admin", auth.RoleAdmin, true)
	token := accessTokenFor(t, admin)

	disabled := false
	w := doRequest(t, srv, http.MethodPatch, "/api/v1/users/"+admin.ID, token, updateUserRequest{
		Enabled: &disabled,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("self-disable status = %d, want %d", w.Code, http.StatusForbidden)
	}

	role := auth.RoleUser
	w = doRequest(t, srv, http.MethodPatch, "/api/v1/users/"+admin.ID, token, updateUserRequest{
		Role: &role,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("self-demote status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestHandleListAuditLogs(t *testing.T) {
	srv := testServer(t)
	admin := createTestUser(t, srv, "admin", auth.RoleAdmin, true)
	createTestUser(t, srv, "alice", auth.RoleUser, true)
	adminToken := accessTokenFor(t, admin)

	// A failed login and a successful one both leave audit entries.
	doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Username: "alice",
		Password: "wrong-password",
	})
	loginAs(t, srv, "alice", testPassword)
	flushAudit(t, srv)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/audit?action=login_denied", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var result audit.ListResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("login_denied total = %d, want 1", result.Total)
	}
	entry := result.Logs[0]
	if entry.Action != "login_denied" {
		t.Errorf("action = %q, want login_denied", entry.Action)
	}
	if entry.Source != "api" {
		t.Errorf("source = %q, want api", entry.Source)
	}
	if reason, _ := entry.Details["reason"].(string); reason != "wrong_password" {
		t.Errorf("details.reason = %q, want wrong_password", reason)
	}
}

func TestAudit_UnlockDeniedRecorded(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	admin := createTestUser(t, srv, "admin", auth.RoleAdmin, true)
	token := accessTokenFor(t, user)
	adminToken := accessTokenFor(t, admin)

	l := createLockFor(t, srv, token, "Front Door")
	setPIN(t, srv, token, l.ID, "1234")

	w := doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", token, transitionRequest{
		Target: "unlocked",
		Pin:    "0000",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("transition status = %d, want %d", w.Code, http.StatusForbidden)
	}
	flushAudit(t, srv)

	w = doRequest(t, srv, http.MethodGet, "/api/v1/audit?action=unlock_denied", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("audit status = %d, body = %s", w.Code, w.Body.String())
	}

	var result audit.ListResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("unlock_denied total = %d, want 1", result.Total)
	}
	entry := result.Logs[0]
	if entry.EntityID != l.ID {
		t.Errorf("entity_id = %q, want %q", entry.EntityID, l.ID)
	}
	if entry.UserID != user.ID {
		t.Errorf("user_id = %q, want %q", entry.UserID, user.ID)
	}
	// The audit trail records the denial, never the attempted PIN.
	raw, _ := json.Marshal(entry.Details)
	if strings.Contains(string(raw), "0000") || strings.Contains(string(raw), "1234") {
		t.Error("audit details contain PIN material")
	}
}
