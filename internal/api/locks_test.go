package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/dushansineth-design/keyless-door-app/internal/auth"
	"github.com/dushansineth-design/keyless-door-app/internal/lock"
)

// createLockFor registers a lock through the API and returns it.
func createLockFor(t *testing.T, srv *Server, token, name string) lock.Lock {
	t.Helper()

	w := doRequest(t, srv, http.MethodPost, "/api/v1/locks", token, createLockRequest{Name: name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create lock status = %d, body = %s", w.Code, w.Body.String())
	}
	var l lock.Lock
	if err := json.Unmarshal(w.Body.Bytes(), &l); err != nil {
		t.Fatalf("unmarshal lock: %v", err)
	}
	return l
}

func setPIN(t *testing.T, srv *Server, token, lockID, pin string) {
	t.Helper()

	w := doRequest(t, srv, http.MethodPost, "/api/v1/locks/"+lockID+"/pin", token, pinRequest{Pin: pin})
	if w.Code != http.StatusOK {
		t.Fatalf("set pin status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleCreateLock(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)

	l := createLockFor(t, srv, token, "Front Door")

	if l.ID == "" {
		t.Error("lock ID is empty")
	}
	if l.OwnerID != user.ID {
		t.Errorf("owner_id = %q, want %q", l.OwnerID, user.ID)
	}
	if !l.IsLocked {
		t.Error("new lock is not locked")
	}
	if l.BatteryLevel != 100 {
		t.Errorf("battery_level = %d, want 100", l.BatteryLevel)
	}
}

func TestHandleCreateLock_EmptyName(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/locks", token, createLockRequest{Name: ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleListLocks_OwnerScoped(t *testing.T) {
	srv := testServer(t)
	alice := createTestUser(t, srv, "alice", auth.RoleUser, true)
	bob := createTestUser(t, srv, "bob", auth.RoleUser, true)
	aliceToken := accessTokenFor(t, alice)
	bobToken := accessTokenFor(t, bob)

	createLockFor(t, srv, aliceToken, "Front Door")
	createLockFor(t, srv, aliceToken, "Back Door")
	createLockFor(t, srv, bobToken, "Garage")

	var resp struct {
		Locks []lock.Lock `json:"locks"`
		Count int         `json:"count"`
	}

	w := doRequest(t, srv, http.MethodGet, "/api/v1/locks", aliceToken, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("alice sees %d locks, want 2", resp.Count)
	}
	for _, l := range resp.Locks {
		if l.OwnerID != alice.ID {
			t.Errorf("alice's list contains lock owned by %q", l.OwnerID)
		}
	}

	w = doRequest(t, srv, http.MethodGet, "/api/v1/locks", bobToken, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("bob sees %d locks, want 1", resp.Count)
	}
}

func TestHandleGetLock_NotOwnedLooksLikeMissing(t *testing.T) {
	srv := testServer(t)
	alice := createTestUser(t, srv, "alice", auth.RoleUser, true)
	bob := createTestUser(t, srv, "bob", auth.RoleUser, true)
	aliceToken := accessTokenFor(t, alice)
	bobToken := accessTokenFor(t, bob)

	l := createLockFor(t, srv, aliceToken, "Front Door")

	notOwned := doRequest(t, srv, http.MethodGet, "/api/v1/locks/"+l.ID, bobToken, nil)
	missing := doRequest(t, srv, http.MethodGet, "/api/v1/locks/lck-nonexist", bobToken, nil)

	if notOwned.Code != http.StatusNotFound {
		t.Errorf("not-owned status = %d, want %d", notOwned.Code, http.StatusNotFound)
	}
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want %d", missing.Code, http.StatusNotFound)
	}
	// Identical responses so lock IDs cannot be probed.
	if notOwned.Body.String() != missing.Body.String() {
		t.Errorf("bodies differ:\n  not-owned: %s\n  missing:   %s",
			notOwned.Body.String(), missing.Body.String())
	}
}

func TestHandleRenameLock(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")

	w := doRequest(t, srv, http.MethodPatch, "/api/v1/locks/"+l.ID, token, renameLockRequest{Name: "Main Entrance"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var updated lock.Lock
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if updated.Name != "Main Entrance" {
		t.Errorf("name = %q, want Main Entrance", updated.Name)
	}
}

func TestHandleDeleteLock(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")
	setPIN(t, srv, token, l.ID, "1234")

	w := doRequest(t, srv, http.MethodDelete, "/api/v1/locks/"+l.ID, token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(t, srv, http.MethodGet, "/api/v1/locks/"+l.ID, token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleTransition_UnlockWithoutPINSet(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")

	// No credential enrolled yet. Unlock must fail closed.
	w := doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", token, transitionRequest{
		Target: "unlocked",
		Pin:    "1234",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, http.StatusForbidden, w.Body.String())
	}
}

func TestHandleTransition_FullCycle(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")
	setPIN(t, srv, token, l.ID, "1234")

	statePath := "/api/v1/locks/" + l.ID + "/state"

	// Wrong PIN.
	w := doRequest(t, srv, http.MethodPut, statePath, token, transitionRequest{Target: "unlocked", Pin: "9999"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("wrong pin status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if !strings.Contains(w.Body.String(), ErrCodeInvalidPIN) {
		t.Errorf("wrong pin body = %s, want code %s", w.Body.String(), ErrCodeInvalidPIN)
	}

	// Correct PIN unlocks.
	w = doRequest(t, srv, http.MethodPut, statePath, token, transitionRequest{Target: "unlocked", Pin: "1234"})
	if w.Code != http.StatusOK {
		t.Fatalf("unlock status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated lock.Lock
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if updated.IsLocked {
		t.Error("lock is still locked after unlock")
	}

	// Unlocking an unlocked lock conflicts.
	w = doRequest(t, srv, http.MethodPut, statePath, token, transitionRequest{Target: "unlocked", Pin: "1234"})
	if w.Code != http.StatusConflict {
		t.Fatalf("repeat unlock status = %d, want %d", w.Code, http.StatusConflict)
	}

	// Locking back needs no PIN.
	w = doRequest(t, srv, http.MethodPut, statePath, token, transitionRequest{Target: "locked"})
	if w.Code != http.StatusOK {
		t.Fatalf("lock status = %d, body = %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !updated.IsLocked {
		t.Error("lock is not locked after locking")
	}
}

func TestHandleTransition_InvalidTarget(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")

	w := doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", token, transitionRequest{Target: "ajar"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleTransition_NotOwned(t *testing.T) {
	srv := testServer(t)
	alice := createTestUser(t, srv, "alice", auth.RoleUser, true)
	bob := createTestUser(t, srv, "bob", auth.RoleUser, true)
	aliceToken := accessTokenFor(t, alice)
	bobToken := accessTokenFor(t, bob)

	l := createLockFor(t, srv, aliceToken, "Front Door")
	setPIN(t, srv, aliceToken, l.ID, "1234")

	w := doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", bobToken, transitionRequest{
		Target: "unlocked",
		Pin:    "1234",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHandleTransition_AdminDoesNotBypassOwnership(t *testing.T) {
	srv := testServer(t)
	alice := createTestUser(t, srv, "alice", auth.RoleUser, true)
	admin := createTestUser(t, srv, "admin", auth.RoleAdmin, true)
	aliceToken := accessTokenFor(t, alice)
	adminToken := accessTokenFor(t, admin)

	l := createLockFor(t, srv, aliceToken, "Front Door")
	setPIN(t, srv, aliceToken, l.ID, "1234")

	w := doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", adminToken, transitionRequest{
		Target: "unlocked",
		Pin:    "1234",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("admin transition on another user's lock status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHandleSetPin_InvalidFormat(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")

	for _, pin := range []string{"", "123", "12345", "abcd", "12a4"} {
		w := doRequest(t, srv, http.MethodPost, "/api/v1/locks/"+l.ID+"/pin", token, pinRequest{Pin: pin})
		if w.Code != http.StatusBadRequest {
			t.Errorf("pin %q status = %d, want %d", pin, w.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleVerifyPin(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")
	setPIN(t, srv, token, l.ID, "1234")

	verify := func(pin string) verifyResponse {
		w := doRequest(t, srv, http.MethodPost, "/api/v1/locks/"+l.ID+"/pin/verify", token, pinRequest{Pin: pin})
		if w.Code != http.StatusOK {
			t.Fatalf("verify status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp verifyResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return resp
	}

	if resp := verify("1234"); !resp.Valid {
		t.Error("correct pin reported invalid")
	}
	if resp := verify("9999"); resp.Valid {
		t.Error("wrong pin reported valid")
	}
}

func TestHandleSetPin_ReplacesExisting(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")

	setPIN(t, srv, token, l.ID, "1234")
	setPIN(t, srv, token, l.ID, "5678")

	w := doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", token, transitionRequest{
		Target: "unlocked",
		Pin:    "1234",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("old pin status = %d, want %d", w.Code, http.StatusForbidden)
	}
	w = doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", token, transitionRequest{
		Target: "unlocked",
		Pin:    "5678",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("new pin status = %d, body = %s", w.Code, w.Body.String())
	}
}

// TestPINNeverAppearsInResponses walks the lock lifecycle and checks that
// neither the raw PIN nor its hash ever shows up in a response body.
func TestPINNeverAppearsInResponses(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")

	const pin = "8642"
	setPIN(t, srv, token, l.ID, pin)

	check := func(name string, body string) {
		if strings.Contains(body, pin) {
			t.Errorf("%s response contains the raw PIN", name)
		}
		if strings.Contains(body, "argon2id") {
			t.Errorf("%s response contains a PIN hash", name)
		}
	}

	w := doRequest(t, srv, http.MethodGet, "/api/v1/locks/"+l.ID, token, nil)
	check("get lock", w.Body.String())

	w = doRequest(t, srv, http.MethodGet, "/api/v1/locks", token, nil)
	check("list locks", w.Body.String())

	w = doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", token, transitionRequest{
		Target: "unlocked",
		Pin:    "0000",
	})
	check("denied transition", w.Body.String())

	w = doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", token, transitionRequest{
		Target: "unlocked",
		Pin:    pin,
	})
	check("successful transition", w.Body.String())

	w = doRequest(t, srv, http.MethodGet, "/api/v1/locks/"+l.ID+"/activity", token, nil)
	check("activity", w.Body.String())
}

func TestHandleLockActivity(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)
	l := createLockFor(t, srv, token, "Front Door")
	setPIN(t, srv, token, l.ID, "1234")

	statePath := "/api/v1/locks/" + l.ID + "/state"
	for i := 0; i < 2; i++ {
		w := doRequest(t, srv, http.MethodPut, statePath, token, transitionRequest{Target: "unlocked", Pin: "1234"})
		if w.Code != http.StatusOK {
			t.Fatalf("unlock %d status = %d", i, w.Code)
		}
		w = doRequest(t, srv, http.MethodPut, statePath, token, transitionRequest{Target: "locked"})
		if w.Code != http.StatusOK {
			t.Fatalf("lock %d status = %d", i, w.Code)
		}
	}

	// A denied attempt must not add an activity record.
	doRequest(t, srv, http.MethodPut, statePath, token, transitionRequest{Target: "unlocked", Pin: "0000"})

	w := doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/locks/%s/activity?limit=10", l.ID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activity status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Activity []lock.ActivityRecord `json:"activity"`
		Total    int                   `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 4 {
		t.Errorf("total = %d, want 4", resp.Total)
	}
	if len(resp.Activity) != 4 {
		t.Fatalf("len(activity) = %d, want 4", len(resp.Activity))
	}
	// Newest first.
	if resp.Activity[0].Action != lock.StateLocked {
		t.Errorf("newest action = %q, want %q", resp.Activity[0].Action, lock.StateLocked)
	}
	for _, a := range resp.Activity {
		if a.Actor != user.ID {
			t.Errorf("actor = %q, want %q", a.Actor, user.ID)
		}
	}
}
