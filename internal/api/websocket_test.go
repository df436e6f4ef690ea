package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dushansineth-design/keyless-door-app/internal/auth"
)

// wsTicketFor obtains a WebSocket ticket through the API for a user.
func wsTicketFor(t *testing.T, srv *Server, token string) string {
	t.Helper()

	w := doRequest(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ws-ticket status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal ticket response: %v", err)
	}
	if resp.Ticket == "" {
		t.Fatal("response has no ticket")
	}
	return resp.Ticket
}

// dialWS performs a real WebSocket handshake against a running test server.
// The dial carries no Authorization header: the ticket is the
// connection's authentication.
func dialWS(t *testing.T, ts *httptest.Server, ticket string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("websocket dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// subscribeWS subscribes the connection to channels and waits for the ack.
func subscribeWS(t *testing.T, conn *websocket.Conn, channels ...string) {
	t.Helper()

	msg := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	var ack WSMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test deadline
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read subscribe ack: %v", err)
	}
	if ack.Type != WSTypeResponse {
		t.Fatalf("subscribe ack type = %q, want %q", ack.Type, WSTypeResponse)
	}
}

func TestWebSocket_TicketOnlyDial(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	ticket := wsTicketFor(t, srv, token)
	conn := dialWS(t, ts, ticket)

	// The connection answers protocol pings.
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong WSMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test deadline
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != WSTypePong {
		t.Errorf("response type = %q, want %q", pong.Type, WSTypePong)
	}
}

func TestWebSocket_RejectsBadTicket(t *testing.T) {
	srv := testServer(t)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=not-a-ticket"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial with an invalid ticket should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Errorf("handshake status = %d, want %d", status, http.StatusUnauthorized)
	}
}

func TestWebSocket_ReceivesLockStateEvents(t *testing.T) {
	srv := testServer(t)
	user := createTestUser(t, srv, "alice", auth.RoleUser, true)
	token := accessTokenFor(t, user)

	// Wire registry change events into the hub the way Start() does.
	srv.registry.SetNotifier(srv.stateNotifier())

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	// Created before the subscription so the only event the connection
	// sees is the transition itself.
	l := createLockFor(t, srv, token, "Front Door")
	setPIN(t, srv, token, l.ID, "1234")

	conn := dialWS(t, ts, wsTicketFor(t, srv, token))
	subscribeWS(t, conn, ChannelLockState)

	w := doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", token, transitionRequest{
		Target: "unlocked",
		Pin:    "1234",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("transition status = %d, body = %s", w.Code, w.Body.String())
	}

	var event WSMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test deadline
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read state event: %v", err)
	}
	if event.Type != WSTypeEvent {
		t.Errorf("event type = %q, want %q", event.Type, WSTypeEvent)
	}
	if event.EventType != ChannelLockState {
		t.Errorf("event channel = %q, want %q", event.EventType, ChannelLockState)
	}

	payload, ok := event.Payload.(map[string]any)
	if !ok {
		t.Fatalf("event payload = %T, want object", event.Payload)
	}
	if payload["id"] != l.ID {
		t.Errorf("event lock id = %v, want %q", payload["id"], l.ID)
	}
	if locked, _ := payload["is_locked"].(bool); locked {
		t.Error("event still reports the lock as locked")
	}
}

func TestWebSocket_LockEventsAreOwnerScoped(t *testing.T) {
	srv := testServer(t)
	alice := createTestUser(t, srv, "alice", auth.RoleUser, true)
	bob := createTestUser(t, srv, "bob", auth.RoleUser, true)
	aliceToken := accessTokenFor(t, alice)
	bobToken := accessTokenFor(t, bob)

	srv.registry.SetNotifier(srv.stateNotifier())

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	bobConn := dialWS(t, ts, wsTicketFor(t, srv, bobToken))
	subscribeWS(t, bobConn, ChannelLockState)

	l := createLockFor(t, srv, aliceToken, "Front Door")
	setPIN(t, srv, aliceToken, l.ID, "1234")
	w := doRequest(t, srv, http.MethodPut, "/api/v1/locks/"+l.ID+"/state", aliceToken, transitionRequest{
		Target: "unlocked",
		Pin:    "1234",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("transition status = %d, body = %s", w.Code, w.Body.String())
	}

	// Bob must not see alice's lock events.
	var event WSMessage
	bobConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)) //nolint:errcheck // test deadline
	if err := bobConn.ReadJSON(&event); err == nil {
		t.Errorf("bob received another user's lock event: %+v", event)
	}
}
