package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier accepts any token except "bad-token" and reports a fixed
// subject.
type stubVerifier struct {
	subject string
}

func (v *stubVerifier) Verify(token string) (string, error) {
	if token == "bad-token" {
		return "", errors.New("signature is invalid")
	}
	return v.subject, nil
}

// stubProvider serves a canned snapshot for "systemHealth" only.
type stubProvider struct{}

func (stubProvider) Snapshot(_ context.Context, widgetType string) (any, bool) {
	if widgetType == "systemHealth" {
		return map[string]any{"status": "healthy"}, true
	}
	return nil, false
}

// testHub wires a hub behind a test HTTP server running the same read loop
// the production handler uses.
func testHub(t *testing.T) (*Hub, func() *ws.Conn) {
	t.Helper()

	h := New(&stubVerifier{subject: "user-1"}, stubProvider{}, clockwork.NewRealClock())
	t.Cleanup(func() { h.Stop() })

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}

		sessionID, err := h.Register(conn)
		if err != nil {
			t.Errorf("register failed: %v", err)
			return
		}

		go func() {
			defer h.Disconnect(sessionID)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					break
				}
				h.Inbound(sessionID, raw)
			}
		}()
	}))
	t.Cleanup(func() { server.Close() })

	dial := func() *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return h, dial
}

func readFrame(t *testing.T, conn *ws.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(msg, &frame))
	return frame
}

func sendFrame(t *testing.T, conn *ws.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

// connect dials and consumes the welcome frame, returning the conn and its
// session id.
func connect(t *testing.T, dial func() *ws.Conn) (*ws.Conn, string) {
	t.Helper()
	conn := dial()
	welcome := readFrame(t, conn)
	require.Equal(t, "connection", welcome["type"])
	sessionID, _ := welcome["sessionId"].(string)
	require.NotEmpty(t, sessionID)
	return conn, sessionID
}

func authenticate(t *testing.T, conn *ws.Conn) {
	t.Helper()
	sendFrame(t, conn, map[string]any{"type": "authenticate", "token": "good-token"})
	result := readFrame(t, conn)
	require.Equal(t, "auth_result", result["type"])
	require.Equal(t, true, result["success"])
}

func waitForSubscriberCount(h *Hub, widgetID string, expected int) bool {
	for i := 0; i < 200; i++ {
		if h.SubscriberCount(widgetID) == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestHub_WelcomeFrame(t *testing.T) {
	h, dial := testHub(t)

	conn := dial()
	welcome := readFrame(t, conn)

	assert.Equal(t, "connection", welcome["type"])
	assert.NotEmpty(t, welcome["sessionId"])
	assert.Equal(t, welcomeMessage, welcome["message"])
	assert.NotContains(t, welcome, "timestamp")

	state := h.SessionState(welcome["sessionId"].(string))
	assert.True(t, state.Exists)
	assert.False(t, state.Authenticated)
}

func TestHub_AuthenticateSuccess(t *testing.T) {
	h, dial := testHub(t)
	conn, sessionID := connect(t, dial)

	sendFrame(t, conn, map[string]any{"type": "authenticate", "token": "good-token"})
	result := readFrame(t, conn)

	assert.Equal(t, "auth_result", result["type"])
	assert.Equal(t, true, result["success"])
	assert.Equal(t, msgAuthSuccess, result["message"])
	assert.NotEmpty(t, result["timestamp"])

	state := h.SessionState(sessionID)
	assert.True(t, state.Authenticated)
	assert.Equal(t, "user-1", state.SubjectID)
}

func TestHub_AuthenticateMissingCredential(t *testing.T) {
	h, dial := testHub(t)
	conn, sessionID := connect(t, dial)

	sendFrame(t, conn, map[string]any{"type": "authenticate"})
	result := readFrame(t, conn)

	assert.Equal(t, "auth_result", result["type"])
	assert.Equal(t, false, result["success"])
	assert.Equal(t, msgMissingCredential, result["message"])

	// The connection stays open and unauthenticated; the client may retry.
	assert.False(t, h.SessionState(sessionID).Authenticated)
	authenticate(t, conn)
	assert.True(t, h.SessionState(sessionID).Authenticated)
}

func TestHub_AuthenticateInvalidToken(t *testing.T) {
	h, dial := testHub(t)
	conn, sessionID := connect(t, dial)

	sendFrame(t, conn, map[string]any{"type": "authenticate", "token": "bad-token"})
	result := readFrame(t, conn)

	assert.Equal(t, false, result["success"])
	assert.Equal(t, msgAuthFailed, result["message"])
	assert.False(t, h.SessionState(sessionID).Authenticated)
}

func TestHub_AuthenticateTwice(t *testing.T) {
	_, dial := testHub(t)
	conn, _ := connect(t, dial)
	authenticate(t, conn)

	// A second attempt succeeds without re-verifying; the bad token is
	// not even checked.
	sendFrame(t, conn, map[string]any{"type": "authenticate", "token": "bad-token"})
	result := readFrame(t, conn)

	assert.Equal(t, true, result["success"])
	assert.Equal(t, msgAlreadyAuthed, result["message"])
}

func TestHub_SubscribeRequiresAuthentication(t *testing.T) {
	h, dial := testHub(t)
	conn, sessionID := connect(t, dial)

	sendFrame(t, conn, map[string]any{"type": "subscribe", "widgetId": "w-1"})
	result := readFrame(t, conn)

	assert.Equal(t, "error", result["type"])
	assert.Equal(t, msgAuthRequired, result["message"])

	assert.Equal(t, 0, h.SubscriberCount("w-1"))
	assert.Empty(t, h.SessionState(sessionID).Widgets)
}

func TestHub_SubscribeRequiresWidgetID(t *testing.T) {
	_, dial := testHub(t)
	conn, _ := connect(t, dial)
	authenticate(t, conn)

	sendFrame(t, conn, map[string]any{"type": "subscribe"})
	result := readFrame(t, conn)

	assert.Equal(t, "error", result["type"])
	assert.Equal(t, msgWidgetIDRequired, result["message"])
}

func TestHub_SubscribeDeliversSnapshot(t *testing.T) {
	h, dial := testHub(t)
	conn, sessionID := connect(t, dial)
	authenticate(t, conn)

	sendFrame(t, conn, map[string]any{"type": "subscribe", "widgetId": "w-1", "widgetType": "systemHealth"})

	result := readFrame(t, conn)
	assert.Equal(t, "subscription_result", result["type"])
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "w-1", result["widgetId"])
	assert.Equal(t, msgSubscribed, result["message"])

	// The initial snapshot follows as a regular widget update.
	update := readFrame(t, conn)
	assert.Equal(t, "widget_update", update["type"])
	assert.Equal(t, "w-1", update["widgetId"])
	data, ok := update["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "healthy", data["status"])

	assert.Equal(t, 1, h.SubscriberCount("w-1"))
	assert.ElementsMatch(t, []string{"w-1"}, h.SessionState(sessionID).Widgets)
}

func TestHub_SubscribeUnknownWidgetTypeSkipsSnapshot(t *testing.T) {
	h, dial := testHub(t)
	conn, _ := connect(t, dial)
	authenticate(t, conn)

	sendFrame(t, conn, map[string]any{"type": "subscribe", "widgetId": "w-9", "widgetType": "nope"})
	result := readFrame(t, conn)
	assert.Equal(t, "subscription_result", result["type"])
	assert.Equal(t, true, result["success"])

	// The subscription stands even though there is no snapshot; a later
	// ping proves no widget_update was queued in between.
	assert.Equal(t, 1, h.SubscriberCount("w-9"))
	sendFrame(t, conn, map[string]any{"type": "ping"})
	next := readFrame(t, conn)
	assert.Equal(t, "pong", next["type"])
}

func TestHub_PublishFansOutToSubscribers(t *testing.T) {
	h, dial := testHub(t)

	conn1, _ := connect(t, dial)
	authenticate(t, conn1)
	sendFrame(t, conn1, map[string]any{"type": "subscribe", "widgetId": "w-1", "widgetType": "nope"})
	readFrame(t, conn1) // subscription_result

	conn2, _ := connect(t, dial)
	authenticate(t, conn2)
	sendFrame(t, conn2, map[string]any{"type": "subscribe", "widgetId": "w-1", "widgetType": "nope"})
	readFrame(t, conn2)

	bystander, _ := connect(t, dial)
	authenticate(t, bystander)

	require.True(t, waitForSubscriberCount(h, "w-1", 2))

	delivered := h.Publish("w-1", map[string]any{"alerts": 3.0})
	assert.Equal(t, 2, delivered)

	for _, conn := range []*ws.Conn{conn1, conn2} {
		update := readFrame(t, conn)
		assert.Equal(t, "widget_update", update["type"])
		assert.Equal(t, "w-1", update["widgetId"])
		data := update["data"].(map[string]any)
		assert.Equal(t, 3.0, data["alerts"])
		assert.NotEmpty(t, update["timestamp"])
	}

	// The bystander never subscribed; the next frame it sees is its own pong.
	sendFrame(t, bystander, map[string]any{"type": "ping"})
	next := readFrame(t, bystander)
	assert.Equal(t, "pong", next["type"])
}

func TestHub_PublishSkipsFailedSendAndDeliversToRest(t *testing.T) {
	h := New(&stubVerifier{subject: "user-1"}, stubProvider{}, clockwork.NewRealClock())
	t.Cleanup(func() { h.Stop() })

	type member struct {
		client    *ws.Conn
		sessionID string
	}

	members := make([]member, 0, 3)
	for i := 0; i < 3; i++ {
		server, client := newTestConnPair(t)
		sessionID, err := h.Register(server)
		require.NoError(t, err)

		welcome := readFrame(t, client)
		require.Equal(t, "connection", welcome["type"])

		h.Inbound(sessionID, []byte(`{"type":"authenticate","token":"good-token"}`))
		result := readFrame(t, client)
		require.Equal(t, true, result["success"])

		h.Inbound(sessionID, []byte(`{"type":"subscribe","widgetId":"w-1","widgetType":"nope"}`))
		result = readFrame(t, client)
		require.Equal(t, "subscription_result", result["type"])

		members = append(members, member{client: client, sessionID: sessionID})
	}
	require.True(t, waitForSubscriberCount(h, "w-1", 3))

	// Wedge the middle subscriber: stop its write pump and fill the send
	// buffer so the next delivery attempt is refused.
	victim, ok := h.registry.get(members[1].sessionID)
	require.True(t, ok)
	victim.writer.stop()
	for i := 0; i < messageBufferSize; i++ {
		require.True(t, victim.writer.enqueue([]byte(`{}`)))
	}

	delivered := h.Publish("w-1", map[string]any{"alerts": 1.0})
	assert.Equal(t, 2, delivered, "failed send should be skipped, not abort the fan-out")

	for _, i := range []int{0, 2} {
		update := readFrame(t, members[i].client)
		assert.Equal(t, "widget_update", update["type"])
		assert.Equal(t, "w-1", update["widgetId"])
	}

	// The failed delivery mutates nothing: the wedged session and its
	// subscription survive until the liveness machinery tears them down.
	assert.True(t, h.SessionState(members[1].sessionID).Exists)
	assert.Equal(t, 3, h.SubscriberCount("w-1"))
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	h, _ := testHub(t)
	assert.Equal(t, 0, h.Publish("w-1", map[string]any{"x": 1}))
}

func TestHub_Unsubscribe(t *testing.T) {
	h, dial := testHub(t)
	conn, sessionID := connect(t, dial)
	authenticate(t, conn)

	sendFrame(t, conn, map[string]any{"type": "subscribe", "widgetId": "w-1", "widgetType": "nope"})
	readFrame(t, conn)
	require.True(t, waitForSubscriberCount(h, "w-1", 1))

	sendFrame(t, conn, map[string]any{"type": "unsubscribe", "widgetId": "w-1"})
	result := readFrame(t, conn)

	assert.Equal(t, "unsubscription_result", result["type"])
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "w-1", result["widgetId"])
	assert.Equal(t, msgUnsubscribed, result["message"])

	assert.Equal(t, 0, h.SubscriberCount("w-1"))
	assert.Empty(t, h.SessionState(sessionID).Widgets)
}

func TestHub_UnsubscribeWithoutWidgetIDIsSilent(t *testing.T) {
	_, dial := testHub(t)
	conn, _ := connect(t, dial)
	authenticate(t, conn)

	sendFrame(t, conn, map[string]any{"type": "unsubscribe"})

	// No response of any kind; the next frame is the pong for our ping.
	sendFrame(t, conn, map[string]any{"type": "ping"})
	next := readFrame(t, conn)
	assert.Equal(t, "pong", next["type"])
}

func TestHub_PingBeforeAuthentication(t *testing.T) {
	_, dial := testHub(t)
	conn, _ := connect(t, dial)

	sendFrame(t, conn, map[string]any{"type": "ping"})
	result := readFrame(t, conn)

	assert.Equal(t, "pong", result["type"])
	assert.NotEmpty(t, result["timestamp"])
}

func TestHub_MalformedFrame(t *testing.T) {
	_, dial := testHub(t)
	conn, _ := connect(t, dial)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("not json")))
	result := readFrame(t, conn)

	assert.Equal(t, "error", result["type"])
	assert.Equal(t, msgInvalidFormat, result["message"])
}

func TestHub_UnsupportedMessageType(t *testing.T) {
	_, dial := testHub(t)
	conn, _ := connect(t, dial)

	sendFrame(t, conn, map[string]any{"type": "broadcast"})
	result := readFrame(t, conn)

	assert.Equal(t, "error", result["type"])
	assert.Equal(t, msgUnsupportedType, result["message"])
}

func TestHub_DisconnectCleansUpSubscriptions(t *testing.T) {
	h, dial := testHub(t)
	conn, sessionID := connect(t, dial)
	authenticate(t, conn)

	sendFrame(t, conn, map[string]any{"type": "subscribe", "widgetId": "w-1", "widgetType": "nope"})
	readFrame(t, conn)
	require.True(t, waitForSubscriberCount(h, "w-1", 1))

	conn.Close()

	require.True(t, waitForSubscriberCount(h, "w-1", 0))
	assert.False(t, h.SessionState(sessionID).Exists)
	assert.Equal(t, 0, h.Publish("w-1", map[string]any{"x": 1}))
}

func TestHub_StopSendsCloseFrames(t *testing.T) {
	h := New(&stubVerifier{subject: "user-1"}, stubProvider{}, clockwork.NewRealClock())

	server, client := newTestConnPair(t)
	_, err := h.Register(server)
	require.NoError(t, err)

	// Drain the welcome frame first.
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = client.ReadMessage()
	require.NoError(t, err)

	h.Stop()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = client.ReadMessage()
	if closeErr, ok := err.(*ws.CloseError); ok {
		assert.Equal(t, ws.CloseNormalClosure, closeErr.Code)
		assert.Contains(t, closeErr.Text, "shutting down")
	} else {
		assert.Error(t, err, "connection should be closed")
	}
}

func TestHub_InboundForUnknownSessionIsDropped(t *testing.T) {
	h, _ := testHub(t)

	// Must not panic or respond; a follow-up query proves the actor is alive.
	h.Inbound("missing", []byte(`{"type":"ping"}`))
	assert.Equal(t, 0, h.SubscriberCount("w-1"))
}
