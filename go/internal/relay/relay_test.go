package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) *httptest.Server {
	t.Helper()
	service := NewService(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	go service.Start(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, room, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=" + room + "&client_id=" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ MessageType, payload string) {
	t.Helper()
	frame, err := Encode(typ, json.RawMessage(payload))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func read(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	return env
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

// waitForSnapshot polls the REST endpoint until the room reports a snapshot.
func waitForSnapshot(t *testing.T, srv *httptest.Server, room string) string {
	t.Helper()
	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/rooms/" + room + "/state")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	return body
}

func TestProtocolDecode(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)

	_, err = Decode([]byte(`{"payload":{}}`))
	require.Error(t, err)

	env, err := Decode([]byte(`{"type":"REQUEST_SYNC"}`))
	require.NoError(t, err)
	assert.Equal(t, MessageRequestSync, env.Type)
	assert.Empty(t, env.Payload)
}

func TestRequestSyncWithoutSnapshotIsIgnored(t *testing.T) {
	srv := newTestRelay(t)
	a := dial(t, srv, "main", "a")

	send(t, a, MessageRequestSync, "")
	expectSilence(t, a)

	resp, err := http.Get(srv.URL + "/api/rooms/main/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateIsRelayedToOthersOnly(t *testing.T) {
	srv := newTestRelay(t)
	a := dial(t, srv, "main", "a")
	b := dial(t, srv, "main", "b")
	waitForConnections(t, srv, 2)

	send(t, a, MessageUpdateState, `{"version":1,"n":1}`)

	env := read(t, b)
	assert.Equal(t, MessageSyncState, env.Type)
	assert.JSONEq(t, `{"version":1,"n":1}`, string(env.Payload))

	expectSilence(t, a)
}

func TestSnapshotSentOnConnectAndOnRequest(t *testing.T) {
	srv := newTestRelay(t)
	a := dial(t, srv, "main", "a")

	send(t, a, MessageUpdateState, `{"n":1}`)
	send(t, a, MessageUpdateState, `{"n":2}`)
	assert.JSONEq(t, `{"n":2}`, waitForLatest(t, srv, "main", `{"n":2}`))

	late := dial(t, srv, "main", "late")
	env := read(t, late)
	assert.Equal(t, MessageSyncState, env.Type)
	assert.JSONEq(t, `{"n":2}`, string(env.Payload))

	send(t, late, MessageRequestSync, "")
	env = read(t, late)
	assert.Equal(t, MessageSyncState, env.Type)
	assert.JSONEq(t, `{"n":2}`, string(env.Payload))
}

func TestRoomsAreIsolated(t *testing.T) {
	srv := newTestRelay(t)
	a := dial(t, srv, "one", "a")
	other := dial(t, srv, "two", "b")
	waitForConnections(t, srv, 2)

	send(t, a, MessageUpdateState, `{"room":"one"}`)
	waitForSnapshot(t, srv, "one")

	expectSilence(t, other)

	resp, err := http.Get(srv.URL + "/api/rooms/two/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMalformedAndUnknownMessagesAreIgnored(t *testing.T) {
	srv := newTestRelay(t)
	a := dial(t, srv, "main", "a")
	b := dial(t, srv, "main", "b")
	waitForConnections(t, srv, 2)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{broken")))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO"}`)))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"UPDATE_STATE"}`)))

	// The connection survives bad input and b's first frame is the valid update.
	send(t, a, MessageUpdateState, `{"ok":true}`)
	env := read(t, b)
	assert.JSONEq(t, `{"ok":true}`, string(env.Payload))
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestRelay(t)
	dial(t, srv, "main", "a")
	dial(t, srv, "main", "b")
	dial(t, srv, "side", "c")

	stats := waitForConnections(t, srv, 3)
	assert.Equal(t, 2, stats.ActiveRooms)
	assert.Equal(t, map[string]int{"main": 2, "side": 1}, stats.RoomConnections)
}

func waitForConnections(t *testing.T, srv *httptest.Server, want int) ConnectionStats {
	t.Helper()
	var stats ConnectionStats
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/ws/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		stats = ConnectionStats{}
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return false
		}
		return stats.TotalConnections == want
	}, 2*time.Second, 10*time.Millisecond)
	return stats
}

func waitForLatest(t *testing.T, srv *httptest.Server, room, want string) string {
	t.Helper()
	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/rooms/" + room + "/state")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		var got, exp any
		if json.Unmarshal(b, &got) != nil || json.Unmarshal([]byte(want), &exp) != nil {
			return false
		}
		return assert.ObjectsAreEqual(exp, got)
	}, 2*time.Second, 10*time.Millisecond)
	return body
}
