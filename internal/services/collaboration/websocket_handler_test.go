package collaboration

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codesync/internal/models"
	"codesync/internal/protocol"
	"codesync/internal/repository"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	manager *SessionManager
	repo    *repository.MemoryRoomRepository
}

func newTestServer(t *testing.T, maxPerRoom int) *testServer {
	t.Helper()

	repo := repository.NewMemoryRoomRepository()
	manager := NewSessionManager(repo, maxPerRoom)
	manager.Start()

	handler := NewWebSocketHandler(manager, repo, []string{"*"})
	r := mux.NewRouter()
	r.HandleFunc("/ws/{roomId}", handler.HandleRoomConnection)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		manager.Shutdown()
		srv.Close()
	})

	return &testServer{Server: srv, manager: manager, repo: repo}
}

func (s *testServer) createRoom(t *testing.T) *models.Room {
	t.Helper()
	room, err := s.repo.Create(context.Background())
	require.NoError(t, err)
	return room
}

func (s *testServer) dial(t *testing.T, roomID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/" + roomID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr
	}
}

func send(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHandleRoomConnection_UnknownRoom(t *testing.T) {
	srv := newTestServer(t, 2)

	conn := srv.dial(t, "nosuchroom")
	closeErr := readClose(t, conn)

	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, ReasonRoomMissing, closeErr.Text)
}

func TestHandleRoomConnection_InitialState(t *testing.T) {
	srv := newTestServer(t, 2)
	room := srv.createRoom(t)

	conn := srv.dial(t, room.RoomID)
	msg := readMessage(t, conn)

	assert.Equal(t, protocol.TypeInitialState, msg.Type)
	assert.Equal(t, models.DefaultRoomCode, msg.Code)
}

func TestHandleRoomConnection_BroadcastsToOthers(t *testing.T) {
	srv := newTestServer(t, 2)
	room := srv.createRoom(t)

	alice := srv.dial(t, room.RoomID)
	readMessage(t, alice)
	bob := srv.dial(t, room.RoomID)
	readMessage(t, bob)

	send(t, alice, protocol.CodeChange("print('hi')"))

	msg := readMessage(t, bob)
	assert.Equal(t, protocol.TypeCodeUpdate, msg.Type)
	assert.Equal(t, "print('hi')", msg.Code)

	stored, err := srv.repo.GetByRoomID(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", stored.Code)

	// The sender never hears its own change
	alice.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = alice.ReadMessage()
	assert.Error(t, err)
}

func TestHandleRoomConnection_LateJoinerSeesPersistedCode(t *testing.T) {
	srv := newTestServer(t, 2)
	room := srv.createRoom(t)

	alice := srv.dial(t, room.RoomID)
	readMessage(t, alice)
	send(t, alice, protocol.CodeChange("x = 1"))

	require.Eventually(t, func() bool {
		stored, err := srv.repo.GetByRoomID(context.Background(), room.RoomID)
		return err == nil && stored.Code == "x = 1"
	}, 2*time.Second, 10*time.Millisecond)

	bob := srv.dial(t, room.RoomID)
	msg := readMessage(t, bob)
	assert.Equal(t, protocol.InitialState("x = 1"), msg)
}

func TestHandleRoomConnection_RoomFull(t *testing.T) {
	srv := newTestServer(t, 2)
	room := srv.createRoom(t)

	readMessage(t, srv.dial(t, room.RoomID))
	readMessage(t, srv.dial(t, room.RoomID))

	third := srv.dial(t, room.RoomID)
	closeErr := readClose(t, third)

	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, ReasonRoomFull, closeErr.Text)
	assert.Equal(t, 2, srv.manager.Counts()[room.RoomID])
}

func TestHandleRoomConnection_MalformedFrameIgnored(t *testing.T) {
	srv := newTestServer(t, 2)
	room := srv.createRoom(t)

	alice := srv.dial(t, room.RoomID)
	readMessage(t, alice)
	bob := srv.dial(t, room.RoomID)
	readMessage(t, bob)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	send(t, alice, protocol.CodeChange("still alive"))

	msg := readMessage(t, bob)
	assert.Equal(t, protocol.CodeUpdate("still alive"), msg)
}

func TestSessionManager_LeaveFreesSlot(t *testing.T) {
	srv := newTestServer(t, 1)
	room := srv.createRoom(t)

	first := srv.dial(t, room.RoomID)
	readMessage(t, first)
	require.NoError(t, first.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	first.Close()

	require.Eventually(t, func() bool {
		return srv.manager.Counts()[room.RoomID] == 0
	}, 2*time.Second, 10*time.Millisecond)

	second := srv.dial(t, room.RoomID)
	assert.Equal(t, protocol.TypeInitialState, readMessage(t, second).Type)
}

func TestSessionManager_ShutdownClosesGoingAway(t *testing.T) {
	srv := newTestServer(t, 2)
	room := srv.createRoom(t)

	conn := srv.dial(t, room.RoomID)
	readMessage(t, conn)

	srv.manager.Shutdown()

	closeErr := readClose(t, conn)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Empty(t, srv.manager.Counts())
}

func TestSessionManager_CloseIdle(t *testing.T) {
	srv := newTestServer(t, 2)
	room := srv.createRoom(t)

	conn := srv.dial(t, room.RoomID)
	readMessage(t, conn)
	require.Eventually(t, func() bool {
		return srv.manager.Counts()[room.RoomID] == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, srv.manager.closeIdle(time.Now().Add(-time.Minute)))
	assert.Equal(t, 1, srv.manager.closeIdle(time.Now().Add(time.Minute)))

	require.Eventually(t, func() bool {
		return srv.manager.Counts()[room.RoomID] == 0
	}, 2*time.Second, 10*time.Millisecond)
}
