package collaboration

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"codesync/internal/middleware"
	"codesync/internal/models"
	"codesync/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
)

/*
ROOM SESSION MANAGER

One goroutine owns room membership. Registration, removal and fan-out all
go through its channels, so a broadcast never races a join or leave.

Each connection runs two pumps: ReadPump persists incoming code_change frames
and asks the manager to fan out a code_update to everyone else in the room;
WritePump drains the connection's Send buffer and keeps the socket alive
with pings.
*/

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 256
	idleTimeout    = 5 * time.Minute
)

// ErrRoomFull is returned by Register when a room is at capacity
var ErrRoomFull = errors.New("room is full")

// ErrShuttingDown is returned by Register after Shutdown
var ErrShuttingDown = errors.New("session manager is shutting down")

// RoomStore is what the collaboration layer needs from room persistence
type RoomStore interface {
	GetByRoomID(ctx context.Context, roomID string) (*models.Room, error)
	UpdateCode(ctx context.Context, roomID, code string) error
}

// SessionManager tracks the live connections of every room
type SessionManager struct {
	rooms      map[string]map[*Session]bool // roomID -> set of sessions
	register   chan *registration
	unregister chan *Session
	broadcast  chan *BroadcastMessage
	mu         sync.RWMutex

	store      RoomStore
	maxPerRoom int

	done     chan struct{}
	shutdown sync.Once
}

type registration struct {
	session *Session
	result  chan error
}

// Session is one participant's websocket connection to a room
type Session struct {
	ID          string
	RoomID      string
	Conn        *websocket.Conn
	Send        chan []byte // Buffered channel for outbound frames
	Manager     *SessionManager
	ConnectedAt time.Time

	lastActive atomic.Int64
}

// BroadcastMessage is a frame to fan out to a room
type BroadcastMessage struct {
	RoomID  string
	Message []byte
	Sender  *Session // Skip this session when broadcasting
}

// NewSessionManager creates a manager allowing maxPerRoom connections per room
func NewSessionManager(store RoomStore, maxPerRoom int) *SessionManager {
	return &SessionManager{
		rooms:      make(map[string]map[*Session]bool),
		register:   make(chan *registration),
		unregister: make(chan *Session),
		broadcast:  make(chan *BroadcastMessage, 256),
		store:      store,
		maxPerRoom: maxPerRoom,
		done:       make(chan struct{}),
	}
}

// NewSession wraps an upgraded connection
func (sm *SessionManager) NewSession(roomID string, conn *websocket.Conn) *Session {
	s := &Session{
		ID:          ksuid.New().String(),
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, sendBufferSize),
		Manager:     sm,
		ConnectedAt: time.Now(),
	}
	s.touch()
	return s
}

// Start begins the session manager event loop
func (sm *SessionManager) Start() {
	log.Println("🔄 Starting room session manager...")

	go func() {
		for {
			select {
			case <-sm.done:
				log.Println("Session manager shutting down...")
				return

			case reg := <-sm.register:
				reg.result <- sm.handleRegister(reg.session)

			case session := <-sm.unregister:
				sm.handleUnregister(session)

			case msg := <-sm.broadcast:
				sm.handleBroadcast(msg)
			}
		}
	}()

	go sm.cleanupLoop()

	log.Println("✓ Room session manager started")
}

// Register adds a session to its room, refusing it when the room is full
func (sm *SessionManager) Register(session *Session) error {
	reg := &registration{session: session, result: make(chan error, 1)}

	select {
	case sm.register <- reg:
	case <-sm.done:
		return ErrShuttingDown
	}

	select {
	case err := <-reg.result:
		return err
	case <-sm.done:
		return ErrShuttingDown
	}
}

// Unregister removes a session; safe to call for unknown sessions
func (sm *SessionManager) Unregister(session *Session) {
	select {
	case sm.unregister <- session:
	case <-sm.done:
	}
}

// Broadcast sends a frame to every session in the room except sender
func (sm *SessionManager) Broadcast(roomID string, message []byte, sender *Session) {
	select {
	case sm.broadcast <- &BroadcastMessage{RoomID: roomID, Message: message, Sender: sender}:
	case <-sm.done:
	}
}

func (sm *SessionManager) handleRegister(session *Session) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sessions := sm.rooms[session.RoomID]
	if len(sessions) >= sm.maxPerRoom {
		log.Printf("Room %s has reached max connections (%d). Rejecting session %s",
			session.RoomID, len(sessions), session.ID)
		return ErrRoomFull
	}

	if sessions == nil {
		sessions = make(map[*Session]bool)
		sm.rooms[session.RoomID] = sessions
	}
	sessions[session] = true

	log.Printf("  Session %s joined room %s (connections=%d)", session.ID, session.RoomID, len(sessions))
	return nil
}

func (sm *SessionManager) handleUnregister(session *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.removeLocked(session)
}

// removeLocked drops a session and closes its send buffer. Caller holds mu.
func (sm *SessionManager) removeLocked(session *Session) {
	sessions, ok := sm.rooms[session.RoomID]
	if !ok || !sessions[session] {
		return
	}

	delete(sessions, session)
	close(session.Send)
	if len(sessions) == 0 {
		delete(sm.rooms, session.RoomID)
	}

	log.Printf("  Session %s left room %s (connections=%d)", session.ID, session.RoomID, len(sessions))
}

func (sm *SessionManager) handleBroadcast(msg *BroadcastMessage) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for session := range sm.rooms[msg.RoomID] {
		if msg.Sender != nil && session == msg.Sender {
			continue
		}

		select {
		case session.Send <- msg.Message:
		default:
			// Buffer full - connection is slow or dead
			log.Printf("⚠️  Session %s buffer full, closing connection", session.ID)
			sm.removeLocked(session)
			session.Conn.Close()
		}
	}
}

// Counts returns the number of live connections per room
func (sm *SessionManager) Counts() map[string]int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	counts := make(map[string]int, len(sm.rooms))
	for roomID, sessions := range sm.rooms {
		counts[roomID] = len(sessions)
	}
	return counts
}

// cleanupLoop periodically drops sessions that stopped answering pings
func (sm *SessionManager) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case <-ticker.C:
			sm.closeIdle(time.Now().Add(-idleTimeout))
		}
	}
}

// closeIdle closes connections inactive since before cutoff. Their read
// pumps then unregister them.
func (sm *SessionManager) closeIdle(cutoff time.Time) int {
	sm.mu.RLock()
	var stale []*Session
	for _, sessions := range sm.rooms {
		for session := range sessions {
			if session.LastActive().Before(cutoff) {
				stale = append(stale, session)
			}
		}
	}
	sm.mu.RUnlock()

	for _, session := range stale {
		log.Printf("  Cleaning up inactive session %s", session.ID)
		session.Conn.Close()
	}
	return len(stale)
}

// Shutdown closes every connection with 1001 going-away
func (sm *SessionManager) Shutdown() {
	sm.shutdown.Do(func() {
		log.Println("🛑 Shutting down session manager...")

		close(sm.done)

		sm.mu.Lock()
		defer sm.mu.Unlock()

		deadline := time.Now().Add(time.Second)
		for _, sessions := range sm.rooms {
			for session := range sessions {
				_ = session.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down."), deadline)
				session.Conn.Close()
			}
		}

		sm.rooms = make(map[string]map[*Session]bool)
		log.Println("✓ Session manager shutdown complete")
	})
}

// Session methods

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive is when the session last sent a frame or pong
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// ReadPump reads frames from the connection until it fails
func (s *Session) ReadPump(ctx context.Context) {
	defer func() {
		s.Manager.Unregister(s)
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(maxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		s.touch()
		return nil
	})

	for {
		_, data, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		s.touch()
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handleFrame(ctx, data)
	}
}

func (s *Session) handleFrame(ctx context.Context, data []byte) {
	ctx, span := middleware.StartSpan(ctx, "WebSocket.ProcessMessage",
		attribute.String("session.id", s.ID),
		attribute.String("room.id", s.RoomID),
		attribute.Int("message.size", len(data)),
	)
	defer span.End()

	msg, err := protocol.Decode(data)
	if err != nil {
		log.Printf("⚠️  Received malformed frame in room %s: %v", s.RoomID, err)
		middleware.AddSpanError(ctx, err)
		return
	}
	if msg.Type != protocol.TypeCodeChange {
		return
	}

	if s.Manager.store != nil {
		if err := s.Manager.store.UpdateCode(ctx, s.RoomID, msg.Code); err != nil {
			log.Printf("Failed to persist code for room %s: %v", s.RoomID, err)
			middleware.AddSpanError(ctx, err)
		}
	}

	update, err := protocol.Encode(protocol.CodeUpdate(msg.Code))
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return
	}
	s.Manager.Broadcast(s.RoomID, update, s)
}

// WritePump writes queued frames and pings to the connection
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Unregistered
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
