package collaboration

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"codesync/internal/middleware"
	"codesync/internal/protocol"
	"codesync/internal/repository"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

// Close reasons sent to rejected clients
const (
	ReasonRoomMissing = "Room does not exist."
	ReasonRoomFull    = "Room is full."
)

// WebSocketHandler upgrades room connections and hands them to the session manager
type WebSocketHandler struct {
	sessionManager *SessionManager
	rooms          RoomStore
	upgrader       websocket.Upgrader
}

// NewWebSocketHandler creates a handler accepting the given origins. "*"
// accepts any origin; requests without an Origin header are always accepted.
func NewWebSocketHandler(sessionManager *SessionManager, rooms RoomStore, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &WebSocketHandler{
		sessionManager: sessionManager,
		rooms:          rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// HandleRoomConnection serves GET /ws/{roomId}
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect",
		attribute.String("room.id", roomID),
	)
	defer span.End()

	room, lookupErr := h.rooms.GetByRoomID(ctx, roomID)

	// Upgrade even for unknown rooms so the client sees a close code
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	if lookupErr != nil {
		if errors.Is(lookupErr, repository.ErrRoomNotFound) {
			log.Printf("Room %s not found. Closing connection.", roomID)
			reject(conn, websocket.ClosePolicyViolation, ReasonRoomMissing)
			return
		}
		log.Printf("Failed to load room %s: %v", roomID, lookupErr)
		middleware.AddSpanError(ctx, lookupErr)
		reject(conn, websocket.CloseInternalServerErr, "Internal error.")
		return
	}

	session := h.sessionManager.NewSession(roomID, conn)

	// Queued before registration so no broadcast can overtake it
	initial, err := protocol.Encode(protocol.InitialState(room.Code))
	if err != nil {
		middleware.AddSpanError(ctx, err)
		reject(conn, websocket.CloseInternalServerErr, "Internal error.")
		return
	}
	session.Send <- initial

	if err := h.sessionManager.Register(session); err != nil {
		if errors.Is(err, ErrRoomFull) {
			reject(conn, websocket.ClosePolicyViolation, ReasonRoomFull)
		} else {
			reject(conn, websocket.CloseGoingAway, "Server shutting down.")
		}
		middleware.AddSpanError(ctx, err)
		return
	}

	middleware.AddSpanEvent(ctx, "session.registered", attribute.String("session.id", session.ID))

	// The request context ends when this handler returns
	pumpCtx := context.WithoutCancel(ctx)
	go session.WritePump()
	go session.ReadPump(pumpCtx)
}

func reject(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
