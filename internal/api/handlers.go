package api

import (
	"encoding/json"
	"log"
	"net/http"

	"codesync/internal/middleware"
	"codesync/internal/protocol"
	"codesync/internal/services/collaboration"

	"go.opentelemetry.io/otel/attribute"
)

// Handler handles HTTP requests
type Handler struct {
	rooms       RoomRepository
	suggestions SuggestionService
	stats       RoomStats
	wsHandler   *collaboration.WebSocketHandler
}

func NewHandler(
	rooms RoomRepository,
	suggestions SuggestionService,
	stats RoomStats,
	wsHandler *collaboration.WebSocketHandler,
) *Handler {
	return &Handler{
		rooms:       rooms,
		suggestions: suggestions,
		stats:       stats,
		wsHandler:   wsHandler,
	}
}

// Room handlers

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.Create(r.Context())
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}

	middleware.AddSpanEvent(r.Context(), "room.created", attribute.String("room.id", room.RoomID))
	log.Printf("✓ Created room %s", room.RoomID)

	writeJSON(w, http.StatusOK, protocol.CreateRoomResponse{RoomID: room.RoomID})
}

func (h *Handler) HandleRoomWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleRoomConnection(w, r)
}

func (h *Handler) DebugRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Counts())
}

// Suggestion handlers

func (h *Handler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	var req protocol.SuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.CursorPosition < 0 {
		http.Error(w, "cursorPosition must not be negative", http.StatusBadRequest)
		return
	}

	resp, err := h.suggestions.Suggest(r.Context(), req)
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
