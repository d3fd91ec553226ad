package api

import (
	"net/http"

	"codesync/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler, allowedOrigins []string) *mux.Router {
	r := mux.NewRouter()

	// Tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware(allowedOrigins))

	r.HandleFunc("/rooms", h.CreateRoom).Methods("POST", "OPTIONS")
	r.HandleFunc("/autocomplete", h.Autocomplete).Methods("POST", "OPTIONS")
	r.HandleFunc("/ws/{roomId}", h.HandleRoomWebSocket)
	r.HandleFunc("/debug/rooms", h.DebugRooms).Methods("GET")

	health := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
	r.HandleFunc("/api/health", health).Methods("GET")
	r.HandleFunc("/", health).Methods("GET")

	return r
}
