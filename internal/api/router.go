package api

import (
	"mapsketch/internal/middleware"

	"github.com/gorilla/mux"
)

// RouteOptions selects the optional parts of the HTTP surface
type RouteOptions struct {
	WSPath       string
	RoomStats    bool
	SessionAudit bool
}

func SetupRoutes(h *Handler, opts RouteOptions) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)       // Add tracing spans to all requests
	r.Use(middleware.ErrorRecoveryMiddleware) // Catch panics
	r.Use(middleware.CORSMiddleware)          // Handle CORS

	// WebSocket route
	wsPath := opts.WSPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.HandleFunc(wsPath, h.HandleWebSocket).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()

	// Health check endpoint
	api.HandleFunc("/health", h.Health).Methods("GET")

	// Room endpoints (read-only)
	if opts.RoomStats {
		api.HandleFunc("/rooms", h.ListRooms).Methods("GET")
		api.HandleFunc("/rooms/{room}", h.GetRoom).Methods("GET")
		if opts.SessionAudit {
			api.HandleFunc("/rooms/{room}/sessions", h.ListRoomSessions).Methods("GET")
		}
	}

	return r
}
