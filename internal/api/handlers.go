package api

import (
	"errors"
	"net/http"
	"strconv"

	"mapsketch/internal/logging"
	"mapsketch/internal/relay"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrAuditDisabled = errors.New("session audit is not enabled")
)

// Handler serves the HTTP endpoints around the relay
// Learning: Uses INTERFACES defined in this package (consumer-driven)
type Handler struct {
	rooms    RoomDirectory  // live membership
	sessions SessionHistory // nil when no database is configured
	ws       http.Handler   // websocket endpoint
}

func NewHandler(rooms RoomDirectory, sessions SessionHistory, ws http.Handler) *Handler {
	return &Handler{
		rooms:    rooms,
		sessions: sessions,
		ws:       ws,
	}
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRooms lists every non-empty room and its session count
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.rooms.Rooms()
	if rooms == nil {
		rooms = []relay.RoomStats{}
	}

	total := 0
	for _, room := range rooms {
		total += room.Sessions
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms":    rooms,
		"count":    len(rooms),
		"sessions": total,
	})
}

// GetRoom returns one room's stats, or 404 if nobody is in it
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]

	size := h.rooms.Size(room)
	if size == 0 {
		writeError(w, http.StatusNotFound, ErrRoomNotFound)
		return
	}

	writeJSON(w, http.StatusOK, relay.RoomStats{Room: room, Sessions: size})
}

// ListRoomSessions returns audited sessions for a room, newest first
func (h *Handler) ListRoomSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusNotImplemented, ErrAuditDisabled)
		return
	}

	room := mux.Vars(r)["room"]

	limit := 50 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	records, err := h.sessions.ListByRoom(r.Context(), room, limit)
	if err != nil {
		logging.Error().Err(err).Str("room", room).Msg("❌ Failed to list session records")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room":     room,
		"sessions": records,
		"limit":    limit,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
