package api

import (
	"net/http"
)

// WebSocket endpoints

// HandleWebSocket upgrades the request and hands the connection to the relay
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.ws.ServeHTTP(w, r)
}
