package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler serves the board socket and connection stats.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

func (h *WebSocketHandler) HandleTimersConnection(w http.ResponseWriter, r *http.Request) {
	// Upgrade writes its own HTTP error on failure.
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("failed to upgrade WebSocket connection")
	}
}

func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/timers", h.HandleTimersConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
