package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/puzzlerace/go/internal/auth"
	"github.com/mcdev12/puzzlerace/go/internal/profile"
)

// WebSocketHandler authenticates and upgrades websocket requests.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	authenticator     auth.Authenticator
	profiles          profile.Provider
	profileTimeout    time.Duration
}

func NewWebSocketHandler(cm *ConnectionManager, authenticator auth.Authenticator, profiles profile.Provider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		authenticator:     authenticator,
		profiles:          profiles,
		profileTimeout:    5 * time.Second,
	}
}

// HandleConnection authenticates before upgrading; unauthenticated requests
// get a plain 401.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticator.Authenticate(r)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("rejected websocket upgrade")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.profileTimeout)
	identity := profile.Resolve(ctx, h.profiles, userID)
	cancel()

	if _, err := h.connectionManager.Upgrade(w, r, identity); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to upgrade WebSocket connection")
		return
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
