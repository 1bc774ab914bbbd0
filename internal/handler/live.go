package handler

import (
	"log/slog"
	"net/http"

	"github.com/attaboy/walletcore/internal/infra"
	"github.com/attaboy/walletcore/internal/projection"
)

// LiveHandler upgrades clients onto the live feed. With ?game=<id> the
// client joins that game's room and is greeted with its current stats.
type LiveHandler struct {
	hub    *infra.WSHub
	stats  *projection.LiveStats
	logger *slog.Logger
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(hub *infra.WSHub, stats *projection.LiveStats, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{hub: hub, stats: stats, logger: logger}
}

// Serve handles GET /live.
func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	room := projection.LiveRoom
	var greeting *infra.WSMessage
	if gameID := r.URL.Query().Get("game"); gameID != "" {
		room = projection.GameRoom(gameID)
		greeting = &infra.WSMessage{Event: "game-stats", Data: h.stats.Stats(r.Context(), gameID)}
	}

	if err := h.hub.Serve(w, r, room, "", greeting); err != nil {
		// the upgrader has already written the failure response
		h.logger.Warn("websocket upgrade failed", "error", err, "room", room)
	}
}
