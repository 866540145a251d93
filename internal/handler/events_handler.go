package handler

import (
	"log/slog"
	"net/http"

	"guardian-recovery/internal/middleware"
	"guardian-recovery/internal/websocket"
)

type EventsHandler struct {
	upgrader *websocket.Upgrader
}

func NewEventsHandler(upgrader *websocket.Upgrader) *EventsHandler {
	return &EventsHandler{upgrader: upgrader}
}

// Stream upgrades to a websocket that receives every published event.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	caller := ""
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		caller = claims.Subject
	}

	// Upgrade writes its own HTTP error on failure.
	if err := h.upgrader.Serve(r.Context(), w, r, caller); err != nil {
		slog.Debug("websocket session ended", "caller", caller, "error", err)
	}
}
