package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/coursebattle/internal/api/middleware"
	"github.com/mcoot/coursebattle/internal/api/sse"
	"github.com/mcoot/coursebattle/internal/services/room"
)

// EventsHandler streams a room's leaderboard, room and chat updates as
// server-sent events
type EventsHandler struct {
	roomService *room.Service
	hubs        *sse.HubManager
	logger      *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(roomService *room.Service, hubs *sse.HubManager, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		roomService: roomService,
		hubs:        hubs,
		logger:      logger.With(slog.String("component", "events")),
	}
}

// Stream handles GET /api/v1/rooms/{id}/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PlayerID(r.Context())
	id := roomID(r)

	// Rejects unknown rooms and unauthenticated callers before streaming
	if _, err := h.roomService.GetMembers(r.Context(), caller, id); err != nil {
		WriteError(w, err)
		return
	}

	initial, err := h.hubs.InitialLeaderboard(r.Context(), id, caller)
	if err != nil {
		h.logger.Warn("initial leaderboard render failed",
			slog.String("room_id", string(id)),
			slog.String("error", err.Error()))
		initial = nil
	}

	sse.ServeSSE(w, r, h.hubs.GetOrCreateHub(id), caller, initial)
}
