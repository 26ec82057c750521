package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/coursebattle/internal/api/middleware"
	"github.com/mcoot/coursebattle/internal/api/request"
	"github.com/mcoot/coursebattle/internal/api/response"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/room"
)

// RoomHandler handles battle room endpoints
type RoomHandler struct {
	roomService *room.Service
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomService *room.Service) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

func roomID(r *http.Request) model.RoomID {
	return model.RoomID(mux.Vars(r)["id"])
}

// Create handles POST /api/v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateRoomRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	created, err := h.roomService.CreateRoom(r.Context(), middleware.PlayerID(r.Context()), room.CreateParams{
		CourseID:    req.CourseID,
		CourseName:  req.CourseName,
		IsPrivate:   req.IsPrivate,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.RoomFromModel(created))
}

// ListMine handles GET /api/v1/rooms
func (h *RoomHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomService.ListMyRooms(r.Context(), middleware.PlayerID(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.RoomsFromModel(rooms))
}

// Get handles GET /api/v1/rooms/{id}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	found, err := h.roomService.GetRoom(r.Context(), middleware.PlayerID(r.Context()), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.RoomFromModel(found))
}

// Delete handles DELETE /api/v1/rooms/{id}
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.roomService.DeleteRoom(r.Context(), middleware.PlayerID(r.Context()), roomID(r)); err != nil {
		WriteError(w, err)
		return
	}
	response.NoContent(w)
}

// Join handles POST /api/v1/rooms/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req request.JoinRoomRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	joined, err := h.roomService.JoinRoom(r.Context(), middleware.PlayerID(r.Context()), req.Code, req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.RoomFromModel(joined))
}

// Start handles POST /api/v1/rooms/{id}/start
func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	started, err := h.roomService.StartRoom(r.Context(), middleware.PlayerID(r.Context()), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.RoomFromModel(started))
}

// Finish handles POST /api/v1/rooms/{id}/finish
func (h *RoomHandler) Finish(w http.ResponseWriter, r *http.Request) {
	result, err := h.roomService.FinishRoom(r.Context(), middleware.PlayerID(r.Context()), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.FinishResultFromService(result))
}

// Rename handles PATCH /api/v1/rooms/{id}/name
func (h *RoomHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req request.RenameRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	member, err := h.roomService.UpdateDisplayName(r.Context(), middleware.PlayerID(r.Context()), roomID(r), req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.MemberFromModel(member))
}

// Members handles GET /api/v1/rooms/{id}/members
func (h *RoomHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.roomService.GetMembers(r.Context(), middleware.PlayerID(r.Context()), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.MembersFromModel(members))
}

// Progress handles PUT /api/v1/rooms/{id}/progress
func (h *RoomHandler) Progress(w http.ResponseWriter, r *http.Request) {
	var req request.ProgressRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	if req.Score < 0 || req.Score > 100 {
		WriteError(w, NewInvalidRequestError("score must be between 0 and 100"))
		return
	}

	member, err := h.roomService.UpsertProgress(r.Context(), middleware.PlayerID(r.Context()), roomID(r), req.Snapshot, req.Score)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.MemberFromModel(member))
}

// Messages handles GET /api/v1/rooms/{id}/messages?limit=N
func (h *RoomHandler) Messages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, NewInvalidRequestError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	messages, err := h.roomService.ChatHistory(r.Context(), middleware.PlayerID(r.Context()), roomID(r), limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.ChatMessagesFromModel(messages))
}

// SendMessage handles POST /api/v1/rooms/{id}/messages
func (h *RoomHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req request.SendMessageRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	msg, err := h.roomService.SendChat(r.Context(), middleware.PlayerID(r.Context()), roomID(r), req.Content)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, response.ChatMessageFromModel(msg))
}
