package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/coursebattle/internal/api/middleware"
	"github.com/mcoot/coursebattle/internal/api/request"
	"github.com/mcoot/coursebattle/internal/api/response"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/auth"
	"github.com/mcoot/coursebattle/internal/services/room"
)

// PlayerHandler handles player and profile endpoints
type PlayerHandler struct {
	authService *auth.Service
	roomService *room.Service
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(authService *auth.Service, roomService *room.Service) *PlayerHandler {
	return &PlayerHandler{
		authService: authService,
		roomService: roomService,
	}
}

// CreateGuest handles POST /api/v1/players/guest
func (h *PlayerHandler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	var req request.CreateGuestRequest
	if err := decodeJSON(r, &req, true); err != nil {
		WriteError(w, err)
		return
	}

	session, err := h.authService.CreateGuestPlayer(r.Context(), req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.AuthResponseFromSession(session))
}

// Register handles POST /api/v1/players/register
func (h *PlayerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, err := h.authService.RegisterPlayer(r.Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.AuthResponseFromSession(session))
}

// Login handles POST /api/v1/players/login
func (h *PlayerHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.AuthResponseFromSession(session))
}

// Logout handles POST /api/v1/players/logout
func (h *PlayerHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := middleware.GetSession(r.Context()); session != nil {
		h.authService.InvalidateSession(session.Token)
	}
	response.NoContent(w)
}

// GetMe handles GET /api/v1/players/me
func (h *PlayerHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	player := middleware.MustGetPlayer(r.Context())
	response.JSON(w, http.StatusOK, response.PlayerFromModel(player))
}

// GetProfile handles GET /api/v1/profiles/{id}
func (h *PlayerHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PlayerID(r.Context())
	playerID := model.PlayerID(mux.Vars(r)["id"])
	if playerID == "me" {
		playerID = caller
	}

	profile, err := h.roomService.GetProfile(r.Context(), caller, playerID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ProfileFromModel(profile))
}
