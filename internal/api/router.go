package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/coursebattle/internal/api/handler"
	"github.com/mcoot/coursebattle/internal/api/middleware"
	"github.com/mcoot/coursebattle/internal/api/realtime"
	"github.com/mcoot/coursebattle/internal/api/sse"
	"github.com/mcoot/coursebattle/internal/services/auth"
	"github.com/mcoot/coursebattle/internal/services/room"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	AuthService *auth.Service
	RoomService *room.Service
	HubManager  *sse.HubManager
	// AllowedOrigins lists extra browser origins allowed on the realtime socket
	AllowedOrigins []string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	playerHandler := handler.NewPlayerHandler(cfg.AuthService, cfg.RoomService)
	roomHandler := handler.NewRoomHandler(cfg.RoomService)
	eventsHandler := handler.NewEventsHandler(cfg.RoomService, cfg.HubManager, cfg.Logger)
	realtimeHandler := realtime.NewHandler(cfg.RoomService, cfg.Logger, cfg.AllowedOrigins...)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Player routes (no auth required for creating players/logging in)
	api.HandleFunc("/players/guest", playerHandler.CreateGuest).Methods(http.MethodPost)
	api.HandleFunc("/players/register", playerHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/players/login", playerHandler.Login).Methods(http.MethodPost)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	// Protected player routes
	playerProtected := api.PathPrefix("/players").Subrouter()
	playerProtected.Use(authMiddleware)
	playerProtected.HandleFunc("/me", playerHandler.GetMe).Methods(http.MethodGet)
	playerProtected.HandleFunc("/logout", playerHandler.Logout).Methods(http.MethodPost)

	profiles := api.PathPrefix("/profiles").Subrouter()
	profiles.Use(authMiddleware)
	profiles.HandleFunc("/{id}", playerHandler.GetProfile).Methods(http.MethodGet)

	// Room routes (all require auth)
	rooms := api.PathPrefix("/rooms").Subrouter()
	rooms.Use(authMiddleware)
	rooms.HandleFunc("", roomHandler.Create).Methods(http.MethodPost)
	rooms.HandleFunc("", roomHandler.ListMine).Methods(http.MethodGet)
	rooms.HandleFunc("/join", roomHandler.Join).Methods(http.MethodPost)
	rooms.HandleFunc("/{id}", roomHandler.Get).Methods(http.MethodGet)
	rooms.HandleFunc("/{id}", roomHandler.Delete).Methods(http.MethodDelete)
	rooms.HandleFunc("/{id}/start", roomHandler.Start).Methods(http.MethodPost)
	rooms.HandleFunc("/{id}/finish", roomHandler.Finish).Methods(http.MethodPost)
	rooms.HandleFunc("/{id}/name", roomHandler.Rename).Methods(http.MethodPatch)
	rooms.HandleFunc("/{id}/members", roomHandler.Members).Methods(http.MethodGet)
	rooms.HandleFunc("/{id}/progress", roomHandler.Progress).Methods(http.MethodPut)
	rooms.HandleFunc("/{id}/messages", roomHandler.Messages).Methods(http.MethodGet)
	rooms.HandleFunc("/{id}/messages", roomHandler.SendMessage).Methods(http.MethodPost)
	rooms.HandleFunc("/{id}/events", eventsHandler.Stream).Methods(http.MethodGet)

	// Realtime websocket; the token may arrive as ?access_token=
	realtimeRoute := api.PathPrefix("/realtime").Subrouter()
	realtimeRoute.Use(authMiddleware)
	realtimeRoute.Handle("", realtimeHandler).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
