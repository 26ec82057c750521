package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/coursebattle/internal/api/apierr"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/auth"
)

type contextKey string

const (
	playerContextKey  contextKey = "player"
	sessionContextKey contextKey = "session"
)

// SessionCookie is the cookie carrying the session token
const SessionCookie = "session"

// Auth creates authentication middleware
func Auth(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			session, err := authService.ValidateSession(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
		})
	}
}

// OptionalAuth extracts session if present but doesn't require it
func OptionalAuth(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := ExtractToken(r); token != "" {
				if session, err := authService.ValidateSession(token); err == nil {
					r = r.WithContext(withSession(r.Context(), session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withSession(ctx context.Context, session *auth.Session) context.Context {
	player := session.Player
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return context.WithValue(ctx, playerContextKey, &player)
}

// ExtractToken returns the session token from the Authorization header, the
// session cookie, or the access_token query parameter, in that order. The
// query parameter exists for EventSource and websocket clients that cannot
// set headers.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}

	return r.URL.Query().Get("access_token")
}

// GetPlayer returns the authenticated player from the request context
func GetPlayer(ctx context.Context) *model.Player {
	player, _ := ctx.Value(playerContextKey).(*model.Player)
	return player
}

// GetSession returns the session from the request context
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}

// PlayerID returns the authenticated player's id, or "" when unauthenticated
func PlayerID(ctx context.Context) model.PlayerID {
	if player := GetPlayer(ctx); player != nil {
		return player.ID
	}
	return ""
}

// MustGetPlayer returns the authenticated player or panics
func MustGetPlayer(ctx context.Context) *model.Player {
	player := GetPlayer(ctx)
	if player == nil {
		panic("no player in context - auth middleware not applied?")
	}
	return player
}
