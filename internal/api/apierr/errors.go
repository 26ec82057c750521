package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotSignedIn         = "NOT_SIGNED_IN"
	CodePlayerNotFound      = "PLAYER_NOT_FOUND"
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeInvalidRoomCode     = "INVALID_ROOM_CODE"
	CodeRoomClosed          = "ROOM_CLOSED"
	CodeNotAdmin            = "NOT_ADMIN"
	CodeRoomAlreadyStarted  = "ROOM_ALREADY_STARTED"
	CodeRoomFinished        = "ROOM_FINISHED"
	CodeCourseRequired      = "COURSE_REQUIRED"
	CodeDisplayNameRequired = "DISPLAY_NAME_REQUIRED"
	CodeAlreadyMember       = "ALREADY_MEMBER"
	CodeNotMember           = "NOT_MEMBER"
	CodeEmptyMessage        = "EMPTY_MESSAGE"
	CodeCodeUnavailable     = "ROOM_CODE_UNAVAILABLE"
	CodeUsernameExists      = "USERNAME_EXISTS"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeWeakPassword        = "WEAK_PASSWORD"
	CodeInternalError       = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status err maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// Describe returns the API error err maps to
func Describe(err error) APIError {
	return toHTTPError(err).apiError
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	// Session errors
	case errors.Is(err, model.ErrNotSignedIn):
		return &httpError{http.StatusUnauthorized, APIError{CodeNotSignedIn, "Sign in first"}}
	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}

	// Room errors
	case errors.Is(err, model.ErrRoomNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeRoomNotFound, "Room not found"}}
	case errors.Is(err, model.ErrInvalidRoomCode):
		return &httpError{http.StatusNotFound, APIError{CodeInvalidRoomCode, "Invalid code or room is hidden"}}
	case errors.Is(err, model.ErrRoomClosed):
		return &httpError{http.StatusForbidden, APIError{CodeRoomClosed, "This room is closed to new players"}}
	case errors.Is(err, model.ErrNotAdmin):
		return &httpError{http.StatusForbidden, APIError{CodeNotAdmin, "Only the room admin can do that"}}
	case errors.Is(err, model.ErrRoomAlreadyStarted):
		return &httpError{http.StatusConflict, APIError{CodeRoomAlreadyStarted, "Room has already started"}}
	case errors.Is(err, model.ErrRoomFinished):
		return &httpError{http.StatusConflict, APIError{CodeRoomFinished, "Room has already finished"}}
	case errors.Is(err, model.ErrCourseRequired):
		return &httpError{http.StatusBadRequest, APIError{CodeCourseRequired, "Course id is required"}}
	case errors.Is(err, model.ErrRoomCodeUnavailable):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeCodeUnavailable, "Could not allocate a room code, try again"}}

	// Membership and chat errors
	case errors.Is(err, model.ErrDisplayNameRequired):
		return &httpError{http.StatusBadRequest, APIError{CodeDisplayNameRequired, "Display name is required"}}
	case errors.Is(err, model.ErrDuplicateMembership):
		return &httpError{http.StatusConflict, APIError{CodeAlreadyMember, "Already a member of this room"}}
	case errors.Is(err, model.ErrNotMember):
		return &httpError{http.StatusForbidden, APIError{CodeNotMember, "Not a member of this room"}}
	case errors.Is(err, model.ErrEmptyMessage):
		return &httpError{http.StatusBadRequest, APIError{CodeEmptyMessage, "Message is empty"}}

	// Auth errors
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidCredentials, "Invalid username or password"}}
	case errors.Is(err, auth.ErrInvalidSession):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired session"}}
	case errors.Is(err, auth.ErrUsernameExists):
		return &httpError{http.StatusConflict, APIError{CodeUsernameExists, "Username already exists"}}
	case errors.Is(err, auth.ErrWeakPassword):
		return &httpError{http.StatusBadRequest, APIError{CodeWeakPassword, "Password must be at least 8 characters"}}
	case errors.Is(err, auth.ErrUsernameRequired):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, "Username is required"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// FromCode maps an API error code back to the sentinel error it came from.
// It returns nil for codes without a sentinel.
func FromCode(code string) error {
	switch code {
	case CodeNotSignedIn:
		return model.ErrNotSignedIn
	case CodePlayerNotFound:
		return model.ErrPlayerNotFound
	case CodeRoomNotFound:
		return model.ErrRoomNotFound
	case CodeInvalidRoomCode:
		return model.ErrInvalidRoomCode
	case CodeRoomClosed:
		return model.ErrRoomClosed
	case CodeNotAdmin:
		return model.ErrNotAdmin
	case CodeRoomAlreadyStarted:
		return model.ErrRoomAlreadyStarted
	case CodeRoomFinished:
		return model.ErrRoomFinished
	case CodeCourseRequired:
		return model.ErrCourseRequired
	case CodeCodeUnavailable:
		return model.ErrRoomCodeUnavailable
	case CodeDisplayNameRequired:
		return model.ErrDisplayNameRequired
	case CodeAlreadyMember:
		return model.ErrDuplicateMembership
	case CodeNotMember:
		return model.ErrNotMember
	case CodeEmptyMessage:
		return model.ErrEmptyMessage
	case CodeInvalidCredentials:
		return auth.ErrInvalidCredentials
	case CodeUnauthorized:
		return auth.ErrInvalidSession
	case CodeUsernameExists:
		return auth.ErrUsernameExists
	case CodeWeakPassword:
		return auth.ErrWeakPassword
	default:
		return nil
	}
}
