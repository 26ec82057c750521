package model

import "errors"

// Common errors used across the application
var (
	// Player errors
	ErrPlayerNotFound = errors.New("player not found")
	ErrNotSignedIn    = errors.New("sign in first")

	// Room errors
	ErrRoomNotFound        = errors.New("room not found")
	ErrInvalidRoomCode     = errors.New("invalid code or room is hidden")
	ErrRoomClosed          = errors.New("this room is closed to new players")
	ErrDuplicateRoomCode   = errors.New("room code already in use")
	ErrCourseRequired      = errors.New("course id is required")
	ErrNotAdmin            = errors.New("only the room admin can do that")
	ErrRoomAlreadyStarted  = errors.New("room has already started")
	ErrRoomFinished        = errors.New("room has already finished")
	ErrRoomCodeUnavailable = errors.New("could not allocate a unique room code")

	// Membership errors
	ErrDisplayNameRequired = errors.New("display name is required")
	ErrDuplicateMembership = errors.New("player is already a member of this room")
	ErrNotMember           = errors.New("player is not a member of this room")

	// Chat errors
	ErrEmptyMessage = errors.New("message is empty")

	// Progress errors
	ErrLessonRequired = errors.New("lesson id is required")
)
