package model

import (
	"strings"
	"time"
)

// RoomID uniquely identifies a battle room
type RoomID string

// RoomCode is the short, shareable code players use to join a room
type RoomCode string

const (
	// RoomCodeLength is the exact length of a valid room code
	RoomCodeLength = 6
	// RoomCodeAlphabet is used for generated codes (no 0/O or 1/I)
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// RoomStatus is derived from a room's lifecycle timestamps
type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "waiting"
	RoomStatusInProgress RoomStatus = "in_progress"
	RoomStatusFinished   RoomStatus = "finished"
	RoomStatusAbandoned  RoomStatus = "abandoned"
)

// Room is a multiplayer progress race scoped to a single course
type Room struct {
	ID         RoomID
	Code       RoomCode
	AdminID    PlayerID
	CourseID   string
	CourseName string

	IsPrivate  bool
	IsReady    bool
	JoinLocked bool

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	EndTime    *time.Time
}

// IsStarted reports whether the room has been started
func (r *Room) IsStarted() bool {
	return r.StartedAt != nil
}

// IsFinished reports whether the room has been finished or abandoned
func (r *Room) IsFinished() bool {
	return r.FinishedAt != nil
}

// IsClosed reports whether new players are blocked from joining
func (r *Room) IsClosed() bool {
	return r.JoinLocked || r.FinishedAt != nil
}

// IsAdmin reports whether the given player administers the room
func (r *Room) IsAdmin(playerID PlayerID) bool {
	return playerID != "" && r.AdminID == playerID
}

// Status derives the lifecycle status of the room.
// A room finished without ever being started was abandoned.
func (r *Room) Status() RoomStatus {
	switch {
	case r.FinishedAt != nil && r.StartedAt == nil:
		return RoomStatusAbandoned
	case r.FinishedAt != nil:
		return RoomStatusFinished
	case r.StartedAt != nil:
		return RoomStatusInProgress
	default:
		return RoomStatusWaiting
	}
}

// Clone returns a deep copy of the room
func (r *Room) Clone() *Room {
	c := *r
	c.StartedAt = cloneTime(r.StartedAt)
	c.FinishedAt = cloneTime(r.FinishedAt)
	c.EndTime = cloneTime(r.EndTime)
	return &c
}

// SanitizeRoomCode normalises user input into room code form: uppercase,
// non-alphanumerics removed, truncated to RoomCodeLength.
// The result may be shorter than RoomCodeLength.
func SanitizeRoomCode(raw string) RoomCode {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if b.Len() == RoomCodeLength {
			break
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return RoomCode(b.String())
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
