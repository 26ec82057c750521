package model

import "time"

// PlayerID uniquely identifies a player across the system
type PlayerID string

// Player is a signed-in identity that can administer or join battle rooms
type Player struct {
	ID          PlayerID
	DisplayName string
	IsGuest     bool // true for unregistered players
	CreatedAt   time.Time
}

// RegisteredPlayer extends Player with authentication data
// Stored separately so the password hash never travels with a session
type RegisteredPlayer struct {
	PlayerID     PlayerID
	Username     string // login username (immutable)
	PasswordHash string // bcrypt hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile holds a player's lifetime battle record
type Profile struct {
	PlayerID PlayerID
	Wins     int
	Losses   int
}
