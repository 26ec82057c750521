package model

import "time"

// MessageID uniquely identifies a chat message
type MessageID string

// DefaultChatHistoryLimit is the number of messages returned when no limit is given
const DefaultChatHistoryLimit = 100

// ChatMessage is an append-only message posted to a room's chat
type ChatMessage struct {
	ID        MessageID
	RoomID    RoomID
	SenderID  PlayerID
	Content   string
	CreatedAt time.Time
}
