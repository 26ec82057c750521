package request

import "github.com/mcoot/coursebattle/internal/model"

// CreateGuestRequest is the request body for creating a guest player
type CreateGuestRequest struct {
	DisplayName string `json:"display_name"`
}

// RegisterRequest is the request body for registering a player
type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	CourseID    string `json:"course_id"`
	CourseName  string `json:"course_name"`
	IsPrivate   bool   `json:"is_private"`
	DisplayName string `json:"display_name"`
}

// JoinRoomRequest is the request body for joining a room by code
type JoinRoomRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

// RenameRequest is the request body for changing a display name in a room
type RenameRequest struct {
	DisplayName string `json:"display_name"`
}

// ProgressRequest is the request body for upserting progress
type ProgressRequest struct {
	Snapshot model.Snapshot `json:"snapshot"`
	Score    int            `json:"score"`
}

// SendMessageRequest is the request body for posting a chat message
type SendMessageRequest struct {
	Content string `json:"content"`
}

// Realtime message types sent by websocket clients
const (
	RealtimeSubscribe   = "subscribe"
	RealtimeUnsubscribe = "unsubscribe"
)

// Realtime channels a client can subscribe to
const (
	ChannelRoom  = "room"
	ChannelRooms = "rooms"
	ChannelChat  = "chat"
)

// RealtimeRequest is a client frame on the realtime websocket. ID is chosen
// by the client and echoed on every frame for that subscription.
type RealtimeRequest struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Channel string `json:"channel"`
	RoomID  string `json:"room_id,omitempty"`
}
