package response

import (
	"time"

	"github.com/mcoot/coursebattle/internal/api/apierr"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/auth"
	"github.com/mcoot/coursebattle/internal/services/room"
)

// Player represents a player in API responses
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsGuest     bool   `json:"is_guest"`
}

// PlayerFromModel converts a model.Player to a response Player
func PlayerFromModel(p *model.Player) Player {
	return Player{
		ID:          string(p.ID),
		DisplayName: p.DisplayName,
		IsGuest:     p.IsGuest,
	}
}

// AuthResponse is the response for authentication endpoints
type AuthResponse struct {
	Player       Player    `json:"player"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session) AuthResponse {
	return AuthResponse{
		Player:       PlayerFromModel(&s.Player),
		SessionToken: s.Token,
		ExpiresAt:    s.ExpiresAt,
	}
}

// Room represents a battle room
type Room struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	AdminID    string     `json:"admin_id"`
	CourseID   string     `json:"course_id"`
	CourseName string     `json:"course_name"`
	IsPrivate  bool       `json:"is_private"`
	IsReady    bool       `json:"is_ready"`
	JoinLocked bool       `json:"join_locked"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

// RoomFromModel converts a model.Room
func RoomFromModel(r *model.Room) Room {
	return Room{
		ID:         string(r.ID),
		Code:       string(r.Code),
		AdminID:    string(r.AdminID),
		CourseID:   r.CourseID,
		CourseName: r.CourseName,
		IsPrivate:  r.IsPrivate,
		IsReady:    r.IsReady,
		JoinLocked: r.JoinLocked,
		Status:     string(r.Status()),
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		EndTime:    r.EndTime,
	}
}

// ToModel converts back to a model.Room
func (r Room) ToModel() *model.Room {
	return &model.Room{
		ID:         model.RoomID(r.ID),
		Code:       model.RoomCode(r.Code),
		AdminID:    model.PlayerID(r.AdminID),
		CourseID:   r.CourseID,
		CourseName: r.CourseName,
		IsPrivate:  r.IsPrivate,
		IsReady:    r.IsReady,
		JoinLocked: r.JoinLocked,
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		EndTime:    r.EndTime,
	}
}

// RoomsFromModel converts a room list
func RoomsFromModel(rooms []*model.Room) []Room {
	out := make([]Room, len(rooms))
	for i, r := range rooms {
		out[i] = RoomFromModel(r)
	}
	return out
}

// Member represents a room membership with its progress
type Member struct {
	PlayerID       string          `json:"player_id"`
	RoomID         string          `json:"battle_room_id"`
	DisplayName    string          `json:"display_name"`
	Progress       *model.Snapshot `json:"progress"`
	Score          int             `json:"score"`
	LastProgressAt *time.Time      `json:"last_progress_at"`
	JoinedAt       time.Time       `json:"joined_at"`
}

// MemberFromModel converts a model.Member
func MemberFromModel(m *model.Member) Member {
	return Member{
		PlayerID:       string(m.PlayerID),
		RoomID:         string(m.RoomID),
		DisplayName:    m.DisplayName,
		Progress:       m.Progress,
		Score:          m.Score,
		LastProgressAt: m.LastProgressAt,
		JoinedAt:       m.JoinedAt,
	}
}

// ToModel converts back to a model.Member
func (m Member) ToModel() *model.Member {
	return &model.Member{
		PlayerID:       model.PlayerID(m.PlayerID),
		RoomID:         model.RoomID(m.RoomID),
		DisplayName:    m.DisplayName,
		Progress:       m.Progress,
		Score:          m.Score,
		LastProgressAt: m.LastProgressAt,
		JoinedAt:       m.JoinedAt,
	}
}

// MembersFromModel converts a member list
func MembersFromModel(members []*model.Member) []Member {
	out := make([]Member, len(members))
	for i, m := range members {
		out[i] = MemberFromModel(m)
	}
	return out
}

// ChatMessage represents a room chat message
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"battle_room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessageFromModel converts a model.ChatMessage
func ChatMessageFromModel(m *model.ChatMessage) ChatMessage {
	return ChatMessage{
		ID:        string(m.ID),
		RoomID:    string(m.RoomID),
		SenderID:  string(m.SenderID),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// ToModel converts back to a model.ChatMessage
func (m ChatMessage) ToModel() *model.ChatMessage {
	return &model.ChatMessage{
		ID:        model.MessageID(m.ID),
		RoomID:    model.RoomID(m.RoomID),
		SenderID:  model.PlayerID(m.SenderID),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// ChatMessagesFromModel converts a message list
func ChatMessagesFromModel(messages []*model.ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = ChatMessageFromModel(m)
	}
	return out
}

// Profile represents a player's win/loss record
type Profile struct {
	PlayerID string `json:"player_id"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

// ProfileFromModel converts a model.Profile
func ProfileFromModel(p *model.Profile) Profile {
	return Profile{PlayerID: string(p.PlayerID), Wins: p.Wins, Losses: p.Losses}
}

// FinishResult is the response for finishing a room
type FinishResult struct {
	Room     Room     `json:"room"`
	Ranking  []Member `json:"ranking"`
	WinnerID *string  `json:"winner_id"`
}

// FinishResultFromService converts a room.FinishResult
func FinishResultFromService(r *room.FinishResult) FinishResult {
	out := FinishResult{
		Room:    RoomFromModel(r.Room),
		Ranking: MembersFromModel(r.Ranking),
	}
	if r.Winner != nil {
		id := string(r.Winner.PlayerID)
		out.WinnerID = &id
	}
	return out
}

// ChangeEvent is a store change pushed over the realtime channel
type ChangeEvent struct {
	Table   string       `json:"table"`
	Op      string       `json:"op"`
	RoomID  string       `json:"room_id"`
	At      time.Time    `json:"at"`
	Room    *Room        `json:"room,omitempty"`
	Member  *Member      `json:"member,omitempty"`
	Message *ChatMessage `json:"message,omitempty"`
}

// ChangeEventFromModel converts a model.ChangeEvent
func ChangeEventFromModel(e model.ChangeEvent) ChangeEvent {
	out := ChangeEvent{
		Table:  string(e.Table),
		Op:     string(e.Op),
		RoomID: string(e.RoomID),
		At:     e.At,
	}
	if e.Room != nil {
		r := RoomFromModel(e.Room)
		out.Room = &r
	}
	if e.Member != nil {
		m := MemberFromModel(e.Member)
		out.Member = &m
	}
	if e.Message != nil {
		m := ChatMessageFromModel(e.Message)
		out.Message = &m
	}
	return out
}

// ToModel converts back to a model.ChangeEvent
func (e ChangeEvent) ToModel() model.ChangeEvent {
	out := model.ChangeEvent{
		Table:  model.ChangeTable(e.Table),
		Op:     model.ChangeOp(e.Op),
		RoomID: model.RoomID(e.RoomID),
		At:     e.At,
	}
	if e.Room != nil {
		out.Room = e.Room.ToModel()
	}
	if e.Member != nil {
		out.Member = e.Member.ToModel()
	}
	if e.Message != nil {
		out.Message = e.Message.ToModel()
	}
	return out
}

// Realtime frame types sent by the server
const (
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameChange       = "change"
	FrameError        = "error"
)

// RealtimeFrame is a server frame on the realtime websocket
type RealtimeFrame struct {
	Type  string           `json:"type"`
	ID    string           `json:"id,omitempty"`
	Event *ChangeEvent     `json:"event,omitempty"`
	Error *apierr.APIError `json:"error,omitempty"`
}
