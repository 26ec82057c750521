package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/mcoot/coursebattle/internal/model"
)

// Row types mirror the tables in migrations/. They stay private so gorm
// tags never leak into the domain model.

type playerRecord struct {
	ID          string `gorm:"primaryKey"`
	DisplayName string
	IsGuest     bool
	CreatedAt   time.Time
}

func (playerRecord) TableName() string { return "players" }

func newPlayerRecord(p *model.Player) playerRecord {
	return playerRecord{
		ID:          string(p.ID),
		DisplayName: p.DisplayName,
		IsGuest:     p.IsGuest,
		CreatedAt:   p.CreatedAt,
	}
}

func (r playerRecord) toModel() *model.Player {
	return &model.Player{
		ID:          model.PlayerID(r.ID),
		DisplayName: r.DisplayName,
		IsGuest:     r.IsGuest,
		CreatedAt:   r.CreatedAt,
	}
}

type registeredPlayerRecord struct {
	PlayerID     string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (registeredPlayerRecord) TableName() string { return "registered_players" }

func newRegisteredPlayerRecord(rp *model.RegisteredPlayer) registeredPlayerRecord {
	return registeredPlayerRecord{
		PlayerID:     string(rp.PlayerID),
		Username:     rp.Username,
		PasswordHash: rp.PasswordHash,
		CreatedAt:    rp.CreatedAt,
		UpdatedAt:    rp.UpdatedAt,
	}
}

func (r registeredPlayerRecord) toModel() *model.RegisteredPlayer {
	return &model.RegisteredPlayer{
		PlayerID:     model.PlayerID(r.PlayerID),
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type roomRecord struct {
	ID         string `gorm:"primaryKey"`
	Code       string `gorm:"uniqueIndex;size:6"`
	AdminID    string `gorm:"index"`
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

func (roomRecord) TableName() string { return "battle_rooms" }

func newRoomRecord(room *model.Room) roomRecord {
	return roomRecord{
		ID:         string(room.ID),
		Code:       string(room.Code),
		AdminID:    string(room.AdminID),
		CourseID:   room.CourseID,
		CourseName: room.CourseName,
		IsPrivate:  room.IsPrivate,
		IsReady:    room.IsReady,
		JoinLocked: room.JoinLocked,
		CreatedAt:  room.CreatedAt,
		StartedAt:  room.StartedAt,
		FinishedAt: room.FinishedAt,
		EndTime:    room.EndTime,
	}
}

func (r roomRecord) toModel() *model.Room {
	room := &model.Room{
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
	return room.Clone()
}

type memberRecord struct {
	PlayerID       string `gorm:"primaryKey"`
	BattleRoomID   string `gorm:"primaryKey"`
	DisplayName    string
	Progress       datatypes.JSON
	Score          int
	LastProgressAt *time.Time
	JoinedAt       time.Time
}

func (memberRecord) TableName() string { return "battle_players" }

func newMemberRecord(m *model.Member) (memberRecord, error) {
	progress, err := encodeProgress(m.Progress)
	if err != nil {
		return memberRecord{}, err
	}
	return memberRecord{
		PlayerID:       string(m.PlayerID),
		BattleRoomID:   string(m.RoomID),
		DisplayName:    m.DisplayName,
		Progress:       progress,
		Score:          m.Score,
		LastProgressAt: m.LastProgressAt,
		JoinedAt:       m.JoinedAt,
	}, nil
}

func (r memberRecord) toModel() (*model.Member, error) {
	member := &model.Member{
		PlayerID:       model.PlayerID(r.PlayerID),
		RoomID:         model.RoomID(r.BattleRoomID),
		DisplayName:    r.DisplayName,
		Score:          r.Score,
		LastProgressAt: r.LastProgressAt,
		JoinedAt:       r.JoinedAt,
	}
	if len(r.Progress) > 0 && string(r.Progress) != "null" {
		var snapshot model.Snapshot
		if err := json.Unmarshal(r.Progress, &snapshot); err != nil {
			return nil, err
		}
		member.Progress = &snapshot
	}
	return member.Clone(), nil
}

func encodeProgress(snapshot *model.Snapshot) (datatypes.JSON, error) {
	if snapshot == nil {
		return nil, nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

type messageRecord struct {
	ID           string `gorm:"primaryKey"`
	BattleRoomID string `gorm:"index"`
	SenderID     string
	Content      string
	CreatedAt    time.Time
}

func (messageRecord) TableName() string { return "battle_messages" }

func newMessageRecord(msg *model.ChatMessage) messageRecord {
	return messageRecord{
		ID:           string(msg.ID),
		BattleRoomID: string(msg.RoomID),
		SenderID:     string(msg.SenderID),
		Content:      msg.Content,
		CreatedAt:    msg.CreatedAt,
	}
}

func (r messageRecord) toModel() *model.ChatMessage {
	return &model.ChatMessage{
		ID:        model.MessageID(r.ID),
		RoomID:    model.RoomID(r.BattleRoomID),
		SenderID:  model.PlayerID(r.SenderID),
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

type profileRecord struct {
	PlayerID string `gorm:"primaryKey"`
	Wins     int
	Losses   int
}

func (profileRecord) TableName() string { return "profiles" }

func (r profileRecord) toModel() *model.Profile {
	return &model.Profile{
		PlayerID: model.PlayerID(r.PlayerID),
		Wins:     r.Wins,
		Losses:   r.Losses,
	}
}
