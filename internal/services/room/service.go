// Package room implements the battle room session operations: room
// lifecycle, membership, progress upserts, chat and change subscriptions.
package room

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mcoot/coursebattle/internal/dependencies/clock"
	"github.com/mcoot/coursebattle/internal/dependencies/random"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage"
)

const (
	// maxCodeAttempts bounds room code generation before giving up
	maxCodeAttempts = 10
	// MaxChatHistoryLimit caps a single chat history page
	MaxChatHistoryLimit = 500
)

// CreateParams describes a new room
type CreateParams struct {
	CourseID    string
	CourseName  string
	IsPrivate   bool
	DisplayName string
}

// FinishResult is the outcome of finishing a room
type FinishResult struct {
	Room *model.Room
	// Ranking is every member ordered by score, highest first
	Ranking []*model.Member
	// Winner is nil when the room had no members
	Winner *model.Member
}

// WinnerID returns the winning player's id, or "" when there is no winner
func (r *FinishResult) WinnerID() model.PlayerID {
	if r.Winner == nil {
		return ""
	}
	return r.Winner.PlayerID
}

// Service implements room operations against a storage backend. Every
// operation takes the calling player's id; an empty caller is rejected with
// model.ErrNotSignedIn before any storage access.
type Service struct {
	storage storage.Storage
	feed    storage.Feed
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger
}

// New creates a room Service
func New(
	storage storage.Storage,
	feed storage.Feed,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Service {
	return &Service{
		storage: storage,
		feed:    feed,
		clock:   clock,
		random:  random,
		logger:  logger.With(slog.String("component", "room")),
	}
}

// CreateRoom creates a room owned by the caller and joins the caller to it
func (s *Service) CreateRoom(ctx context.Context, caller model.PlayerID, params CreateParams) (*model.Room, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	courseID := strings.TrimSpace(params.CourseID)
	if courseID == "" {
		return nil, model.ErrCourseRequired
	}

	now := s.clock.Now()
	room := &model.Room{
		ID:         model.RoomID(uuid.NewString()),
		AdminID:    caller,
		CourseID:   courseID,
		CourseName: strings.TrimSpace(params.CourseName),
		IsPrivate:  params.IsPrivate,
		CreatedAt:  now,
	}

	if err := s.insertWithUniqueCode(ctx, room); err != nil {
		return nil, err
	}

	err := s.storage.AddMember(ctx, &model.Member{
		PlayerID:    caller,
		RoomID:      room.ID,
		DisplayName: strings.TrimSpace(params.DisplayName),
		JoinedAt:    now,
	})
	if err != nil && !errors.Is(err, model.ErrDuplicateMembership) {
		return nil, err
	}

	s.logger.Info("room created",
		slog.String("room_id", string(room.ID)),
		slog.String("code", string(room.Code)),
		slog.String("admin_id", string(caller)),
		slog.String("course_id", courseID))

	return room, nil
}

// insertWithUniqueCode assigns a fresh code and inserts the room, retrying
// when the code turns out to be taken
func (s *Service) insertWithUniqueCode(ctx context.Context, room *model.Room) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := model.RoomCode(s.random.String(model.RoomCodeLength, model.RoomCodeAlphabet))

		exists, err := s.storage.RoomCodeExists(ctx, code)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		room.Code = code
		err = s.storage.CreateRoom(ctx, room)
		if errors.Is(err, model.ErrDuplicateRoomCode) {
			continue
		}
		return err
	}
	return model.ErrRoomCodeUnavailable
}

// JoinRoom adds the caller to the room with the given code. Joining a room
// the caller already belongs to updates their display name instead.
func (s *Service) JoinRoom(ctx context.Context, caller model.PlayerID, rawCode, displayName string) (*model.Room, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, model.ErrDisplayNameRequired
	}
	code := model.SanitizeRoomCode(rawCode)
	if len(code) != model.RoomCodeLength {
		return nil, model.ErrInvalidRoomCode
	}

	room, err := s.storage.GetRoomByCode(ctx, code)
	if errors.Is(err, model.ErrRoomNotFound) {
		return nil, model.ErrInvalidRoomCode
	}
	if err != nil {
		return nil, err
	}
	if room.IsClosed() {
		return nil, model.ErrRoomClosed
	}

	err = s.storage.AddMember(ctx, &model.Member{
		PlayerID:    caller,
		RoomID:      room.ID,
		DisplayName: displayName,
		JoinedAt:    s.clock.Now(),
	})
	if errors.Is(err, model.ErrDuplicateMembership) {
		if _, err := s.storage.SetMemberName(ctx, room.ID, caller, displayName); err != nil {
			return nil, err
		}
		return room, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("player joined room",
		slog.String("room_id", string(room.ID)),
		slog.String("player_id", string(caller)))

	return room, nil
}

// UpdateDisplayName changes the caller's name within one room
func (s *Service) UpdateDisplayName(ctx context.Context, caller model.PlayerID, roomID model.RoomID, name string) (*model.Member, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.ErrDisplayNameRequired
	}
	return s.storage.SetMemberName(ctx, roomID, caller, name)
}

// ListMyRooms returns rooms the caller administers or has joined, newest first
func (s *Service) ListMyRooms(ctx context.Context, caller model.PlayerID) ([]*model.Room, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}

	administered, err := s.storage.ListRoomsByAdmin(ctx, caller)
	if err != nil {
		return nil, err
	}
	joined, err := s.storage.ListRoomsByMember(ctx, caller)
	if err != nil {
		return nil, err
	}

	byID := make(map[model.RoomID]*model.Room, len(administered)+len(joined))
	for _, r := range administered {
		byID[r.ID] = r
	}
	for _, r := range joined {
		byID[r.ID] = r
	}

	rooms := make([]*model.Room, 0, len(byID))
	for _, r := range byID {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

// GetRoom returns a room by id
func (s *Service) GetRoom(ctx context.Context, caller model.PlayerID, roomID model.RoomID) (*model.Room, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	return s.storage.GetRoom(ctx, roomID)
}

// StartRoom locks the room to new players and marks it started
func (s *Service) StartRoom(ctx context.Context, caller model.PlayerID, roomID model.RoomID) (*model.Room, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}

	now := s.clock.Now()
	room, err := s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if !r.IsAdmin(caller) {
			return model.ErrNotAdmin
		}
		if r.IsFinished() {
			return model.ErrRoomFinished
		}
		if r.IsStarted() {
			return model.ErrRoomAlreadyStarted
		}
		r.StartedAt = &now
		r.JoinLocked = true
		r.IsReady = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("room started", slog.String("room_id", string(roomID)))
	return room, nil
}

// FinishRoom ends the room, ranks its members and records wins and losses.
// Only one concurrent caller can finish a room; the rest get
// model.ErrRoomFinished. Finishing a room that never started abandons it.
func (s *Service) FinishRoom(ctx context.Context, caller model.PlayerID, roomID model.RoomID) (*FinishResult, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}

	// Ranked before the finish is committed so a failed read leaves the
	// room open for a retry.
	members, err := s.storage.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	model.SortByScore(members)

	now := s.clock.Now()
	room, err := s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if !r.IsAdmin(caller) {
			return model.ErrNotAdmin
		}
		if r.IsFinished() {
			return model.ErrRoomFinished
		}
		r.FinishedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &FinishResult{Room: room, Ranking: members}
	if len(members) > 0 {
		result.Winner = members[0]
	}

	for i, m := range members {
		wins, losses := 0, 1
		if i == 0 {
			wins, losses = 1, 0
		}
		if _, err := s.storage.IncrementProfile(ctx, m.PlayerID, wins, losses); err != nil {
			s.logger.Warn("failed to record result",
				slog.String("room_id", string(roomID)),
				slog.String("player_id", string(m.PlayerID)),
				slog.String("error", err.Error()))
		}
	}

	s.logger.Info("room finished",
		slog.String("room_id", string(roomID)),
		slog.String("status", string(room.Status())),
		slog.String("winner_id", string(result.WinnerID())),
		slog.Int("members", len(members)))

	return result, nil
}

// DeleteRoom removes a room with its memberships and messages
func (s *Service) DeleteRoom(ctx context.Context, caller model.PlayerID, roomID model.RoomID) error {
	if caller == "" {
		return model.ErrNotSignedIn
	}

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(caller) {
		return model.ErrNotAdmin
	}

	if err := s.storage.DeleteRoom(ctx, roomID); err != nil {
		return err
	}

	s.logger.Info("room deleted", slog.String("room_id", string(roomID)))
	return nil
}

// UpsertProgress records the caller's latest snapshot and score for a room.
// A closed room only accepts progress from existing members.
func (s *Service) UpsertProgress(ctx context.Context, caller model.PlayerID, roomID model.RoomID, snapshot model.Snapshot, score int) (*model.Member, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsClosed() {
		if _, err := s.storage.GetMember(ctx, roomID, caller); err != nil {
			if errors.Is(err, model.ErrNotMember) {
				return nil, model.ErrRoomClosed
			}
			return nil, err
		}
	}

	member, _, err := s.storage.UpsertProgress(ctx, roomID, caller, snapshot, score, s.clock.Now())
	return member, err
}

// GetMembers returns the room's memberships in store order
func (s *Service) GetMembers(ctx context.Context, caller model.PlayerID, roomID model.RoomID) ([]*model.Member, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	if _, err := s.storage.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.storage.ListMembers(ctx, roomID)
}

// SendChat posts a message to the room. Only members and the admin may post.
func (s *Service) SendChat(ctx context.Context, caller model.PlayerID, roomID model.RoomID, content string) (*model.ChatMessage, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, model.ErrEmptyMessage
	}

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsAdmin(caller) {
		if _, err := s.storage.GetMember(ctx, roomID, caller); err != nil {
			return nil, err
		}
	}

	msg := &model.ChatMessage{
		ID:        model.MessageID(uuid.NewString()),
		RoomID:    roomID,
		SenderID:  caller,
		Content:   content,
		CreatedAt: s.clock.Now(),
	}
	if err := s.storage.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ChatHistory returns up to limit of the room's latest messages, oldest
// first. A non-positive limit means model.DefaultChatHistoryLimit.
func (s *Service) ChatHistory(ctx context.Context, caller model.PlayerID, roomID model.RoomID, limit int) ([]*model.ChatMessage, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	if limit <= 0 {
		limit = model.DefaultChatHistoryLimit
	}
	limit = min(limit, MaxChatHistoryLimit)

	if _, err := s.storage.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.storage.ListMessages(ctx, roomID, limit)
}

// GetProfile returns a player's win/loss record
func (s *Service) GetProfile(ctx context.Context, caller, playerID model.PlayerID) (*model.Profile, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	return s.storage.GetProfile(ctx, playerID)
}

// SubscribeRoom streams room and membership changes for one room
func (s *Service) SubscribeRoom(ctx context.Context, caller model.PlayerID, roomID model.RoomID) (storage.Subscription, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	if _, err := s.storage.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx, model.RoomChanges(roomID))
}

// SubscribeRooms streams room and membership changes for every room
func (s *Service) SubscribeRooms(ctx context.Context, caller model.PlayerID) (storage.Subscription, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	return s.feed.Subscribe(ctx, model.AllRoomChanges())
}

// SubscribeChat streams new chat messages for one room
func (s *Service) SubscribeChat(ctx context.Context, caller model.PlayerID, roomID model.RoomID) (storage.Subscription, error) {
	if caller == "" {
		return nil, model.ErrNotSignedIn
	}
	if _, err := s.storage.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx, model.ChatChanges(roomID))
}

// Actor binds the service to one player, for callers such as the sync loop
// that act on behalf of a single identity
type Actor struct {
	service *Service
	player  model.PlayerID
}

// As returns an Actor for playerID
func (s *Service) As(playerID model.PlayerID) *Actor {
	return &Actor{service: s, player: playerID}
}

func (a *Actor) UpsertProgress(ctx context.Context, roomID model.RoomID, snapshot model.Snapshot, score int) (*model.Member, error) {
	return a.service.UpsertProgress(ctx, a.player, roomID, snapshot, score)
}

func (a *Actor) GetMembers(ctx context.Context, roomID model.RoomID) ([]*model.Member, error) {
	return a.service.GetMembers(ctx, a.player, roomID)
}

func (a *Actor) SubscribeRoom(ctx context.Context, roomID model.RoomID) (storage.Subscription, error) {
	return a.service.SubscribeRoom(ctx, a.player, roomID)
}
