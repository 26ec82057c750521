package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	players           map[model.PlayerID]*model.Player
	registeredPlayers map[model.PlayerID]*model.RegisteredPlayer
	usernameIndex     map[string]model.PlayerID
	rooms             map[model.RoomID]*model.Room
	codeIndex         map[model.RoomCode]model.RoomID
	members           map[model.RoomID][]*model.Member // join order
	messages          map[model.RoomID][]*model.ChatMessage
	profiles          map[model.PlayerID]*model.Profile
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		players:           make(map[model.PlayerID]*model.Player),
		registeredPlayers: make(map[model.PlayerID]*model.RegisteredPlayer),
		usernameIndex:     make(map[string]model.PlayerID),
		rooms:             make(map[model.RoomID]*model.Room),
		codeIndex:         make(map[model.RoomCode]model.RoomID),
		members:           make(map[model.RoomID][]*model.Member),
		messages:          make(map[model.RoomID][]*model.ChatMessage),
		profiles:          make(map[model.PlayerID]*model.Profile),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *player
	s.players[player.ID] = &p
	return nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	p := *player
	return &p, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, id)
	return nil
}

// Registered player operations

func (s *Storage) SaveRegisteredPlayer(ctx context.Context, rp *model.RegisteredPlayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *rp
	s.registeredPlayers[rp.PlayerID] = &r
	s.usernameIndex[rp.Username] = rp.PlayerID
	return nil
}

func (s *Storage) GetRegisteredPlayer(ctx context.Context, playerID model.PlayerID) (*model.RegisteredPlayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rp, ok := s.registeredPlayers[playerID]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	r := *rp
	return &r, nil
}

func (s *Storage) GetRegisteredPlayerByUsername(ctx context.Context, username string) (*model.RegisteredPlayer, error) {
	s.mu.RLock()
	playerID, ok := s.usernameIndex[username]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return s.GetRegisteredPlayer(ctx, playerID)
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codeIndex[room.Code]; taken {
		return model.ErrDuplicateRoomCode
	}
	s.rooms[room.ID] = room.Clone()
	s.codeIndex[room.Code] = room.ID
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *Storage) GetRoomByCode(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codeIndex[code]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return s.rooms[id].Clone(), nil
}

func (s *Storage) RoomCodeExists(ctx context.Context, code model.RoomCode) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codeIndex[code]
	return ok, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, id model.RoomID, mutate func(room *model.Room) error) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rooms[id]
	if !ok {
		return nil, model.ErrRoomNotFound
	}

	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	// id and code are immutable
	updated.ID = current.ID
	updated.Code = current.Code

	s.rooms[id] = updated
	return updated.Clone(), nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return model.ErrRoomNotFound
	}
	delete(s.codeIndex, room.Code)
	delete(s.rooms, id)
	delete(s.members, id)
	delete(s.messages, id)
	return nil
}

func (s *Storage) ListRoomsByAdmin(ctx context.Context, adminID model.PlayerID) ([]*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := []*model.Room{}
	for _, room := range s.rooms {
		if room.AdminID == adminID {
			rooms = append(rooms, room.Clone())
		}
	}
	return rooms, nil
}

func (s *Storage) ListRoomsByMember(ctx context.Context, playerID model.PlayerID) ([]*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := []*model.Room{}
	for roomID, members := range s.members {
		if indexOfMember(members, playerID) >= 0 {
			rooms = append(rooms, s.rooms[roomID].Clone())
		}
	}
	return rooms, nil
}

// Membership operations

func (s *Storage) AddMember(ctx context.Context, member *model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[member.RoomID]; !ok {
		return model.ErrRoomNotFound
	}
	if indexOfMember(s.members[member.RoomID], member.PlayerID) >= 0 {
		return model.ErrDuplicateMembership
	}
	s.members[member.RoomID] = append(s.members[member.RoomID], member.Clone())
	return nil
}

func (s *Storage) GetMember(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) (*model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.members[roomID]
	i := indexOfMember(members, playerID)
	if i < 0 {
		return nil, model.ErrNotMember
	}
	return members[i].Clone(), nil
}

func (s *Storage) SetMemberName(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, name string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.members[roomID]
	i := indexOfMember(members, playerID)
	if i < 0 {
		return nil, model.ErrNotMember
	}
	members[i].DisplayName = name
	return members[i].Clone(), nil
}

func (s *Storage) UpsertProgress(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, snapshot model.Snapshot, score int, at time.Time) (*model.Member, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, false, model.ErrRoomNotFound
	}

	progress := snapshot.Clone()
	members := s.members[roomID]
	i := indexOfMember(members, playerID)
	created := i < 0
	if created {
		member := &model.Member{
			PlayerID: playerID,
			RoomID:   roomID,
			JoinedAt: at,
		}
		s.members[roomID] = append(members, member)
		members = s.members[roomID]
		i = len(members) - 1
	}

	members[i].Progress = &progress
	members[i].Score = score
	members[i].LastProgressAt = &at
	return members[i].Clone(), created, nil
}

func (s *Storage) ListMembers(ctx context.Context, roomID model.RoomID) ([]*model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.members[roomID]
	result := make([]*model.Member, len(members))
	for i, m := range members {
		result[i] = m.Clone()
	}
	return result, nil
}

// Message operations

func (s *Storage) AddMessage(ctx context.Context, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return model.ErrRoomNotFound
	}
	m := *msg
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], &m)
	return nil
}

func (s *Storage) ListMessages(ctx context.Context, roomID model.RoomID, limit int) ([]*model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := s.messages[roomID]
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	result := make([]*model.ChatMessage, len(messages))
	for i, m := range messages {
		c := *m
		result[i] = &c
	}
	return result, nil
}

// Profile operations

func (s *Storage) GetProfile(ctx context.Context, playerID model.PlayerID) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[playerID]; ok {
		c := *p
		return &c, nil
	}
	return &model.Profile{PlayerID: playerID}, nil
}

func (s *Storage) IncrementProfile(ctx context.Context, playerID model.PlayerID, wins, losses int) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[playerID]
	if !ok {
		p = &model.Profile{PlayerID: playerID}
		s.profiles[playerID] = p
	}
	p.Wins += wins
	p.Losses += losses
	c := *p
	return &c, nil
}

func indexOfMember(members []*model.Member, playerID model.PlayerID) int {
	return slices.IndexFunc(members, func(m *model.Member) bool {
		return m.PlayerID == playerID
	})
}
