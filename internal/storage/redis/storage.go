package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage"
)

// ErrContention is returned when an optimistic transaction keeps losing
// races after MaxWatchRetries attempts
var ErrContention = errors.New("redis: too much contention")

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Client exposes the underlying connection so a Feed can share it
func (s *Storage) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}

	// Apply TTL only for guest players
	var ttl time.Duration
	if player.IsGuest {
		ttl = s.cfg.GuestPlayerTTL
	}
	return s.client.Set(ctx, playerKey(player.ID), data, ttl).Err()
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	var player model.Player
	if err := s.getJSON(ctx, playerKey(id), &player, model.ErrPlayerNotFound); err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	return s.client.Del(ctx, playerKey(id)).Err()
}

// Registered player operations

func (s *Storage) SaveRegisteredPlayer(ctx context.Context, rp *model.RegisteredPlayer) error {
	data, err := json.Marshal(rp)
	if err != nil {
		return err
	}

	// Use pipeline for atomic save + index update
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, registeredPlayerKey(rp.PlayerID), data, 0)
	pipe.Set(ctx, usernameIndexKey(rp.Username), string(rp.PlayerID), 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetRegisteredPlayer(ctx context.Context, playerID model.PlayerID) (*model.RegisteredPlayer, error) {
	var rp model.RegisteredPlayer
	if err := s.getJSON(ctx, registeredPlayerKey(playerID), &rp, model.ErrPlayerNotFound); err != nil {
		return nil, err
	}
	return &rp, nil
}

func (s *Storage) GetRegisteredPlayerByUsername(ctx context.Context, username string) (*model.RegisteredPlayer, error) {
	playerID, err := s.client.Get(ctx, usernameIndexKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}
	return s.GetRegisteredPlayer(ctx, model.PlayerID(playerID))
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	// The code index doubles as the uniqueness constraint
	claimed, err := s.client.SetNX(ctx, roomCodeIndexKey(room.Code), string(room.ID), s.cfg.RoomTTL).Result()
	if err != nil {
		return err
	}
	if !claimed {
		return model.ErrDuplicateRoomCode
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, roomKey(room.ID), data, s.cfg.RoomTTL)
	pipe.SAdd(ctx, adminRoomsIndexKey(room.AdminID), string(room.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.client.Del(context.WithoutCancel(ctx), roomCodeIndexKey(room.Code))
		return err
	}
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	var room model.Room
	if err := s.getJSON(ctx, roomKey(id), &room, model.ErrRoomNotFound); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Storage) GetRoomByCode(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	id, err := s.client.Get(ctx, roomCodeIndexKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoomNotFound
		}
		return nil, err
	}
	return s.GetRoom(ctx, model.RoomID(id))
}

func (s *Storage) RoomCodeExists(ctx context.Context, code model.RoomCode) (bool, error) {
	exists, err := s.client.Exists(ctx, roomCodeIndexKey(code)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, id model.RoomID, mutate func(room *model.Room) error) (*model.Room, error) {
	key := roomKey(id)
	var updated *model.Room

	err := s.watch(ctx, func(tx *redis.Tx) error {
		var current model.Room
		if err := getJSON(ctx, tx, key, &current, model.ErrRoomNotFound); err != nil {
			return err
		}

		room := current.Clone()
		if err := mutate(room); err != nil {
			return err
		}
		// id and code are immutable
		room.ID = current.ID
		room.Code = current.Code

		data, err := json.Marshal(room)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.RoomTTL)
			s.expireRoomData(ctx, pipe, roomCodeIndexKey(room.Code))
			return nil
		})
		if err != nil {
			return err
		}
		updated = room
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return err
	}

	memberIDs, err := s.client.HKeys(ctx, membersKey(id)).Result()
	if err != nil {
		return err
	}

	// Delete the room, its indexes, memberships and messages in one pipeline
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, roomKey(id), roomCodeIndexKey(room.Code), membersKey(id), messagesKey(id))
	pipe.SRem(ctx, adminRoomsIndexKey(room.AdminID), string(id))
	for _, playerID := range memberIDs {
		pipe.SRem(ctx, playerRoomsIndexKey(model.PlayerID(playerID)), string(id))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) ListRoomsByAdmin(ctx context.Context, adminID model.PlayerID) ([]*model.Room, error) {
	return s.roomsFromIndex(ctx, adminRoomsIndexKey(adminID))
}

func (s *Storage) ListRoomsByMember(ctx context.Context, playerID model.PlayerID) ([]*model.Room, error) {
	return s.roomsFromIndex(ctx, playerRoomsIndexKey(playerID))
}

func (s *Storage) roomsFromIndex(ctx context.Context, indexKey string) ([]*model.Room, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Room{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(model.RoomID(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	rooms := make([]*model.Room, 0, len(values))
	for _, val := range values {
		str, ok := val.(string)
		if !ok {
			continue // Room may have expired
		}
		var room model.Room
		if err := json.Unmarshal([]byte(str), &room); err != nil {
			continue // Skip invalid data
		}
		rooms = append(rooms, &room)
	}
	return rooms, nil
}

// Membership operations

func (s *Storage) AddMember(ctx context.Context, member *model.Member) error {
	room, err := s.requireRoom(ctx, member.RoomID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(member)
	if err != nil {
		return err
	}

	added, err := s.client.HSetNX(ctx, membersKey(member.RoomID), string(member.PlayerID), data).Result()
	if err != nil {
		return err
	}
	if !added {
		return model.ErrDuplicateMembership
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, playerRoomsIndexKey(member.PlayerID), string(member.RoomID))
	s.expireRoomData(ctx, pipe, membersKey(member.RoomID))
	s.touchRoom(ctx, pipe, room)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetMember(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) (*model.Member, error) {
	data, err := s.client.HGet(ctx, membersKey(roomID), string(playerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotMember
		}
		return nil, err
	}

	var member model.Member
	if err := json.Unmarshal(data, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *Storage) SetMemberName(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, name string) (*model.Member, error) {
	member, _, err := s.updateMember(ctx, roomID, playerID, func(member *model.Member) error {
		if member == nil {
			return model.ErrNotMember
		}
		member.DisplayName = name
		return nil
	}, time.Time{})
	return member, err
}

func (s *Storage) UpsertProgress(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, snapshot model.Snapshot, score int, at time.Time) (*model.Member, bool, error) {
	room, err := s.requireRoom(ctx, roomID)
	if err != nil {
		return nil, false, err
	}

	progress := snapshot.Clone()
	member, created, err := s.updateMember(ctx, roomID, playerID, func(member *model.Member) error {
		member.Progress = &progress
		member.Score = score
		member.LastProgressAt = &at
		return nil
	}, at)
	if err != nil {
		return nil, false, err
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, playerRoomsIndexKey(playerID), string(roomID))
	s.touchRoom(ctx, pipe, room)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	return member, created, nil
}

// updateMember read-modify-writes one membership under WATCH. When joinedAt
// is non-zero a missing membership is created with that join time; otherwise
// mutate receives nil.
func (s *Storage) updateMember(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, mutate func(member *model.Member) error, joinedAt time.Time) (*model.Member, bool, error) {
	key := membersKey(roomID)
	var updated *model.Member
	var created bool

	err := s.watch(ctx, func(tx *redis.Tx) error {
		var member *model.Member
		inserting := false
		data, err := tx.HGet(ctx, key, string(playerID)).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if !joinedAt.IsZero() {
				member = &model.Member{PlayerID: playerID, RoomID: roomID, JoinedAt: joinedAt}
				inserting = true
			}
		case err != nil:
			return err
		default:
			member = &model.Member{}
			if err := json.Unmarshal(data, member); err != nil {
				return err
			}
		}

		if err := mutate(member); err != nil {
			return err
		}

		encoded, err := json.Marshal(member)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, string(playerID), encoded)
			s.expireRoomData(ctx, pipe, key)
			return nil
		})
		if err != nil {
			return err
		}
		updated, created = member, inserting
		return nil
	}, key)
	if err != nil {
		return nil, false, err
	}
	return updated, created, nil
}

func (s *Storage) ListMembers(ctx context.Context, roomID model.RoomID) ([]*model.Member, error) {
	values, err := s.client.HVals(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	members := make([]*model.Member, 0, len(values))
	for _, val := range values {
		var member model.Member
		if err := json.Unmarshal([]byte(val), &member); err != nil {
			continue // Skip invalid data
		}
		members = append(members, &member)
	}

	// Hash order is arbitrary, restore join order
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].PlayerID < members[j].PlayerID
	})
	return members, nil
}

// Message operations

func (s *Storage) AddMessage(ctx context.Context, msg *model.ChatMessage) error {
	room, err := s.requireRoom(ctx, msg.RoomID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, messagesKey(msg.RoomID), data)
	s.expireRoomData(ctx, pipe, messagesKey(msg.RoomID))
	s.touchRoom(ctx, pipe, room)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) ListMessages(ctx context.Context, roomID model.RoomID, limit int) ([]*model.ChatMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	values, err := s.client.LRange(ctx, messagesKey(roomID), start, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]*model.ChatMessage, 0, len(values))
	for _, val := range values {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(val), &msg); err != nil {
			continue // Skip invalid data
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// Profile operations

const (
	profileWinsField   = "wins"
	profileLossesField = "losses"
)

func (s *Storage) GetProfile(ctx context.Context, playerID model.PlayerID) (*model.Profile, error) {
	fields, err := s.client.HGetAll(ctx, profileKey(playerID)).Result()
	if err != nil {
		return nil, err
	}

	profile := &model.Profile{PlayerID: playerID}
	if profile.Wins, err = parseCounter(fields[profileWinsField]); err != nil {
		return nil, err
	}
	if profile.Losses, err = parseCounter(fields[profileLossesField]); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Storage) IncrementProfile(ctx context.Context, playerID model.PlayerID, wins, losses int) (*model.Profile, error) {
	key := profileKey(playerID)

	pipe := s.client.TxPipeline()
	winsCmd := pipe.HIncrBy(ctx, key, profileWinsField, int64(wins))
	lossesCmd := pipe.HIncrBy(ctx, key, profileLossesField, int64(losses))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return &model.Profile{
		PlayerID: playerID,
		Wins:     int(winsCmd.Val()),
		Losses:   int(lossesCmd.Val()),
	}, nil
}

// Helpers

// watch runs fn as an optimistic transaction over keys, retrying when a
// watched key changes underneath it
func (s *Storage) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	retries := s.cfg.MaxWatchRetries
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContention
}

func (s *Storage) requireRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	var room model.Room
	if err := getJSON(ctx, s.client, roomKey(id), &room, model.ErrRoomNotFound); err != nil {
		return nil, err
	}
	return &room, nil
}

// touchRoom restarts the room's expiry, along with its code index
func (s *Storage) touchRoom(ctx context.Context, pipe redis.Pipeliner, room *model.Room) {
	s.expireRoomData(ctx, pipe, roomKey(room.ID))
	s.expireRoomData(ctx, pipe, roomCodeIndexKey(room.Code))
}

// expireRoomData keeps room-scoped collections alive as long as the room
func (s *Storage) expireRoomData(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.cfg.RoomTTL > 0 {
		pipe.Expire(ctx, key, s.cfg.RoomTTL)
	}
}

func (s *Storage) getJSON(ctx context.Context, key string, dest any, notFound error) error {
	return getJSON(ctx, s.client, key, dest, notFound)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON(ctx context.Context, c getter, key string, dest any, notFound error) error {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

func parseCounter(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid profile counter %q: %w", raw, err)
	}
	return n, nil
}
