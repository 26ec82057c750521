package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.StorageSuite
	mini    *miniredis.Miniredis
	storage *Storage
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})

	cfg := DefaultConfig()
	cfg.GuestPlayerTTL = time.Hour
	cfg.RoomTTL = time.Hour

	s.storage = NewWithClient(client, cfg)
	s.Storage = s.storage
	s.Ctx = context.Background()
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StorageSuite) TestGuestPlayerTTL() {
	guestPlayer := &model.Player{
		ID:      "guest-1",
		IsGuest: true,
	}
	registeredPlayer := &model.Player{
		ID:      "registered-1",
		IsGuest: false,
	}

	_ = s.storage.SavePlayer(s.Ctx, guestPlayer)
	_ = s.storage.SavePlayer(s.Ctx, registeredPlayer)

	// Check that guest has TTL and registered doesn't
	guestTTL := s.mini.TTL(playerKey(guestPlayer.ID))
	registeredTTL := s.mini.TTL(playerKey(registeredPlayer.ID))

	s.True(guestTTL > 0, "Guest player should have TTL")
	s.Equal(time.Duration(0), registeredTTL, "Registered player should not have TTL")
}

func (s *StorageSuite) TestRoomTTLSurvivesUpdate() {
	room := &model.Room{ID: "room-1", Code: "ABC123", AdminID: "admin"}
	s.Require().NoError(s.storage.CreateRoom(s.Ctx, room))

	s.True(s.mini.TTL(roomKey(room.ID)) > 0, "Room should have TTL")
	s.True(s.mini.TTL(roomCodeIndexKey(room.Code)) > 0, "Code index should have TTL")

	_, err := s.storage.UpdateRoom(s.Ctx, room.ID, func(r *model.Room) error {
		r.IsReady = true
		return nil
	})
	s.Require().NoError(err)
	s.True(s.mini.TTL(roomKey(room.ID)) > 0, "Room should keep its TTL after update")
}

func (s *StorageSuite) TestActivityRefreshesRoomTTL() {
	room := &model.Room{ID: "room-1", Code: "ABC123", AdminID: "admin"}
	s.Require().NoError(s.storage.CreateRoom(s.Ctx, room))

	s.mini.FastForward(40 * time.Minute)
	_, err := s.storage.UpdateRoom(s.Ctx, room.ID, func(r *model.Room) error {
		r.IsReady = true
		return nil
	})
	s.Require().NoError(err)
	s.Equal(time.Hour, s.mini.TTL(roomKey(room.ID)))
	s.Equal(time.Hour, s.mini.TTL(roomCodeIndexKey(room.Code)))

	s.mini.FastForward(40 * time.Minute)
	_, _, err = s.storage.UpsertProgress(s.Ctx, room.ID, "p1", model.Snapshot{Total: 2, Done: 1}, 50, time.Now())
	s.Require().NoError(err)
	s.Equal(time.Hour, s.mini.TTL(roomKey(room.ID)))
	s.Equal(time.Hour, s.mini.TTL(roomCodeIndexKey(room.Code)))
	s.Equal(time.Hour, s.mini.TTL(membersKey(room.ID)))

	// past the original expiry the room is still reachable by code
	s.mini.FastForward(40 * time.Minute)
	found, err := s.storage.GetRoomByCode(s.Ctx, room.Code)
	s.Require().NoError(err)
	s.Equal(room.ID, found.ID)
}

func (s *StorageSuite) TestMembershipDataExpiresWithRoom() {
	room := &model.Room{ID: "room-1", Code: "ABC123", AdminID: "admin"}
	s.Require().NoError(s.storage.CreateRoom(s.Ctx, room))
	s.Require().NoError(s.storage.AddMember(s.Ctx, &model.Member{RoomID: room.ID, PlayerID: "p1"}))
	s.Require().NoError(s.storage.AddMessage(s.Ctx, &model.ChatMessage{ID: "m1", RoomID: room.ID, Content: "hi"}))

	s.True(s.mini.TTL(membersKey(room.ID)) > 0)
	s.True(s.mini.TTL(messagesKey(room.ID)) > 0)
}

func (s *StorageSuite) TestProfileStoredAsCounters() {
	_, err := s.storage.IncrementProfile(s.Ctx, "p1", 2, 1)
	s.Require().NoError(err)

	s.Equal("2", s.mini.HGet(profileKey("p1"), profileWinsField))
	s.Equal("1", s.mini.HGet(profileKey("p1"), profileLossesField))
}

func (s *StorageSuite) TestListRoomsSkipsExpiredRooms() {
	room := &model.Room{ID: "room-1", Code: "ABC123", AdminID: "admin"}
	s.Require().NoError(s.storage.CreateRoom(s.Ctx, room))

	s.mini.FastForward(2 * time.Hour)

	rooms, err := s.storage.ListRoomsByAdmin(s.Ctx, "admin")
	s.Require().NoError(err)
	s.Empty(rooms)
}
