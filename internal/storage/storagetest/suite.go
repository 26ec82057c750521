// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage"
)

// StorageSuite runs backend-agnostic storage tests. Embed it in a backend
// suite and set Storage in SetupTest.
type StorageSuite struct {
	suite.Suite
	Storage storage.Storage
	Ctx     context.Context
}

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func (s *StorageSuite) newRoom(id, code string) *model.Room {
	return &model.Room{
		ID:         model.RoomID(id),
		Code:       model.RoomCode(code),
		AdminID:    "admin",
		CourseID:   "c1",
		CourseName: "Intro",
		IsPrivate:  true,
		CreatedAt:  baseTime,
	}
}

func (s *StorageSuite) mustCreateRoom(id, code string) *model.Room {
	room := s.newRoom(id, code)
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, room))
	return room
}

func (s *StorageSuite) mustAddMember(roomID, playerID, name string, joined time.Time) {
	s.Require().NoError(s.Storage.AddMember(s.Ctx, &model.Member{
		RoomID:      model.RoomID(roomID),
		PlayerID:    model.PlayerID(playerID),
		DisplayName: name,
		JoinedAt:    joined,
	}))
}

// Player tests

func (s *StorageSuite) TestSaveAndGetPlayer() {
	player := &model.Player{ID: "player-1", DisplayName: "Alice", CreatedAt: baseTime}
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, player))

	retrieved, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	s.Equal("Alice", retrieved.DisplayName)
}

func (s *StorageSuite) TestGetPlayerNotFound() {
	_, err := s.Storage.GetPlayer(s.Ctx, "nonexistent")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *StorageSuite) TestDeletePlayer() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, &model.Player{ID: "player-1"}))
	s.Require().NoError(s.Storage.DeletePlayer(s.Ctx, "player-1"))

	_, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *StorageSuite) TestRegisteredPlayerByUsername() {
	rp := &model.RegisteredPlayer{PlayerID: "player-1", Username: "alice", PasswordHash: "hash"}
	s.Require().NoError(s.Storage.SaveRegisteredPlayer(s.Ctx, rp))

	byName, err := s.Storage.GetRegisteredPlayerByUsername(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("player-1"), byName.PlayerID)

	_, err = s.Storage.GetRegisteredPlayerByUsername(s.Ctx, "bob")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

// Room tests

func (s *StorageSuite) TestCreateAndGetRoom() {
	s.mustCreateRoom("room-1", "ABC123")

	room, err := s.Storage.GetRoom(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("ABC123"), room.Code)
	s.Equal("Intro", room.CourseName)
	s.True(room.IsPrivate)
	s.Nil(room.StartedAt)
	s.Nil(room.FinishedAt)
	s.True(baseTime.Equal(room.CreatedAt))

	byCode, err := s.Storage.GetRoomByCode(s.Ctx, "ABC123")
	s.Require().NoError(err)
	s.Equal(model.RoomID("room-1"), byCode.ID)

	exists, err := s.Storage.RoomCodeExists(s.Ctx, "ABC123")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *StorageSuite) TestGetRoomNotFound() {
	_, err := s.Storage.GetRoom(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrRoomNotFound)

	_, err = s.Storage.GetRoomByCode(s.Ctx, "NOPE00")
	s.ErrorIs(err, model.ErrRoomNotFound)

	exists, err := s.Storage.RoomCodeExists(s.Ctx, "NOPE00")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *StorageSuite) TestCreateRoomRejectsDuplicateCode() {
	s.mustCreateRoom("room-1", "ABC123")

	err := s.Storage.CreateRoom(s.Ctx, s.newRoom("room-2", "ABC123"))
	s.ErrorIs(err, model.ErrDuplicateRoomCode)

	_, err = s.Storage.GetRoom(s.Ctx, "room-2")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *StorageSuite) TestUpdateRoomAppliesMutation() {
	s.mustCreateRoom("room-1", "ABC123")
	started := baseTime.Add(time.Minute)

	updated, err := s.Storage.UpdateRoom(s.Ctx, "room-1", func(r *model.Room) error {
		r.StartedAt = &started
		r.JoinLocked = true
		return nil
	})
	s.Require().NoError(err)
	s.True(updated.JoinLocked)

	room, err := s.Storage.GetRoom(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.True(room.JoinLocked)
	s.Require().NotNil(room.StartedAt)
	s.True(started.Equal(*room.StartedAt))
}

func (s *StorageSuite) TestUpdateRoomMutationErrorWritesNothing() {
	s.mustCreateRoom("room-1", "ABC123")
	sentinel := fmt.Errorf("refused")

	_, err := s.Storage.UpdateRoom(s.Ctx, "room-1", func(r *model.Room) error {
		r.JoinLocked = true
		return sentinel
	})
	s.ErrorIs(err, sentinel)

	room, err := s.Storage.GetRoom(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.False(room.JoinLocked)
}

func (s *StorageSuite) TestUpdateRoomNotFound() {
	_, err := s.Storage.UpdateRoom(s.Ctx, "missing", func(r *model.Room) error { return nil })
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *StorageSuite) TestConcurrentUpdateRoomOnlyOneWins() {
	s.mustCreateRoom("room-1", "ABC123")

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			finished := baseTime.Add(time.Hour)
			_, err := s.Storage.UpdateRoom(s.Ctx, "room-1", func(r *model.Room) error {
				if r.FinishedAt != nil {
					return model.ErrRoomFinished
				}
				r.FinishedAt = &finished
				return nil
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			s.ErrorIs(err, model.ErrRoomFinished)
		}
	}
	s.Equal(1, succeeded)
}

func (s *StorageSuite) TestDeleteRoomCascades() {
	s.mustCreateRoom("room-1", "ABC123")
	s.mustAddMember("room-1", "p1", "Alice", baseTime)
	s.Require().NoError(s.Storage.AddMessage(s.Ctx, &model.ChatMessage{ID: "m1", RoomID: "room-1", SenderID: "p1", Content: "hi", CreatedAt: baseTime}))

	s.Require().NoError(s.Storage.DeleteRoom(s.Ctx, "room-1"))

	_, err := s.Storage.GetRoom(s.Ctx, "room-1")
	s.ErrorIs(err, model.ErrRoomNotFound)

	exists, err := s.Storage.RoomCodeExists(s.Ctx, "ABC123")
	s.Require().NoError(err)
	s.False(exists)

	members, err := s.Storage.ListMembers(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Empty(members)

	messages, err := s.Storage.ListMessages(s.Ctx, "room-1", 10)
	s.Require().NoError(err)
	s.Empty(messages)

	rooms, err := s.Storage.ListRoomsByMember(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Empty(rooms)
}

func (s *StorageSuite) TestListRoomsByAdminAndMember() {
	s.mustCreateRoom("room-1", "AAA111")
	other := s.newRoom("room-2", "BBB222")
	other.AdminID = "someone-else"
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, other))
	s.mustAddMember("room-2", "admin", "Admin", baseTime)

	administered, err := s.Storage.ListRoomsByAdmin(s.Ctx, "admin")
	s.Require().NoError(err)
	s.Require().Len(administered, 1)
	s.Equal(model.RoomID("room-1"), administered[0].ID)

	joined, err := s.Storage.ListRoomsByMember(s.Ctx, "admin")
	s.Require().NoError(err)
	s.Require().Len(joined, 1)
	s.Equal(model.RoomID("room-2"), joined[0].ID)
}

// Membership tests

func (s *StorageSuite) TestAddMemberRejectsDuplicate() {
	s.mustCreateRoom("room-1", "ABC123")
	s.mustAddMember("room-1", "p1", "Alice", baseTime)

	err := s.Storage.AddMember(s.Ctx, &model.Member{RoomID: "room-1", PlayerID: "p1", DisplayName: "Again"})
	s.ErrorIs(err, model.ErrDuplicateMembership)

	members, err := s.Storage.ListMembers(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Len(members, 1)
	s.Equal("Alice", members[0].DisplayName)
}

func (s *StorageSuite) TestSetMemberName() {
	s.mustCreateRoom("room-1", "ABC123")
	s.mustAddMember("room-1", "p1", "Alice", baseTime)

	member, err := s.Storage.SetMemberName(s.Ctx, "room-1", "p1", "Alicia")
	s.Require().NoError(err)
	s.Equal("Alicia", member.DisplayName)

	_, err = s.Storage.SetMemberName(s.Ctx, "room-1", "p2", "Bob")
	s.ErrorIs(err, model.ErrNotMember)
}

func (s *StorageSuite) TestGetMemberNotFound() {
	s.mustCreateRoom("room-1", "ABC123")
	_, err := s.Storage.GetMember(s.Ctx, "room-1", "p1")
	s.ErrorIs(err, model.ErrNotMember)
}

func (s *StorageSuite) TestUpsertProgressUpdatesExistingRow() {
	s.mustCreateRoom("room-1", "ABC123")
	s.mustAddMember("room-1", "p1", "Alice", baseTime)

	snapshot := model.Snapshot{CourseUUID: "c1", Total: 4, Done: 3, Chapters: []model.ChapterSnapshot{{Title: "One", Total: 4, Done: 3}}}
	at := baseTime.Add(time.Minute)

	member, created, err := s.Storage.UpsertProgress(s.Ctx, "room-1", "p1", snapshot, 75, at)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(75, member.Score)
	s.Equal("Alice", member.DisplayName)

	later := at.Add(time.Minute)
	member, created, err = s.Storage.UpsertProgress(s.Ctx, "room-1", "p1", snapshot, 75, later)
	s.Require().NoError(err)
	s.False(created)
	s.Require().NotNil(member.LastProgressAt)
	s.True(later.Equal(*member.LastProgressAt))

	members, err := s.Storage.ListMembers(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Require().Len(members, 1)
	s.Require().NotNil(members[0].Progress)
	s.Equal(3, members[0].Progress.Done)
	s.Equal([]model.ChapterSnapshot{{Title: "One", Total: 4, Done: 3}}, members[0].Progress.Chapters)
}

func (s *StorageSuite) TestUpsertProgressCreatesMissingRow() {
	s.mustCreateRoom("room-1", "ABC123")

	member, created, err := s.Storage.UpsertProgress(s.Ctx, "room-1", "p1", model.Snapshot{Total: 2, Done: 1}, 50, baseTime)
	s.Require().NoError(err)
	s.True(created)
	s.Equal(model.PlayerID("p1"), member.PlayerID)
	s.Empty(member.DisplayName)

	members, err := s.Storage.ListMembers(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Len(members, 1)

	_, created, err = s.Storage.UpsertProgress(s.Ctx, "room-1", "p1", model.Snapshot{Total: 2, Done: 2}, 100, baseTime)
	s.Require().NoError(err)
	s.False(created)
}

func (s *StorageSuite) TestUpsertProgressRoomNotFound() {
	_, _, err := s.Storage.UpsertProgress(s.Ctx, "missing", "p1", model.Snapshot{}, 0, baseTime)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *StorageSuite) TestListMembersInJoinOrder() {
	s.mustCreateRoom("room-1", "ABC123")
	s.mustAddMember("room-1", "p3", "Carol", baseTime)
	s.mustAddMember("room-1", "p1", "Alice", baseTime.Add(time.Second))
	s.mustAddMember("room-1", "p2", "Bob", baseTime.Add(2*time.Second))

	members, err := s.Storage.ListMembers(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Require().Len(members, 3)
	s.Equal(model.PlayerID("p3"), members[0].PlayerID)
	s.Equal(model.PlayerID("p1"), members[1].PlayerID)
	s.Equal(model.PlayerID("p2"), members[2].PlayerID)
}

// Message tests

func (s *StorageSuite) TestListMessagesReturnsLatestOldestFirst() {
	s.mustCreateRoom("room-1", "ABC123")
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.Storage.AddMessage(s.Ctx, &model.ChatMessage{
			ID:        model.MessageID(fmt.Sprintf("m%d", i)),
			RoomID:    "room-1",
			SenderID:  "p1",
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: baseTime.Add(time.Duration(i) * time.Second),
		}))
	}

	messages, err := s.Storage.ListMessages(s.Ctx, "room-1", 3)
	s.Require().NoError(err)
	s.Require().Len(messages, 3)
	s.Equal("message 2", messages[0].Content)
	s.Equal("message 4", messages[2].Content)
}

func (s *StorageSuite) TestAddMessageRoomNotFound() {
	err := s.Storage.AddMessage(s.Ctx, &model.ChatMessage{ID: "m1", RoomID: "missing", Content: "hi"})
	s.ErrorIs(err, model.ErrRoomNotFound)
}

// Profile tests

func (s *StorageSuite) TestProfileDefaultsToZero() {
	profile, err := s.Storage.GetProfile(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Equal(0, profile.Wins)
	s.Equal(0, profile.Losses)
}

func (s *StorageSuite) TestConcurrentProfileIncrementsAreNotLost() {
	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Storage.IncrementProfile(s.Ctx, "p1", 1, 2)
			s.NoError(err)
		}()
	}
	wg.Wait()

	profile, err := s.Storage.GetProfile(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Equal(workers, profile.Wins)
	s.Equal(2*workers, profile.Losses)
}
