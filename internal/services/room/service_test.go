package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/coursebattle/internal/dependencies/mocks"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage"
	"github.com/mcoot/coursebattle/internal/storage/memory"
	"github.com/mcoot/coursebattle/internal/testutil"
)

const (
	admin model.PlayerID = "admin-player"
	alice model.PlayerID = "alice-player"
	bob   model.PlayerID = "bob-player"
)

type ServiceSuite struct {
	suite.Suite
	storage storage.Storage
	feed    *memory.Feed
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.feed = memory.NewFeed(logger)
	s.storage = storage.WithChangeFeed(memory.New(), s.feed, s.clock, logger)
	s.service = New(s.storage, s.feed, s.clock, s.random, logger)
	s.ctx = context.Background()
}

func (s *ServiceSuite) createRoom(code string) *model.Room {
	s.random.QueueString(code)
	room, err := s.service.CreateRoom(s.ctx, admin, CreateParams{
		CourseID:    "c1",
		CourseName:  "Intro",
		IsPrivate:   true,
		DisplayName: "Admin",
	})
	s.Require().NoError(err)
	return room
}

func (s *ServiceSuite) memberCount(roomID model.RoomID) int {
	members, err := s.service.GetMembers(s.ctx, admin, roomID)
	s.Require().NoError(err)
	return len(members)
}

// CreateRoom tests

func (s *ServiceSuite) TestCreateRoomScenario() {
	room := s.createRoom("ABC234")

	s.Len(string(room.Code), model.RoomCodeLength)
	s.Equal(model.RoomCode("ABC234"), room.Code)
	s.Equal(admin, room.AdminID)
	s.Equal("c1", room.CourseID)
	s.Equal("Intro", room.CourseName)
	s.True(room.IsPrivate)
	s.Nil(room.StartedAt)
	s.Nil(room.FinishedAt)
	s.Equal(1, s.memberCount(room.ID))
}

func (s *ServiceSuite) TestCreateRoomRetriesTakenCode() {
	s.createRoom("AAAAAA")

	s.random.QueueString("AAAAAA", "BBBBBB")
	room, err := s.service.CreateRoom(s.ctx, alice, CreateParams{CourseID: "c1"})
	s.Require().NoError(err)
	s.Equal(model.RoomCode("BBBBBB"), room.Code)
}

func (s *ServiceSuite) TestCreateRoomGivesUpAfterRepeatedCollisions() {
	s.createRoom("AAAAAA")

	for i := 0; i < maxCodeAttempts; i++ {
		s.random.QueueString("AAAAAA")
	}
	_, err := s.service.CreateRoom(s.ctx, alice, CreateParams{CourseID: "c1"})
	s.ErrorIs(err, model.ErrRoomCodeUnavailable)
}

func (s *ServiceSuite) TestCreateRoomValidation() {
	_, err := s.service.CreateRoom(s.ctx, "", CreateParams{CourseID: "c1"})
	s.ErrorIs(err, model.ErrNotSignedIn)

	_, err = s.service.CreateRoom(s.ctx, admin, CreateParams{CourseID: "  "})
	s.ErrorIs(err, model.ErrCourseRequired)
}

// JoinRoom tests

func (s *ServiceSuite) TestJoinRoomSanitizesCode() {
	room := s.createRoom("ABC234")

	joined, err := s.service.JoinRoom(s.ctx, alice, " abc-234 ", "Alice")
	s.Require().NoError(err)
	s.Equal(room.ID, joined.ID)
	s.Equal(2, s.memberCount(room.ID))
}

func (s *ServiceSuite) TestJoinRoomTwiceUpdatesName() {
	room := s.createRoom("ABC234")

	_, err := s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	s.Require().NoError(err)
	_, err = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alicia")
	s.Require().NoError(err)

	members, err := s.service.GetMembers(s.ctx, alice, room.ID)
	s.Require().NoError(err)
	s.Len(members, 2)
	s.Equal("Alicia", members[1].DisplayName)
}

func (s *ServiceSuite) TestJoinRoomValidation() {
	s.createRoom("ABC234")

	_, err := s.service.JoinRoom(s.ctx, "", "ABC234", "Alice")
	s.ErrorIs(err, model.ErrNotSignedIn)

	_, err = s.service.JoinRoom(s.ctx, alice, "ABC234", "   ")
	s.ErrorIs(err, model.ErrDisplayNameRequired)

	_, err = s.service.JoinRoom(s.ctx, alice, "AB-2", "Alice")
	s.ErrorIs(err, model.ErrInvalidRoomCode)

	_, err = s.service.JoinRoom(s.ctx, alice, "ZZZZZZ", "Alice")
	s.ErrorIs(err, model.ErrInvalidRoomCode)
}

func (s *ServiceSuite) TestJoinClosedRoomFailsWithoutInserting() {
	started := s.createRoom("ABC234")
	_, err := s.service.StartRoom(s.ctx, admin, started.ID)
	s.Require().NoError(err)

	finished := s.createRoom("DEF567")
	_, err = s.service.FinishRoom(s.ctx, admin, finished.ID)
	s.Require().NoError(err)

	_, err = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	s.ErrorIs(err, model.ErrRoomClosed)
	_, err = s.service.JoinRoom(s.ctx, alice, "DEF567", "Alice")
	s.ErrorIs(err, model.ErrRoomClosed)

	s.Equal(1, s.memberCount(started.ID))
	s.Equal(1, s.memberCount(finished.ID))
}

// Lifecycle tests

func (s *ServiceSuite) TestStartRoomLocksAndReadies() {
	room := s.createRoom("ABC234")
	s.clock.Advance(time.Minute)

	started, err := s.service.StartRoom(s.ctx, admin, room.ID)
	s.Require().NoError(err)
	s.Require().NotNil(started.StartedAt)
	s.Equal(s.clock.Now(), *started.StartedAt)
	s.True(started.JoinLocked)
	s.True(started.IsReady)
	s.Equal(model.RoomStatusInProgress, started.Status())

	_, err = s.service.StartRoom(s.ctx, admin, room.ID)
	s.ErrorIs(err, model.ErrRoomAlreadyStarted)
}

func (s *ServiceSuite) TestStartAndFinishAreAdminOnly() {
	room := s.createRoom("ABC234")
	_, _ = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")

	_, err := s.service.StartRoom(s.ctx, alice, room.ID)
	s.ErrorIs(err, model.ErrNotAdmin)
	_, err = s.service.FinishRoom(s.ctx, alice, room.ID)
	s.ErrorIs(err, model.ErrNotAdmin)
	s.ErrorIs(s.service.DeleteRoom(s.ctx, alice, room.ID), model.ErrNotAdmin)
}

func (s *ServiceSuite) TestFinishUnstartedRoomAbandonsIt() {
	room := s.createRoom("ABC234")

	result, err := s.service.FinishRoom(s.ctx, admin, room.ID)
	s.Require().NoError(err)
	s.Equal(model.RoomStatusAbandoned, result.Room.Status())

	_, err = s.service.StartRoom(s.ctx, admin, room.ID)
	s.ErrorIs(err, model.ErrRoomFinished)
}

func (s *ServiceSuite) TestFinishRoomScenarioPicksHighestScore() {
	room := s.createRoom("ABC234")
	_, _ = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	_, _ = s.service.JoinRoom(s.ctx, bob, "ABC234", "Bob")
	_, err := s.service.StartRoom(s.ctx, admin, room.ID)
	s.Require().NoError(err)

	_, err = s.service.UpsertProgress(s.ctx, alice, room.ID, model.Snapshot{Total: 20, Done: 16}, 80)
	s.Require().NoError(err)
	_, err = s.service.UpsertProgress(s.ctx, bob, room.ID, model.Snapshot{Total: 20, Done: 19}, 95)
	s.Require().NoError(err)

	result, err := s.service.FinishRoom(s.ctx, admin, room.ID)
	s.Require().NoError(err)

	s.Equal(bob, result.WinnerID())
	s.Require().Len(result.Ranking, 3)
	s.Equal(95, result.Ranking[0].Score)
	s.Equal(80, result.Ranking[1].Score)
	s.Equal(model.RoomStatusFinished, result.Room.Status())

	bobProfile, _ := s.service.GetProfile(s.ctx, admin, bob)
	s.Equal(1, bobProfile.Wins)
	s.Equal(0, bobProfile.Losses)

	aliceProfile, _ := s.service.GetProfile(s.ctx, admin, alice)
	s.Equal(0, aliceProfile.Wins)
	s.Equal(1, aliceProfile.Losses)
}

func (s *ServiceSuite) TestFinishRoomTiesKeepJoinOrder() {
	room := s.createRoom("ABC234")
	_, _ = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	_, _ = s.service.UpsertProgress(s.ctx, admin, room.ID, model.Snapshot{Total: 2, Done: 1}, 50)
	_, _ = s.service.UpsertProgress(s.ctx, alice, room.ID, model.Snapshot{Total: 2, Done: 1}, 50)

	result, err := s.service.FinishRoom(s.ctx, admin, room.ID)
	s.Require().NoError(err)
	s.Equal(admin, result.WinnerID())
}

func (s *ServiceSuite) TestFinishRoomWithNoMembersHasNoWinner() {
	// inserted directly so the creator never becomes a member
	empty := &model.Room{ID: "empty-room", Code: "EMPTY2", AdminID: admin, CreatedAt: s.clock.Now()}
	s.Require().NoError(s.storage.CreateRoom(s.ctx, empty))

	result, err := s.service.FinishRoom(s.ctx, admin, empty.ID)
	s.Require().NoError(err)
	s.Nil(result.Winner)
	s.Empty(result.WinnerID())
	s.Empty(result.Ranking)
}

func (s *ServiceSuite) TestConcurrentFinishersCountOnce() {
	room := s.createRoom("ABC234")
	_, _ = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	_, _ = s.service.UpsertProgress(s.ctx, alice, room.ID, model.Snapshot{Total: 1, Done: 1}, 100)

	const finishers = 8
	var wg sync.WaitGroup
	errs := make(chan error, finishers)
	for i := 0; i < finishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.FinishRoom(s.ctx, admin, room.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.ErrorIs(err, model.ErrRoomFinished)
	}
	s.Equal(1, succeeded)

	aliceProfile, _ := s.service.GetProfile(s.ctx, admin, alice)
	s.Equal(1, aliceProfile.Wins)
	adminProfile, _ := s.service.GetProfile(s.ctx, admin, admin)
	s.Equal(1, adminProfile.Losses)
}

// flakyMembers fails the next ListMembers call once
type flakyMembers struct {
	storage.Storage
	mu   sync.Mutex
	fail bool
}

func (f *flakyMembers) ListMembers(ctx context.Context, roomID model.RoomID) ([]*model.Member, error) {
	f.mu.Lock()
	fail := f.fail
	f.fail = false
	f.mu.Unlock()
	if fail {
		return nil, errors.New("transient read failure")
	}
	return f.Storage.ListMembers(ctx, roomID)
}

func (s *ServiceSuite) TestFinishRoomRetryAfterReadFailureRecordsResults() {
	room := s.createRoom("ABC234")
	_, _ = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	_, err := s.service.StartRoom(s.ctx, admin, room.ID)
	s.Require().NoError(err)
	_, _ = s.service.UpsertProgress(s.ctx, alice, room.ID, model.Snapshot{Total: 4, Done: 3}, 75)

	flaky := &flakyMembers{Storage: s.storage, fail: true}
	service := New(flaky, s.feed, s.clock, s.random, testutil.NopLogger())

	_, err = service.FinishRoom(s.ctx, admin, room.ID)
	s.Require().Error(err)

	stillOpen, err := s.storage.GetRoom(s.ctx, room.ID)
	s.Require().NoError(err)
	s.False(stillOpen.IsFinished())

	result, err := service.FinishRoom(s.ctx, admin, room.ID)
	s.Require().NoError(err)
	s.Equal(alice, result.WinnerID())

	aliceProfile, _ := s.service.GetProfile(s.ctx, admin, alice)
	s.Equal(1, aliceProfile.Wins)
	adminProfile, _ := s.service.GetProfile(s.ctx, admin, admin)
	s.Equal(1, adminProfile.Losses)
}

func (s *ServiceSuite) TestDeleteRoomCascades() {
	room := s.createRoom("ABC234")
	_, err := s.service.SendChat(s.ctx, admin, room.ID, "hello")
	s.Require().NoError(err)

	s.Require().NoError(s.service.DeleteRoom(s.ctx, admin, room.ID))

	_, err = s.service.GetRoom(s.ctx, admin, room.ID)
	s.ErrorIs(err, model.ErrRoomNotFound)
	_, err = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	s.ErrorIs(err, model.ErrInvalidRoomCode)
}

// ListMyRooms tests

func (s *ServiceSuite) TestListMyRoomsNewestFirstWithoutDuplicates() {
	first := s.createRoom("AAAAAA")
	s.clock.Advance(time.Minute)

	s.random.QueueString("BBBBBB")
	second, err := s.service.CreateRoom(s.ctx, alice, CreateParams{CourseID: "c2"})
	s.Require().NoError(err)
	_, err = s.service.JoinRoom(s.ctx, admin, "BBBBBB", "Admin")
	s.Require().NoError(err)

	rooms, err := s.service.ListMyRooms(s.ctx, admin)
	s.Require().NoError(err)
	s.Require().Len(rooms, 2)
	s.Equal(second.ID, rooms[0].ID)
	s.Equal(first.ID, rooms[1].ID)
}

// Progress tests

func (s *ServiceSuite) TestUpsertProgressPreservesDisplayName() {
	room := s.createRoom("ABC234")
	_, _ = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	s.clock.Advance(time.Minute)

	member, err := s.service.UpsertProgress(s.ctx, alice, room.ID, model.Snapshot{CourseUUID: "c1", Total: 4, Done: 1}, 25)
	s.Require().NoError(err)
	s.Equal("Alice", member.DisplayName)
	s.Equal(25, member.Score)
	s.Require().NotNil(member.LastProgressAt)
	s.Equal(s.clock.Now(), *member.LastProgressAt)

	s.Equal(2, s.memberCount(room.ID))
}

func (s *ServiceSuite) TestUpsertProgressIntoClosedRoomRequiresMembership() {
	room := s.createRoom("ABC234")
	_, _ = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	_, err := s.service.StartRoom(s.ctx, admin, room.ID)
	s.Require().NoError(err)

	_, err = s.service.UpsertProgress(s.ctx, alice, room.ID, model.Snapshot{Total: 1, Done: 1}, 100)
	s.NoError(err)

	_, err = s.service.UpsertProgress(s.ctx, bob, room.ID, model.Snapshot{Total: 1, Done: 1}, 100)
	s.ErrorIs(err, model.ErrRoomClosed)
	s.Equal(2, s.memberCount(room.ID))
}

func (s *ServiceSuite) TestUpsertProgressUnknownRoom() {
	_, err := s.service.UpsertProgress(s.ctx, alice, "missing", model.Snapshot{}, 0)
	s.ErrorIs(err, model.ErrRoomNotFound)

	_, err = s.service.UpsertProgress(s.ctx, "", "missing", model.Snapshot{}, 0)
	s.ErrorIs(err, model.ErrNotSignedIn)
}

// Chat tests

func (s *ServiceSuite) TestSendChatTrimsAndRequiresMembership() {
	room := s.createRoom("ABC234")

	_, err := s.service.SendChat(s.ctx, admin, room.ID, "   ")
	s.ErrorIs(err, model.ErrEmptyMessage)

	_, err = s.service.SendChat(s.ctx, bob, room.ID, "hi")
	s.ErrorIs(err, model.ErrNotMember)

	msg, err := s.service.SendChat(s.ctx, admin, room.ID, "  hello  ")
	s.Require().NoError(err)
	s.Equal("hello", msg.Content)
	s.Equal(admin, msg.SenderID)
	s.NotEmpty(msg.ID)
}

func (s *ServiceSuite) TestChatHistoryAscendingWithLimit() {
	room := s.createRoom("ABC234")
	for _, text := range []string{"one", "two", "three"} {
		_, err := s.service.SendChat(s.ctx, admin, room.ID, text)
		s.Require().NoError(err)
		s.clock.Advance(time.Second)
	}

	all, err := s.service.ChatHistory(s.ctx, admin, room.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("one", all[0].Content)
	s.Equal("three", all[2].Content)

	latest, err := s.service.ChatHistory(s.ctx, admin, room.ID, 2)
	s.Require().NoError(err)
	s.Require().Len(latest, 2)
	s.Equal("two", latest[0].Content)
}

// Subscription tests

func (s *ServiceSuite) TestSubscribeRoomReceivesMembershipChanges() {
	room := s.createRoom("ABC234")

	sub, err := s.service.SubscribeRoom(s.ctx, admin, room.ID)
	s.Require().NoError(err)
	defer sub.Close()

	_, err = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	s.Require().NoError(err)

	select {
	case ev := <-sub.Events():
		s.Equal(model.TablePlayers, ev.Table)
		s.Equal(model.OpInsert, ev.Op)
		s.Require().NotNil(ev.Member)
		s.Equal(alice, ev.Member.PlayerID)
	case <-time.After(time.Second):
		s.Fail("no change event")
	}
}

func (s *ServiceSuite) TestSubscribeChatOnlySeesMessages() {
	room := s.createRoom("ABC234")

	sub, err := s.service.SubscribeChat(s.ctx, admin, room.ID)
	s.Require().NoError(err)
	defer sub.Close()

	_, _ = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")
	_, err = s.service.SendChat(s.ctx, alice, room.ID, "hi")
	s.Require().NoError(err)

	select {
	case ev := <-sub.Events():
		s.Equal(model.TableMessages, ev.Table)
		s.Equal("hi", ev.Message.Content)
	case <-time.After(time.Second):
		s.Fail("no chat event")
	}
}

func (s *ServiceSuite) TestSubscribeRoomUnknownRoom() {
	_, err := s.service.SubscribeRoom(s.ctx, admin, "missing")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *ServiceSuite) TestActorActsAsPlayer() {
	room := s.createRoom("ABC234")
	_, _ = s.service.JoinRoom(s.ctx, alice, "ABC234", "Alice")

	actor := s.service.As(alice)
	member, err := actor.UpsertProgress(s.ctx, room.ID, model.Snapshot{Total: 4, Done: 4}, 100)
	s.Require().NoError(err)
	s.Equal(alice, member.PlayerID)

	members, err := actor.GetMembers(s.ctx, room.ID)
	s.Require().NoError(err)
	s.Len(members, 2)
}
