package factory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/coursebattle/internal/api/sse"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/leaderboard"
	"github.com/mcoot/coursebattle/internal/services/progress"
	"github.com/mcoot/coursebattle/internal/services/room"
	"github.com/mcoot/coursebattle/internal/services/syncloop"
	"github.com/mcoot/coursebattle/internal/testutil"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	s.Require().NoError(s.app.Close())
}

func (s *IntegrationSuite) guest(name string) model.PlayerID {
	session, err := s.app.AuthService.CreateGuestPlayer(s.ctx, name)
	s.Require().NoError(err)
	return session.PlayerID
}

func snapshotOf(done, total int) model.Snapshot {
	return model.Snapshot{CourseUUID: "course-1", Done: done, Total: total}
}

// Test: complete battle from room creation to a declared winner
func (s *IntegrationSuite) TestCompleteBattleFlow() {
	s.app.MockRandom.QueueString("ROOM01")

	admin := s.guest("Admin")
	alice := s.guest("Alice")
	bob := s.guest("Bob")

	created, err := s.app.RoomService.CreateRoom(s.ctx, admin, room.CreateParams{
		CourseID:    "c1",
		CourseName:  "Intro",
		DisplayName: "Admin",
	})
	s.Require().NoError(err)
	s.Equal(model.RoomCode("ROOM01"), created.Code)

	_, err = s.app.RoomService.JoinRoom(s.ctx, alice, "room01", "Alice")
	s.Require().NoError(err)
	_, err = s.app.RoomService.JoinRoom(s.ctx, bob, "ROOM-01", "Bob")
	s.Require().NoError(err)

	_, err = s.app.RoomService.StartRoom(s.ctx, admin, created.ID)
	s.Require().NoError(err)

	_, err = s.app.RoomService.UpsertProgress(s.ctx, alice, created.ID, snapshotOf(8, 10), 80)
	s.Require().NoError(err)
	_, err = s.app.RoomService.UpsertProgress(s.ctx, bob, created.ID, snapshotOf(19, 20), 95)
	s.Require().NoError(err)

	members, err := s.app.RoomService.GetMembers(s.ctx, admin, created.ID)
	s.Require().NoError(err)
	rows := leaderboard.Rank(members)
	s.Require().Len(rows, 3)
	s.Equal(bob, rows[0].PlayerID)
	s.Equal(alice, rows[1].PlayerID)
	s.Equal(admin, rows[2].PlayerID)

	result, err := s.app.RoomService.FinishRoom(s.ctx, admin, created.ID)
	s.Require().NoError(err)
	s.Equal(bob, result.WinnerID())
	s.NotNil(result.Room.FinishedAt)

	bobProfile, err := s.app.RoomService.GetProfile(s.ctx, alice, bob)
	s.Require().NoError(err)
	s.Equal(1, bobProfile.Wins)
	s.Equal(0, bobProfile.Losses)

	aliceProfile, err := s.app.RoomService.GetProfile(s.ctx, alice, alice)
	s.Require().NoError(err)
	s.Equal(0, aliceProfile.Wins)
	s.Equal(1, aliceProfile.Losses)

	// A finished room stays closed to newcomers
	carol := s.guest("Carol")
	_, err = s.app.RoomService.JoinRoom(s.ctx, carol, "ROOM01", "Carol")
	s.ErrorIs(err, model.ErrRoomClosed)
}

// Test: progress writes reach SSE viewers as a rendered leaderboard
func (s *IntegrationSuite) TestProgressBroadcastsLeaderboard() {
	s.app.MockRandom.QueueString("ROOM02")
	admin := s.guest("Admin")

	created, err := s.app.RoomService.CreateRoom(s.ctx, admin, room.CreateParams{CourseID: "c1", DisplayName: "Admin"})
	s.Require().NoError(err)

	hub := s.app.HubManager.GetOrCreateHub(created.ID)
	client := sse.NewClient(hub, admin)
	s.Require().True(hub.Register(client))

	// The broadcaster subscribes asynchronously
	s.Require().Eventually(func() bool {
		return s.app.MemoryFeed.SubscriberCount() > 0
	}, time.Second, 5*time.Millisecond)

	_, err = s.app.RoomService.UpsertProgress(s.ctx, admin, created.ID, snapshotOf(1, 2), 50)
	s.Require().NoError(err)

	received := s.nextEvent(client, sse.EventLeaderboard)
	s.Contains(received, "50%")
	s.Contains(received, "Admin")
}

func (s *IntegrationSuite) nextEvent(client *sse.Client, name string) string {
	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-client.Messages():
			if strings.HasPrefix(string(msg), "event: "+name+"\n") {
				return string(msg)
			}
		case <-deadline:
			s.FailNow("no " + name + " event received")
			return ""
		}
	}
}

type collectingRenderer struct {
	mu      sync.Mutex
	members [][]*model.Member
}

func (r *collectingRenderer) Progress(*progress.Result) {}
func (r *collectingRenderer) Room(*model.Room)          {}
func (r *collectingRenderer) Members(_ model.RoomID, members []*model.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append(r.members, members)
}

func (r *collectingRenderer) last() []*model.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) == 0 {
		return nil
	}
	return r.members[len(r.members)-1]
}

// Test: the sync loop pushes fetched progress into the room and renders standings
func (s *IntegrationSuite) TestSyncLoopAgainstRoomService() {
	progressAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/v1/course_progress_by_lesson/lesson-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(model.CourseProgress{
			CourseUUID: "course-1",
			Chapters: []model.ChapterProgress{{
				UUID:  "ch1",
				Title: "Basics",
				Lessons: []model.LessonProgress{
					{UUID: "l1", IsComplete: true},
					{UUID: "l2", IsComplete: true},
					{UUID: "l3", IsComplete: true},
					{UUID: "l4", IsComplete: false},
				},
			}},
		})
	}))
	defer progressAPI.Close()

	s.app.MockRandom.QueueString("ROOM03")
	admin := s.guest("Admin")
	created, err := s.app.RoomService.CreateRoom(s.ctx, admin, room.CreateParams{CourseID: "course-1", DisplayName: "Admin"})
	s.Require().NoError(err)

	source := progress.New(progress.Config{BaseURL: progressAPI.URL}, nil, testutil.NopLogger())
	renderer := &collectingRenderer{}
	loop := syncloop.New(
		syncloop.Config{Interval: time.Minute},
		syncloop.Session{LessonID: "lesson-1", RoomID: created.ID},
		source,
		s.app.RoomService.As(admin),
		renderer,
		s.app.MockClock,
		testutil.NopLogger(),
	)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go loop.Run(ctx)
	defer loop.Stop()

	s.Require().Eventually(func() bool {
		return loop.Status().Cycles >= 1
	}, 2*time.Second, 5*time.Millisecond)

	member, err := s.app.Storage.GetMember(s.ctx, created.ID, admin)
	s.Require().NoError(err)
	s.Equal(75, member.Score)
	s.Equal("Admin", member.DisplayName)
	s.Require().NotNil(member.Progress)
	s.Equal(3, member.Progress.Done)

	s.Require().Len(renderer.last(), 1)
	s.Equal(75, renderer.last()[0].Score)
}
