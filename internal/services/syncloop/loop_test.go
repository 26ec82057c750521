package syncloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/coursebattle/internal/dependencies/mocks"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/progress"
	"github.com/mcoot/coursebattle/internal/storage"
	"github.com/mcoot/coursebattle/internal/testutil"
)

const (
	interval = 10 * time.Second
	waitFor  = time.Second
	pollStep = 5 * time.Millisecond
)

// fakeSource returns queued errors first, then a fixed result
type fakeSource struct {
	mu    sync.Mutex
	calls int
	errs  []error
	block chan struct{}
}

func (f *fakeSource) Build(ctx context.Context, lessonID string) (*progress.Result, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &progress.Result{
		Snapshot: model.Snapshot{CourseUUID: "c1", Total: 10, Done: 4},
		Score:    40,
	}, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) setBlock(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = ch
}

type fakeSub struct {
	events chan model.ChangeEvent
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func newFakeSub() *fakeSub {
	return &fakeSub{events: make(chan model.ChangeEvent, 8)}
}

func (s *fakeSub) Events() <-chan model.ChangeEvent { return s.events }

func (s *fakeSub) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	return nil
}

func (s *fakeSub) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeRooms struct {
	mu         sync.Mutex
	upserts    []model.RoomID
	gets       int
	subscribed []model.RoomID
	subs       []*fakeSub
}

func (f *fakeRooms) UpsertProgress(ctx context.Context, roomID model.RoomID, snapshot model.Snapshot, score int) (*model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, roomID)
	return &model.Member{PlayerID: "me", RoomID: roomID, Score: score}, nil
}

func (f *fakeRooms) GetMembers(ctx context.Context, roomID model.RoomID) ([]*model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return []*model.Member{
		{PlayerID: "me", RoomID: roomID, Score: 40},
		{PlayerID: "other", RoomID: roomID, Score: 90},
	}, nil
}

func (f *fakeRooms) SubscribeRoom(ctx context.Context, roomID model.RoomID) (storage.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := newFakeSub()
	f.subscribed = append(f.subscribed, roomID)
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeRooms) counts() (upserts, gets, subscribes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts), f.gets, len(f.subscribed)
}

func (f *fakeRooms) sub(i int) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.subs) {
		return nil
	}
	return f.subs[i]
}

type membersCall struct {
	roomID  model.RoomID
	members []*model.Member
}

type fakeRenderer struct {
	mu       sync.Mutex
	progress []*progress.Result
	members  []membersCall
	rooms    []*model.Room
}

func (r *fakeRenderer) Progress(res *progress.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, res)
}

func (r *fakeRenderer) Members(roomID model.RoomID, members []*model.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append(r.members, membersCall{roomID: roomID, members: members})
}

func (r *fakeRenderer) Room(room *model.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
}

func (r *fakeRenderer) memberCalls() []membersCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]membersCall(nil), r.members...)
}

func (r *fakeRenderer) progressCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.progress)
}

func (r *fakeRenderer) roomCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

type LoopSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	source   *fakeSource
	rooms    *fakeRooms
	renderer *fakeRenderer
	loop     *Loop
	cancel   context.CancelFunc
}

func TestLoopSuite(t *testing.T) {
	suite.Run(t, new(LoopSuite))
}

func (s *LoopSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.source = &fakeSource{}
	s.rooms = &fakeRooms{}
	s.renderer = &fakeRenderer{}
}

func (s *LoopSuite) TearDownTest() {
	if s.loop != nil {
		s.loop.Stop()
		<-s.loop.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *LoopSuite) start(cfg Config, roomID model.RoomID) {
	cfg.Interval = interval
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loop = New(cfg, Session{LessonID: "lesson-1", RoomID: roomID},
		s.source, s.rooms, s.renderer, s.clock, testutil.NopLogger())
	go s.loop.Run(ctx)

	s.Eventually(func() bool { return len(s.clock.Tickers()) == 1 }, waitFor, pollStep)
}

func (s *LoopSuite) ticker() *mocks.MockTicker {
	return s.clock.Tickers()[0]
}

func (s *LoopSuite) waitCycles(n int) {
	s.Eventually(func() bool {
		st := s.loop.Status()
		return st.Cycles == n && st.State != StateSyncing
	}, waitFor, pollStep)
}

func (s *LoopSuite) waitSubscribed() {
	s.Eventually(func() bool { return s.loop.Status().Subscribed }, waitFor, pollStep)
}

func (s *LoopSuite) TestVisibleStartSyncsImmediately() {
	s.start(Config{}, "r1")
	s.waitCycles(1)
	s.waitSubscribed()

	upserts, gets, subscribes := s.rooms.counts()
	s.Equal(1, s.source.Calls())
	s.Equal(1, upserts)
	s.Equal(1, gets)
	s.Equal(1, subscribes)

	calls := s.renderer.memberCalls()
	s.Require().Len(calls, 1)
	s.Equal(model.PlayerID("me"), calls[0].members[0].PlayerID)
	s.Equal(1, s.renderer.progressCalls())

	st := s.loop.Status()
	s.Equal(StateIdle, st.State)
	s.Equal(s.clock.Now(), st.LastSyncAt)
}

func (s *LoopSuite) TestTickTriggersSync() {
	s.start(Config{}, "r1")
	s.waitCycles(1)

	s.clock.Advance(interval)
	s.waitCycles(2)

	s.clock.Advance(interval)
	s.waitCycles(3)
	s.Equal(3, s.source.Calls())
}

func (s *LoopSuite) TestHiddenLoopMakesNoNetworkCalls() {
	s.start(Config{StartHidden: true}, "r1")

	s.Equal(StateHidden, s.loop.Status().State)
	s.True(s.ticker().Stopped())

	for i := 0; i < 5; i++ {
		s.clock.Advance(interval)
	}
	s.loop.SyncNow()

	s.Never(func() bool {
		upserts, gets, subscribes := s.rooms.counts()
		return s.source.Calls() > 0 || upserts > 0 || gets > 0 || subscribes > 0
	}, 50*time.Millisecond, pollStep)

	s.loop.SetVisible(true)
	s.waitCycles(1)
	s.waitSubscribed()
	s.False(s.ticker().Stopped())
	s.Equal(1, s.source.Calls())
}

func (s *LoopSuite) TestBecomingHiddenStopsPolling() {
	s.start(Config{}, "r1")
	s.waitCycles(1)

	s.loop.SetVisible(false)
	s.Eventually(func() bool { return s.loop.Status().State == StateHidden }, waitFor, pollStep)
	s.True(s.ticker().Stopped())

	s.clock.Advance(3 * interval)
	s.Never(func() bool { return s.source.Calls() > 1 }, 50*time.Millisecond, pollStep)

	s.loop.SetVisible(true)
	s.waitCycles(2)

	s.clock.Advance(interval)
	s.waitCycles(3)
}

func (s *LoopSuite) TestPushEventsIgnoredWhileHidden() {
	s.start(Config{}, "r1")
	s.waitCycles(1)
	s.waitSubscribed()

	s.loop.SetVisible(false)
	s.Eventually(func() bool { return s.loop.Status().State == StateHidden }, waitFor, pollStep)
	s.rooms.sub(0).events <- model.ChangeEvent{Table: model.TablePlayers, Op: model.OpUpdate, RoomID: "r1"}

	s.Never(func() bool {
		_, gets, _ := s.rooms.counts()
		return gets > 1
	}, 50*time.Millisecond, pollStep)
}

func (s *LoopSuite) TestTicksSkippedWhileSyncInFlight() {
	block := make(chan struct{})
	s.source.setBlock(block)
	s.start(Config{}, "r1")

	s.Eventually(func() bool { return s.loop.Status().State == StateSyncing }, waitFor, pollStep)

	s.clock.Advance(interval)
	s.Eventually(func() bool { return s.loop.Status().Skipped == 1 }, waitFor, pollStep)
	s.Equal(1, s.source.Calls())

	close(block)
	s.waitCycles(1)
	s.Equal(1, s.source.Calls())
}

func (s *LoopSuite) TestErrorsDoNotAbortFutureCycles() {
	s.source.errs = []error{errors.New("progress API down")}
	s.start(Config{}, "r1")

	s.waitCycles(1)
	st := s.loop.Status()
	s.Equal(1, st.Errors)
	s.Empty(s.renderer.memberCalls())
	upserts, _, _ := s.rooms.counts()
	s.Equal(0, upserts)

	s.clock.Advance(interval)
	s.waitCycles(2)
	s.Len(s.renderer.memberCalls(), 1)
}

func (s *LoopSuite) TestMembershipPushRefreshesMembers() {
	s.start(Config{}, "r1")
	s.waitCycles(1)
	s.waitSubscribed()

	s.rooms.sub(0).events <- model.ChangeEvent{Table: model.TablePlayers, Op: model.OpUpdate, RoomID: "r1"}

	s.Eventually(func() bool { return len(s.renderer.memberCalls()) == 2 }, waitFor, pollStep)
	_, gets, _ := s.rooms.counts()
	s.Equal(2, gets)
	s.Equal(1, s.source.Calls())
}

func (s *LoopSuite) TestRoomPushIsForwarded() {
	s.start(Config{}, "r1")
	s.waitSubscribed()

	now := s.clock.Now()
	s.rooms.sub(0).events <- model.ChangeEvent{
		Table:  model.TableRooms,
		Op:     model.OpUpdate,
		RoomID: "r1",
		Room:   &model.Room{ID: "r1", StartedAt: &now},
	}

	s.Eventually(func() bool { return s.renderer.roomCalls() == 1 }, waitFor, pollStep)
}

func (s *LoopSuite) TestRoomChangeResubscribesAndDiscardsStaleResults() {
	s.start(Config{}, "r1")
	s.waitCycles(1)
	s.waitSubscribed()

	block := make(chan struct{})
	s.source.setBlock(block)
	s.loop.SyncNow()
	s.Eventually(func() bool { return s.loop.Status().State == StateSyncing }, waitFor, pollStep)

	s.loop.SetRoom("r2")
	s.Eventually(func() bool { return s.rooms.sub(0).Closed() }, waitFor, pollStep)

	close(block)
	s.waitCycles(3)

	st := s.loop.Status()
	s.Equal(model.RoomID("r2"), st.RoomID)
	s.Equal(1, st.Discarded)

	calls := s.renderer.memberCalls()
	s.Require().Len(calls, 2)
	s.Equal(model.RoomID("r1"), calls[0].roomID)
	s.Equal(model.RoomID("r2"), calls[1].roomID)

	s.waitSubscribed()
	s.rooms.mu.Lock()
	s.Equal([]model.RoomID{"r1", "r2"}, s.rooms.subscribed)
	s.rooms.mu.Unlock()
}

func (s *LoopSuite) TestNoRoomSyncsProgressOnly() {
	s.start(Config{}, "")
	s.waitCycles(1)

	upserts, gets, subscribes := s.rooms.counts()
	s.Equal(0, upserts)
	s.Equal(0, gets)
	s.Equal(0, subscribes)
	s.Equal(1, s.renderer.progressCalls())
	s.Empty(s.renderer.memberCalls())
}

func (s *LoopSuite) TestStopReleasesResources() {
	s.start(Config{}, "r1")
	s.waitCycles(1)
	s.waitSubscribed()

	s.loop.Stop()
	<-s.loop.Done()

	s.True(s.rooms.sub(0).Closed())
	s.True(s.ticker().Stopped())
	s.Equal(StateStopped, s.loop.Status().State)

	// second stop is a no-op
	s.loop.Stop()
}

func (s *LoopSuite) TestContextCancelStopsLoop() {
	s.start(Config{}, "r1")
	s.waitCycles(1)

	s.cancel()

	select {
	case <-s.loop.Done():
	case <-time.After(waitFor):
		s.Fail("loop did not stop")
	}
	s.Equal(StateStopped, s.loop.Status().State)
}

func (s *LoopSuite) TestStopCancelsInFlightCycle() {
	s.source.setBlock(make(chan struct{}))
	s.start(Config{}, "r1")
	s.Eventually(func() bool { return s.loop.Status().State == StateSyncing }, waitFor, pollStep)

	s.loop.Stop()

	select {
	case <-s.loop.Done():
	case <-time.After(waitFor):
		s.Fail("in-flight cycle blocked shutdown")
	}
}

func (s *LoopSuite) TestClosedSubscriptionIsReopenedOnTick() {
	s.start(Config{}, "r1")
	s.waitCycles(1)
	s.waitSubscribed()

	close(s.rooms.sub(0).events)
	s.Eventually(func() bool { return !s.loop.Status().Subscribed }, waitFor, pollStep)

	s.clock.Advance(interval)
	s.waitSubscribed()

	_, _, subscribes := s.rooms.counts()
	s.Equal(2, subscribes)

	s.rooms.sub(1).events <- model.ChangeEvent{Table: model.TablePlayers, Op: model.OpUpdate, RoomID: "r1"}
	s.Eventually(func() bool {
		_, gets, _ := s.rooms.counts()
		return gets == 3
	}, waitFor, pollStep)
}

func (s *LoopSuite) TestHidingCancelsInFlightCycle() {
	s.source.setBlock(make(chan struct{}))
	s.start(Config{}, "r1")
	s.Eventually(func() bool { return s.loop.Status().State == StateSyncing }, waitFor, pollStep)

	s.loop.SetVisible(false)
	s.Eventually(func() bool {
		st := s.loop.Status()
		return st.State == StateHidden && st.Cycles == 1
	}, waitFor, pollStep)

	st := s.loop.Status()
	s.Equal(1, st.Discarded)
	s.Equal(0, st.Errors)
	upserts, gets, _ := s.rooms.counts()
	s.Equal(0, upserts)
	s.Equal(0, gets)
	s.Equal(0, s.renderer.progressCalls())
}

func (s *LoopSuite) TestStatusBeforeRun() {
	loop := New(Config{StartHidden: true}, Session{LessonID: "lesson-1", RoomID: "r1"},
		s.source, s.rooms, s.renderer, s.clock, testutil.NopLogger())

	done := make(chan Status, 1)
	go func() { done <- loop.Status() }()

	select {
	case st := <-done:
		s.Equal(StateHidden, st.State)
		s.Equal(model.RoomID("r1"), st.RoomID)
		s.False(st.Visible)
	case <-time.After(waitFor):
		s.Fail("Status blocked before Run")
	}
}
