// Package syncloop keeps a room's leaderboard in step with the local
// player's course progress. A Loop owns all of its state on one goroutine;
// network work runs on worker goroutines that report back over a channel.
package syncloop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/coursebattle/internal/dependencies/clock"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/progress"
	"github.com/mcoot/coursebattle/internal/storage"
)

// DefaultInterval is the poll period used when Config.Interval is zero
const DefaultInterval = 10 * time.Second

// ProgressSource builds the local player's snapshot for a lesson
type ProgressSource interface {
	Build(ctx context.Context, lessonID string) (*progress.Result, error)
}

// RoomClient is the subset of room operations the loop needs, bound to the
// local player
type RoomClient interface {
	UpsertProgress(ctx context.Context, roomID model.RoomID, snapshot model.Snapshot, score int) (*model.Member, error)
	GetMembers(ctx context.Context, roomID model.RoomID) ([]*model.Member, error)
	SubscribeRoom(ctx context.Context, roomID model.RoomID) (storage.Subscription, error)
}

// Renderer receives everything the loop wants shown. It is called from the
// loop goroutine and should return quickly.
type Renderer interface {
	Progress(result *progress.Result)
	Members(roomID model.RoomID, members []*model.Member)
	Room(room *model.Room)
}

// Config holds loop settings
type Config struct {
	Interval time.Duration
	// StartHidden starts the loop as if the page were not visible
	StartHidden bool
}

// Session identifies what the loop is syncing
type Session struct {
	LessonID string
	RoomID   model.RoomID
}

// State is the loop's coarse state
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateHidden  State = "hidden"
	StateStopped State = "stopped"
)

// Status is a point-in-time view of the loop
type Status struct {
	State      State
	RoomID     model.RoomID
	Visible    bool
	Subscribed bool
	Cycles     int
	Skipped    int
	Discarded  int
	Errors     int
	LastSyncAt time.Time
}

// Loop is the sync loop
type Loop struct {
	interval time.Duration
	lessonID string
	source   ProgressSource
	rooms    RoomClient
	renderer Renderer
	clock    clock.Clock
	logger   *slog.Logger

	inbox   chan msg
	results chan result
	done    chan struct{}
	once    sync.Once
	started atomic.Bool
	initial Status
	final   Status

	// owned by the loop goroutine
	status         Status
	ticker         clock.Ticker
	cancelCycle    context.CancelFunc
	syncPending    bool
	refreshing     bool
	refreshPending bool
	sub            storage.Subscription
	subscribing    bool
	subGen         int
}

// New creates a Loop. Call Run to start it.
func New(
	cfg Config,
	session Session,
	source ProgressSource,
	rooms RoomClient,
	renderer Renderer,
	clk clock.Clock,
	logger *slog.Logger,
) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	status := Status{
		State:   StateIdle,
		RoomID:  session.RoomID,
		Visible: !cfg.StartHidden,
	}
	if cfg.StartHidden {
		status.State = StateHidden
	}
	return &Loop{
		interval: cfg.Interval,
		lessonID: session.LessonID,
		source:   source,
		rooms:    rooms,
		renderer: renderer,
		clock:    clk,
		logger: logger.With(
			slog.String("component", "syncloop"),
			slog.String("lesson_id", session.LessonID)),
		inbox:   make(chan msg, 16),
		results: make(chan result, 16),
		done:    make(chan struct{}),
		initial: status,
		status:  status,
	}
}

type msg interface{ isLoopMsg() }

type setVisible struct{ visible bool }

func (setVisible) isLoopMsg() {}

type setRoom struct{ roomID model.RoomID }

func (setRoom) isLoopMsg() {}

type syncNow struct{}

func (syncNow) isLoopMsg() {}

type getStatus struct{ reply chan Status }

func (getStatus) isLoopMsg() {}

type stop struct{}

func (stop) isLoopMsg() {}

// SetVisible reports a visibility change. Becoming visible syncs at once and
// restarts the ticker; becoming hidden stops it.
func (l *Loop) SetVisible(visible bool) {
	l.send(setVisible{visible: visible})
}

// SetRoom switches the active room. An empty id leaves the loop syncing
// progress without a room.
func (l *Loop) SetRoom(roomID model.RoomID) {
	l.send(setRoom{roomID: roomID})
}

// SyncNow requests an out-of-band sync cycle
func (l *Loop) SyncNow() {
	l.send(syncNow{})
}

// Stop tears the loop down. It is safe to call more than once.
func (l *Loop) Stop() {
	l.send(stop{})
}

// Done is closed once the loop has shut down
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Status returns the loop's current status. Before Run is called it returns
// the configured starting status.
func (l *Loop) Status() Status {
	if !l.started.Load() {
		return l.initial
	}
	reply := make(chan Status, 1)
	if !l.send(getStatus{reply: reply}) {
		return l.final
	}
	select {
	case s := <-reply:
		return s
	case <-l.done:
		return l.final
	}
}

func (l *Loop) send(m msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.done:
		return false
	}
}

// Run drives the loop until ctx is cancelled or Stop is called. Worker
// goroutines are cancelled and waited for before Run returns.
func (l *Loop) Run(ctx context.Context) {
	l.started.Store(true)
	ctx, cancel := context.WithCancel(ctx)
	var workers sync.WaitGroup

	defer func() {
		cancel()
		l.teardown()
		workers.Wait()
		l.drainResults()
		l.final = l.status
		l.once.Do(func() { close(l.done) })
	}()

	l.ticker = l.clock.NewTicker(l.interval)
	if l.status.Visible {
		l.startCycle(ctx, &workers)
		l.subscribe(ctx, &workers)
	} else {
		l.ticker.Stop()
		l.status.State = StateHidden
	}

	l.logger.Info("sync loop started",
		slog.String("room_id", string(l.status.RoomID)),
		slog.Bool("visible", l.status.Visible),
		slog.Duration("interval", l.interval))

	for {
		var events <-chan model.ChangeEvent
		if l.sub != nil {
			events = l.sub.Events()
		}

		select {
		case <-ctx.Done():
			return

		case <-l.ticker.C():
			if !l.status.Visible {
				continue
			}
			if l.sub == nil && !l.subscribing {
				l.subscribe(ctx, &workers)
			}
			if l.cycleInFlight() {
				l.status.Skipped++
				l.logger.Debug("tick skipped - sync in flight")
				continue
			}
			l.startCycle(ctx, &workers)

		case ev, ok := <-events:
			if !ok {
				l.logger.Warn("room subscription closed",
					slog.String("room_id", string(l.status.RoomID)))
				l.sub = nil
				l.status.Subscribed = false
				continue
			}
			l.handleEvent(ctx, &workers, ev)

		case r := <-l.results:
			l.handleResult(ctx, &workers, r)

		case m := <-l.inbox:
			switch m := m.(type) {
			case setVisible:
				l.handleVisibility(ctx, &workers, m.visible)
			case setRoom:
				l.handleRoomChange(ctx, &workers, m.roomID)
			case syncNow:
				l.requestCycle(ctx, &workers)
			case getStatus:
				m.reply <- l.status
			case stop:
				return
			}
		}
	}
}

func (l *Loop) teardown() {
	l.ticker.Stop()
	if l.cancelCycle != nil {
		l.cancelCycle()
		l.cancelCycle = nil
	}
	l.closeSubscription()
	l.status.State = StateStopped
	l.logger.Info("sync loop stopped",
		slog.Int("cycles", l.status.Cycles),
		slog.Int("errors", l.status.Errors))
}

func (l *Loop) cycleInFlight() bool {
	return l.cancelCycle != nil
}

func (l *Loop) handleVisibility(ctx context.Context, workers *sync.WaitGroup, visible bool) {
	if visible == l.status.Visible {
		return
	}
	l.status.Visible = visible

	if !visible {
		l.ticker.Stop()
		l.syncPending = false
		l.refreshPending = false
		if l.cycleInFlight() {
			// cleared when the cancelled cycle reports back
			l.cancelCycle()
		} else {
			l.status.State = StateHidden
		}
		l.logger.Debug("hidden - polling stopped")
		return
	}

	l.logger.Debug("visible - immediate sync and polling restarted")
	l.requestCycle(ctx, workers)
	l.ticker.Reset(l.interval)
	if l.sub == nil && !l.subscribing {
		l.subscribe(ctx, workers)
	}
}

func (l *Loop) handleRoomChange(ctx context.Context, workers *sync.WaitGroup, roomID model.RoomID) {
	if roomID == l.status.RoomID {
		return
	}
	l.logger.Info("active room changed",
		slog.String("from", string(l.status.RoomID)),
		slog.String("to", string(roomID)))

	l.closeSubscription()
	l.status.RoomID = roomID
	l.refreshPending = false

	if !l.status.Visible {
		return
	}
	l.subscribe(ctx, workers)
	l.requestCycle(ctx, workers)
}

func (l *Loop) handleEvent(ctx context.Context, workers *sync.WaitGroup, ev model.ChangeEvent) {
	if ev.RoomID != l.status.RoomID || !l.status.Visible {
		return
	}
	switch ev.Table {
	case model.TablePlayers:
		l.refreshMembers(ctx, workers)
	case model.TableRooms:
		if ev.Room != nil {
			l.renderer.Room(ev.Room)
		}
	}
}

// requestCycle starts a cycle now, or queues exactly one for when the
// current cycle completes
func (l *Loop) requestCycle(ctx context.Context, workers *sync.WaitGroup) {
	if !l.status.Visible {
		return
	}
	if l.cycleInFlight() {
		l.syncPending = true
		return
	}
	l.startCycle(ctx, workers)
}

func (l *Loop) startCycle(ctx context.Context, workers *sync.WaitGroup) {
	cycleCtx, cancel := context.WithCancel(ctx)
	l.cancelCycle = cancel
	l.status.State = StateSyncing
	roomID := l.status.RoomID

	workers.Add(1)
	go func() {
		defer workers.Done()
		l.deliver(ctx, l.runCycle(cycleCtx, roomID))
	}()
}

func (l *Loop) refreshMembers(ctx context.Context, workers *sync.WaitGroup) {
	if l.status.RoomID == "" {
		return
	}
	if l.refreshing {
		l.refreshPending = true
		return
	}
	l.refreshing = true
	roomID := l.status.RoomID

	workers.Add(1)
	go func() {
		defer workers.Done()
		members, err := l.rooms.GetMembers(ctx, roomID)
		l.deliver(ctx, membersResult{roomID: roomID, members: members, err: err})
	}()
}

func (l *Loop) subscribe(ctx context.Context, workers *sync.WaitGroup) {
	if l.status.RoomID == "" {
		return
	}
	l.subGen++
	gen := l.subGen
	roomID := l.status.RoomID
	l.subscribing = true

	workers.Add(1)
	go func() {
		defer workers.Done()
		sub, err := l.rooms.SubscribeRoom(ctx, roomID)
		if !l.deliver(ctx, subscribed{roomID: roomID, gen: gen, sub: sub, err: err}) && sub != nil {
			_ = sub.Close()
		}
	}()
}

func (l *Loop) closeSubscription() {
	l.subGen++
	l.subscribing = false
	if l.sub != nil {
		_ = l.sub.Close()
		l.sub = nil
	}
	l.status.Subscribed = false
}

// deliver hands a worker result to the loop. It reports false when the loop
// has already shut down.
func (l *Loop) deliver(ctx context.Context, r result) bool {
	select {
	case l.results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
