package syncloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/progress"
	"github.com/mcoot/coursebattle/internal/storage"
)

type result interface{ isResult() }

// cycleResult is the outcome of one build → upsert → members pass
type cycleResult struct {
	roomID   model.RoomID
	progress *progress.Result
	members  []*model.Member
	stage    string
	err      error
}

func (cycleResult) isResult() {}

type membersResult struct {
	roomID  model.RoomID
	members []*model.Member
	err     error
}

func (membersResult) isResult() {}

type subscribed struct {
	roomID model.RoomID
	gen    int
	sub    storage.Subscription
	err    error
}

func (subscribed) isResult() {}

// runCycle runs on a worker goroutine and must not touch loop state
func (l *Loop) runCycle(ctx context.Context, roomID model.RoomID) cycleResult {
	res := cycleResult{roomID: roomID}

	built, err := l.source.Build(ctx, l.lessonID)
	if err != nil {
		res.stage, res.err = "build", err
		return res
	}
	res.progress = built

	if roomID == "" {
		return res
	}

	if _, err := l.rooms.UpsertProgress(ctx, roomID, built.Snapshot, built.Score); err != nil {
		res.stage, res.err = "upsert", err
		return res
	}

	members, err := l.rooms.GetMembers(ctx, roomID)
	if err != nil {
		res.stage, res.err = "members", err
		return res
	}
	res.members = members
	return res
}

func (l *Loop) handleResult(ctx context.Context, workers *sync.WaitGroup, r result) {
	switch r := r.(type) {
	case cycleResult:
		l.finishCycle(ctx, workers, r)
	case membersResult:
		l.finishRefresh(ctx, workers, r)
	case subscribed:
		l.finishSubscribe(r)
	}
}

func (l *Loop) finishCycle(ctx context.Context, workers *sync.WaitGroup, r cycleResult) {
	if l.cancelCycle != nil {
		l.cancelCycle()
		l.cancelCycle = nil
	}
	l.status.Cycles++
	l.status.LastSyncAt = l.clock.Now()
	if l.status.Visible {
		l.status.State = StateIdle
	} else {
		l.status.State = StateHidden
	}

	switch {
	case r.roomID != l.status.RoomID:
		l.status.Discarded++
		l.logger.Debug("discarding sync result for previous room",
			slog.String("room_id", string(r.roomID)))
	case errors.Is(r.err, context.Canceled):
		l.status.Discarded++
		l.logger.Debug("sync cancelled", slog.String("stage", r.stage))
	case r.err != nil:
		l.status.Errors++
		l.logger.Warn("sync failed",
			slog.String("stage", r.stage),
			slog.String("room_id", string(r.roomID)),
			slog.String("error", r.err.Error()))
		if r.progress != nil {
			l.renderer.Progress(r.progress)
		}
	default:
		l.renderer.Progress(r.progress)
		if r.roomID != "" {
			l.renderer.Members(r.roomID, r.members)
		}
		l.logger.Debug("sync complete",
			slog.Int("score", r.progress.Score),
			slog.Int("done", r.progress.Snapshot.Done),
			slog.Int("total", r.progress.Snapshot.Total))
	}

	if l.syncPending && l.status.Visible {
		l.syncPending = false
		l.startCycle(ctx, workers)
	}
}

func (l *Loop) finishRefresh(ctx context.Context, workers *sync.WaitGroup, r membersResult) {
	l.refreshing = false

	switch {
	case r.roomID != l.status.RoomID:
		l.status.Discarded++
	case r.err != nil:
		l.status.Errors++
		l.logger.Warn("members refresh failed",
			slog.String("room_id", string(r.roomID)),
			slog.String("error", r.err.Error()))
	default:
		l.renderer.Members(r.roomID, r.members)
	}

	if l.refreshPending && l.status.Visible {
		l.refreshPending = false
		l.refreshMembers(ctx, workers)
	}
}

func (l *Loop) finishSubscribe(r subscribed) {
	if r.gen == l.subGen {
		l.subscribing = false
	}
	if r.err != nil {
		if r.gen == l.subGen {
			l.status.Errors++
			l.logger.Warn("room subscription failed",
				slog.String("room_id", string(r.roomID)),
				slog.String("error", r.err.Error()))
		}
		return
	}
	if r.gen != l.subGen || r.roomID != l.status.RoomID {
		_ = r.sub.Close()
		return
	}
	l.sub = r.sub
	l.status.Subscribed = true
	l.logger.Debug("subscribed to room", slog.String("room_id", string(r.roomID)))
}

// drainResults releases subscriptions that arrived after shutdown began
func (l *Loop) drainResults() {
	for {
		select {
		case r := <-l.results:
			if s, ok := r.(subscribed); ok && s.sub != nil {
				_ = s.sub.Close()
			}
		default:
			return
		}
	}
}
