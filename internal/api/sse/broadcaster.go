package sse

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mcoot/coursebattle/internal/api/response"
	"github.com/mcoot/coursebattle/internal/dependencies/clock"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/leaderboard"
	"github.com/mcoot/coursebattle/internal/storage"
)

// SSE event names
const (
	EventLeaderboard = "leaderboard"
	EventRoom        = "room"
	EventChat        = "chat"
)

// MemberLister reads a room's memberships in join order
type MemberLister interface {
	ListMembers(ctx context.Context, roomID model.RoomID) ([]*model.Member, error)
}

// Broadcaster pumps one room's change feed into its hub, rendering the
// leaderboard on membership changes
type Broadcaster struct {
	hub    *Hub
	feed   storage.Feed
	store  MemberLister
	clock  clock.Clock
	logger *slog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hub *Hub, feed storage.Feed, store MemberLister, clk clock.Clock, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hub:    hub,
		feed:   feed,
		store:  store,
		clock:  clk,
		logger: logger.With(slog.String("component", "sse-broadcaster"), slog.String("room_id", string(hub.roomID))),
	}
}

// Start subscribes to the room's changes and forwards them until the hub
// closes. The subscription is in place when Start returns.
func (b *Broadcaster) Start() error {
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := b.feed.Subscribe(ctx, model.ChangeFilter{RoomID: b.hub.roomID})
	if err != nil {
		cancel()
		return err
	}

	go func() {
		defer cancel()
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-b.hub.Done():
				return
			case event, ok := <-sub.Events():
				if !ok {
					return
				}
				b.Handle(ctx, event)
			}
		}
	}()
	return nil
}

// Handle turns one change event into an SSE broadcast
func (b *Broadcaster) Handle(ctx context.Context, event model.ChangeEvent) {
	switch event.Table {
	case model.TablePlayers:
		msg, err := b.Leaderboard(ctx)
		if err != nil {
			b.logger.Error("sse failed to render leaderboard", slog.String("error", err.Error()))
			return
		}
		b.hub.Broadcast(msg)

	case model.TableRooms:
		if event.Room == nil {
			return
		}
		b.broadcastJSON(EventRoom, response.RoomFromModel(event.Room))

	case model.TableMessages:
		if event.Message == nil {
			return
		}
		b.broadcastJSON(EventChat, response.ChatMessageFromModel(event.Message))
	}
}

// Leaderboard renders the room's current standings as a leaderboard event
func (b *Broadcaster) Leaderboard(ctx context.Context) ([]byte, error) {
	return renderLeaderboard(ctx, b.store, b.hub.roomID, "", b.clock)
}

func (b *Broadcaster) broadcastJSON(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("sse failed to encode event",
			slog.String("event", event),
			slog.String("error", err.Error()))
		return
	}
	b.hub.BroadcastEvent(event, string(data))
}

func renderLeaderboard(ctx context.Context, store MemberLister, roomID model.RoomID, viewer model.PlayerID, clk clock.Clock) ([]byte, error) {
	members, err := store.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	html, err := leaderboard.RenderHTML(ctx, leaderboard.Rank(members), viewer, clk.Now())
	if err != nil {
		return nil, err
	}
	return formatSSEMessage(EventLeaderboard, html), nil
}

// InitialLeaderboard renders the leaderboard event sent to a newly connected
// viewer, highlighting their own row
func (m *HubManager) InitialLeaderboard(ctx context.Context, roomID model.RoomID, viewer model.PlayerID) ([]byte, error) {
	return renderLeaderboard(ctx, m.store, roomID, viewer, m.clock)
}
