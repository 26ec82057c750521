package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/testutil"
)

func newTestFeed(t *testing.T) *Feed {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFeed(client, testutil.NopLogger())
}

func awaitEvent(t *testing.T, ch <-chan model.ChangeEvent) model.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return model.ChangeEvent{}
	}
}

func TestChangePatterns(t *testing.T) {
	tests := []struct {
		name   string
		filter model.ChangeFilter
		want   []string
	}{
		{"everything", model.ChangeFilter{}, []string{"battle:changes:*:*"}},
		{"one room any table", model.ChangeFilter{RoomID: "r1"}, []string{"battle:changes:*:r1"}},
		{"room changes", model.RoomChanges("r1"), []string{"battle:changes:rooms:r1", "battle:changes:players:r1"}},
		{"all rooms", model.AllRoomChanges(), []string{"battle:changes:rooms:*", "battle:changes:players:*"}},
		{"chat", model.ChatChanges("r1"), []string{"battle:changes:messages:r1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, changePatterns(tt.filter))
		})
	}
}

func TestFeedRoundTripsEvents(t *testing.T) {
	feed := newTestFeed(t)
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, model.RoomChanges("r1"))
	require.NoError(t, err)
	defer sub.Close()

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, feed.Publish(ctx, model.ChangeEvent{Table: model.TableMessages, Op: model.OpInsert, RoomID: "r1"}))
	require.NoError(t, feed.Publish(ctx, model.ChangeEvent{Table: model.TablePlayers, Op: model.OpInsert, RoomID: "r2"}))
	require.NoError(t, feed.Publish(ctx, model.ChangeEvent{
		Table:  model.TablePlayers,
		Op:     model.OpUpdate,
		RoomID: "r1",
		At:     at,
		Member: &model.Member{PlayerID: "p1", RoomID: "r1", Score: 40},
	}))

	ev := awaitEvent(t, sub.Events())
	assert.Equal(t, model.TablePlayers, ev.Table)
	assert.Equal(t, model.OpUpdate, ev.Op)
	assert.True(t, at.Equal(ev.At))
	require.NotNil(t, ev.Member)
	assert.Equal(t, 40, ev.Member.Score)
}

func TestFeedCloseIsIdempotent(t *testing.T) {
	feed := newTestFeed(t)

	sub, err := feed.Subscribe(context.Background(), model.ChatChanges("r1"))
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	assert.NotPanics(t, func() { _ = sub.Close() })

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestFeedReleasesOnContextCancel(t *testing.T) {
	feed := newTestFeed(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := feed.Subscribe(ctx, model.ChatChanges("r1"))
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not released after cancel")
	}
	require.NoError(t, sub.Close())
}
