package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/testutil"
)

func receive(t *testing.T, ch <-chan model.ChangeEvent) model.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.ChangeEvent{}
	}
}

func TestFeedDeliversMatchingEvents(t *testing.T) {
	feed := NewFeed(testutil.NopLogger())
	ctx := context.Background()

	roomSub, err := feed.Subscribe(ctx, model.RoomChanges("r1"))
	require.NoError(t, err)
	defer roomSub.Close()

	chatSub, err := feed.Subscribe(ctx, model.ChatChanges("r1"))
	require.NoError(t, err)
	defer chatSub.Close()

	require.NoError(t, feed.Publish(ctx, model.ChangeEvent{Table: model.TablePlayers, Op: model.OpInsert, RoomID: "r2"}))
	require.NoError(t, feed.Publish(ctx, model.ChangeEvent{Table: model.TablePlayers, Op: model.OpInsert, RoomID: "r1"}))
	require.NoError(t, feed.Publish(ctx, model.ChangeEvent{Table: model.TableMessages, Op: model.OpInsert, RoomID: "r1"}))

	ev := receive(t, roomSub.Events())
	assert.Equal(t, model.TablePlayers, ev.Table)
	assert.Equal(t, model.RoomID("r1"), ev.RoomID)
	assert.Empty(t, roomSub.Events())

	ev = receive(t, chatSub.Events())
	assert.Equal(t, model.TableMessages, ev.Table)
}

func TestFeedCloseIsIdempotent(t *testing.T) {
	feed := NewFeed(testutil.NopLogger())

	sub, err := feed.Subscribe(context.Background(), model.AllRoomChanges())
	require.NoError(t, err)
	assert.Equal(t, 1, feed.SubscriberCount())

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, feed.SubscriberCount())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// publishing after close must not panic
	require.NoError(t, feed.Publish(context.Background(), model.ChangeEvent{Table: model.TableRooms}))
}

func TestFeedReleasesOnContextCancel(t *testing.T) {
	feed := NewFeed(testutil.NopLogger())
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := feed.Subscribe(ctx, model.AllRoomChanges())
	require.NoError(t, err)

	cancel()

	assert.Eventually(t, func() bool { return feed.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestFeedDropsForSlowSubscriber(t *testing.T) {
	feed := NewFeed(testutil.NopLogger())
	sub, err := feed.Subscribe(context.Background(), model.ChangeFilter{})
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < subscriberBufferSize+10; i++ {
		require.NoError(t, feed.Publish(context.Background(), model.ChangeEvent{Table: model.TableRooms}))
	}

	assert.Len(t, sub.Events(), subscriberBufferSize)
}
