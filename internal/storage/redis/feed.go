package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage"
)

// Buffer size for each subscriber's event channel
const subscriberBufferSize = 64

// Feed publishes change events over Redis pub/sub so every server process
// sharing the Redis instance sees the same stream
type Feed struct {
	client *redis.Client
	logger *slog.Logger
}

// NewFeed creates a pub/sub change feed on client
func NewFeed(client *redis.Client, logger *slog.Logger) *Feed {
	return &Feed{
		client: client,
		logger: logger.With(slog.String("component", "redis-feed")),
	}
}

// Ensure Feed implements the interface
var _ storage.Feed = (*Feed)(nil)

// Publish sends the event on its table/room channel
func (f *Feed) Publish(ctx context.Context, event model.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, changeChannel(event.Table, event.RoomID), data).Err()
}

// Subscribe pattern-subscribes to the channels covered by filter. It returns
// once Redis has confirmed every pattern.
func (f *Feed) Subscribe(ctx context.Context, filter model.ChangeFilter) (storage.Subscription, error) {
	patterns := changePatterns(filter)
	pubsub := f.client.PSubscribe(ctx, patterns...)

	for range patterns {
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return nil, err
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		pubsub:  pubsub,
		cancel:  cancel,
		events:  make(chan model.ChangeEvent, subscriberBufferSize),
		stopped: make(chan struct{}),
	}
	go f.forward(subCtx, sub, filter)

	f.logger.Debug("subscriber registered",
		slog.String("room_id", string(filter.RoomID)),
		slog.Any("patterns", patterns))

	return sub, nil
}

func (f *Feed) forward(ctx context.Context, sub *subscription, filter model.ChangeFilter) {
	defer close(sub.stopped)
	defer close(sub.events)
	defer func() { _ = sub.pubsub.Close() }()

	messages := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event model.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				f.logger.Warn("discarding malformed change event",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()))
				continue
			}
			if !filter.Matches(event) {
				continue
			}
			select {
			case sub.events <- event:
			default:
				f.logger.Warn("change event dropped - subscriber buffer full",
					slog.String("table", string(event.Table)),
					slog.String("room_id", string(event.RoomID)))
			}
		}
	}
}

type subscription struct {
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	events  chan model.ChangeEvent
	stopped chan struct{}
	once    sync.Once
}

func (s *subscription) Events() <-chan model.ChangeEvent {
	return s.events
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.stopped
	})
	return nil
}
