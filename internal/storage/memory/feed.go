package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage"
)

// Buffer size for each subscriber's event channel
const subscriberBufferSize = 64

// Feed is an in-process change feed. Events are fanned out to every
// matching subscriber; a subscriber whose buffer is full misses the event.
type Feed struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	logger *slog.Logger
}

// NewFeed creates an empty in-process feed
func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		subs:   make(map[*subscription]struct{}),
		logger: logger.With(slog.String("component", "memory-feed")),
	}
}

// Ensure Feed implements the interface
var _ storage.Feed = (*Feed)(nil)

// Publish delivers the event to all matching subscribers without blocking
func (f *Feed) Publish(ctx context.Context, event model.ChangeEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dropped := 0
	for sub := range f.subs {
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		f.logger.Warn("change event dropped - subscriber buffer full",
			slog.String("table", string(event.Table)),
			slog.String("room_id", string(event.RoomID)),
			slog.Int("dropped", dropped))
	}
	return nil
}

// Subscribe registers a new subscriber for events matching filter
func (f *Feed) Subscribe(ctx context.Context, filter model.ChangeFilter) (storage.Subscription, error) {
	sub := &subscription{
		feed:   f,
		filter: filter,
		events: make(chan model.ChangeEvent, subscriberBufferSize),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	count := len(f.subs)
	f.mu.Unlock()

	f.logger.Debug("subscriber registered",
		slog.String("room_id", string(filter.RoomID)),
		slog.Int("total_subscribers", count))

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// SubscriberCount returns the number of live subscriptions
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Feed) remove(sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		close(sub.events)
	}
}

type subscription struct {
	feed   *Feed
	filter model.ChangeFilter
	events chan model.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan model.ChangeEvent {
	return s.events
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.feed.remove(s)
		close(s.done)
	})
	return nil
}
