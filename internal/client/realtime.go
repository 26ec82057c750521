package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mcoot/coursebattle/internal/api/request"
	"github.com/mcoot/coursebattle/internal/api/response"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage"
)

const (
	subscriptionID = "sub"
	eventBuffer    = 64
)

// SubscribeRoom streams room and membership changes for one room
func (c *Client) SubscribeRoom(ctx context.Context, roomID model.RoomID) (storage.Subscription, error) {
	return c.subscribe(ctx, request.ChannelRoom, roomID)
}

// SubscribeRooms streams room and membership changes for every room
func (c *Client) SubscribeRooms(ctx context.Context) (storage.Subscription, error) {
	return c.subscribe(ctx, request.ChannelRooms, "")
}

// SubscribeChat streams new chat messages for one room
func (c *Client) SubscribeChat(ctx context.Context, roomID model.RoomID) (storage.Subscription, error) {
	return c.subscribe(ctx, request.ChannelChat, roomID)
}

func (c *Client) realtimeURL() string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/v1/realtime"
}

// subscribe opens a dedicated socket for one subscription and waits for the
// server to confirm it
func (c *Client) subscribe(ctx context.Context, channel string, roomID model.RoomID) (storage.Subscription, error) {
	header := http.Header{}
	c.authorize(header)

	conn, resp, err := websocket.Dial(ctx, c.realtimeURL(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, &APIError{Status: resp.StatusCode, Message: "realtime connection refused"}
		}
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	err = wsjson.Write(ctx, conn, request.RealtimeRequest{
		Type:    request.RealtimeSubscribe,
		ID:      subscriptionID,
		Channel: channel,
		RoomID:  string(roomID),
	})
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("realtime subscribe: %w", err)
	}

	var ack response.RealtimeFrame
	if err := wsjson.Read(ctx, conn, &ack); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("realtime subscribe: %w", err)
	}
	switch ack.Type {
	case response.FrameSubscribed:
	case response.FrameError:
		conn.CloseNow()
		if ack.Error != nil {
			return nil, &APIError{Code: ack.Error.Code, Message: ack.Error.Message}
		}
		return nil, fmt.Errorf("realtime subscribe rejected")
	default:
		conn.CloseNow()
		return nil, fmt.Errorf("unexpected realtime frame %q", ack.Type)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		conn:   conn,
		events: make(chan model.ChangeEvent, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.read(subCtx)
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

type subscription struct {
	conn   *websocket.Conn
	events chan model.ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan model.ChangeEvent {
	return s.events
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	<-s.done
	return nil
}

// read forwards change frames until the socket ends. It is the only writer
// to events and closes it on exit.
func (s *subscription) read(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.conn.CloseNow()

	for {
		var frame response.RealtimeFrame
		if err := wsjson.Read(ctx, s.conn, &frame); err != nil {
			return
		}
		if frame.Type != response.FrameChange || frame.Event == nil {
			continue
		}
		select {
		case s.events <- frame.Event.ToModel():
		case <-ctx.Done():
			return
		}
	}
}
