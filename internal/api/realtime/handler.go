package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mcoot/coursebattle/internal/api/apierr"
	"github.com/mcoot/coursebattle/internal/api/middleware"
	"github.com/mcoot/coursebattle/internal/api/request"
	"github.com/mcoot/coursebattle/internal/api/response"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/storage"
)

const (
	writeTimeout   = 5 * time.Second
	outboxSize     = 64
	maxMessageSize = 4096
)

// Subscriber opens change subscriptions on behalf of a caller
type Subscriber interface {
	SubscribeRoom(ctx context.Context, caller model.PlayerID, roomID model.RoomID) (storage.Subscription, error)
	SubscribeRooms(ctx context.Context, caller model.PlayerID) (storage.Subscription, error)
	SubscribeChat(ctx context.Context, caller model.PlayerID, roomID model.RoomID) (storage.Subscription, error)
}

// Handler multiplexes change subscriptions over one websocket per client
type Handler struct {
	rooms          Subscriber
	originPatterns []string
	logger         *slog.Logger
}

// NewHandler creates a realtime handler. originPatterns lists extra origins
// allowed to open a socket from a browser.
func NewHandler(rooms Subscriber, logger *slog.Logger, originPatterns ...string) *Handler {
	return &Handler{
		rooms:          rooms,
		originPatterns: originPatterns,
		logger:         logger.With(slog.String("component", "realtime")),
	}
}

// ServeHTTP handles GET /api/v1/realtime. The caller must already be
// authenticated.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PlayerID(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{
		conn:   conn,
		caller: caller,
		rooms:  h.rooms,
		logger: h.logger.With(slog.String("player_id", string(caller))),
		out:    make(chan response.RealtimeFrame, outboxSize),
		subs:   make(map[string]storage.Subscription),
		cancel: cancel,
	}
	s.logger.Info("realtime client connected")

	s.wg.Add(1)
	go s.writeLoop(ctx)
	s.readLoop(ctx)

	cancel()
	s.closeAll()
	s.wg.Wait()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	s.logger.Info("realtime client disconnected")
}

type session struct {
	conn   *websocket.Conn
	caller model.PlayerID
	rooms  Subscriber
	logger *slog.Logger
	out    chan response.RealtimeFrame
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]storage.Subscription
	wg   sync.WaitGroup
}

func (s *session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug("realtime read ended", slog.String("error", err.Error()))
				}
			}
			return
		}

		var req request.RealtimeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.sendError(ctx, "", apierr.NewInvalidRequestError("bad json"))
			continue
		}
		s.handle(ctx, req)
	}
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.out:
			payload, err := json.Marshal(frame)
			if err != nil {
				s.logger.Error("realtime encode failed", slog.String("error", err.Error()))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = s.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (s *session) handle(ctx context.Context, req request.RealtimeRequest) {
	switch req.Type {
	case request.RealtimeSubscribe:
		s.subscribe(ctx, req)
	case request.RealtimeUnsubscribe:
		s.unsubscribe(ctx, req.ID)
	default:
		s.sendError(ctx, req.ID, apierr.NewInvalidRequestError("unknown message type"))
	}
}

func (s *session) subscribe(ctx context.Context, req request.RealtimeRequest) {
	if req.ID == "" {
		s.sendError(ctx, "", apierr.NewInvalidRequestError("subscription id is required"))
		return
	}

	s.mu.Lock()
	_, taken := s.subs[req.ID]
	s.mu.Unlock()
	if taken {
		s.sendError(ctx, req.ID, apierr.NewInvalidRequestError("subscription id already in use"))
		return
	}

	roomID := model.RoomID(req.RoomID)
	var (
		sub storage.Subscription
		err error
	)
	switch req.Channel {
	case request.ChannelRoom:
		sub, err = s.rooms.SubscribeRoom(ctx, s.caller, roomID)
	case request.ChannelRooms:
		sub, err = s.rooms.SubscribeRooms(ctx, s.caller)
	case request.ChannelChat:
		sub, err = s.rooms.SubscribeChat(ctx, s.caller, roomID)
	default:
		err = apierr.NewInvalidRequestError("unknown channel")
	}
	if err != nil {
		s.sendError(ctx, req.ID, err)
		return
	}

	s.mu.Lock()
	s.subs[req.ID] = sub
	s.mu.Unlock()

	s.send(ctx, response.RealtimeFrame{Type: response.FrameSubscribed, ID: req.ID})

	s.wg.Add(1)
	go s.forward(ctx, req.ID, sub)
}

func (s *session) forward(ctx context.Context, id string, sub storage.Subscription) {
	defer s.wg.Done()
	for event := range sub.Events() {
		ev := response.ChangeEventFromModel(event)
		if !s.send(ctx, response.RealtimeFrame{Type: response.FrameChange, ID: id, Event: &ev}) {
			return
		}
	}
}

func (s *session) unsubscribe(ctx context.Context, id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	if !ok {
		s.sendError(ctx, id, apierr.NewInvalidRequestError("unknown subscription"))
		return
	}
	_ = sub.Close()
	s.send(ctx, response.RealtimeFrame{Type: response.FrameUnsubscribed, ID: id})
}

func (s *session) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subs {
		_ = sub.Close()
		delete(s.subs, id)
	}
}

func (s *session) send(ctx context.Context, frame response.RealtimeFrame) bool {
	select {
	case s.out <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *session) sendError(ctx context.Context, id string, err error) {
	desc := apierr.Describe(err)
	s.send(ctx, response.RealtimeFrame{Type: response.FrameError, ID: id, Error: &desc})
}
