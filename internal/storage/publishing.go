package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcoot/coursebattle/internal/dependencies/clock"
	"github.com/mcoot/coursebattle/internal/model"
)

// publishingStorage decorates a Storage so that every committed room,
// membership and message mutation is published to a Feed
type publishingStorage struct {
	Storage
	feed   Feed
	clock  clock.Clock
	logger *slog.Logger
}

// WithChangeFeed wraps store so successful mutations are published to feed.
// Publish failures are logged; the mutation has already been committed.
func WithChangeFeed(store Storage, feed Feed, clk clock.Clock, logger *slog.Logger) Storage {
	return &publishingStorage{
		Storage: store,
		feed:    feed,
		clock:   clk,
		logger:  logger.With(slog.String("component", "change-feed")),
	}
}

func (s *publishingStorage) CreateRoom(ctx context.Context, room *model.Room) error {
	if err := s.Storage.CreateRoom(ctx, room); err != nil {
		return err
	}
	s.publish(ctx, model.ChangeEvent{Table: model.TableRooms, Op: model.OpInsert, RoomID: room.ID, Room: room.Clone()})
	return nil
}

func (s *publishingStorage) UpdateRoom(ctx context.Context, id model.RoomID, mutate func(room *model.Room) error) (*model.Room, error) {
	room, err := s.Storage.UpdateRoom(ctx, id, mutate)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.ChangeEvent{Table: model.TableRooms, Op: model.OpUpdate, RoomID: id, Room: room.Clone()})
	return room, nil
}

func (s *publishingStorage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	if err := s.Storage.DeleteRoom(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, model.ChangeEvent{Table: model.TableRooms, Op: model.OpDelete, RoomID: id})
	return nil
}

func (s *publishingStorage) AddMember(ctx context.Context, member *model.Member) error {
	if err := s.Storage.AddMember(ctx, member); err != nil {
		return err
	}
	s.publish(ctx, model.ChangeEvent{Table: model.TablePlayers, Op: model.OpInsert, RoomID: member.RoomID, Member: member.Clone()})
	return nil
}

func (s *publishingStorage) SetMemberName(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, name string) (*model.Member, error) {
	member, err := s.Storage.SetMemberName(ctx, roomID, playerID, name)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.ChangeEvent{Table: model.TablePlayers, Op: model.OpUpdate, RoomID: roomID, Member: member.Clone()})
	return member, nil
}

func (s *publishingStorage) UpsertProgress(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, snapshot model.Snapshot, score int, at time.Time) (*model.Member, bool, error) {
	member, created, err := s.Storage.UpsertProgress(ctx, roomID, playerID, snapshot, score, at)
	if err != nil {
		return nil, false, err
	}
	op := model.OpUpdate
	if created {
		op = model.OpInsert
	}
	s.publish(ctx, model.ChangeEvent{Table: model.TablePlayers, Op: op, RoomID: roomID, Member: member.Clone()})
	return member, created, nil
}

func (s *publishingStorage) AddMessage(ctx context.Context, msg *model.ChatMessage) error {
	if err := s.Storage.AddMessage(ctx, msg); err != nil {
		return err
	}
	m := *msg
	s.publish(ctx, model.ChangeEvent{Table: model.TableMessages, Op: model.OpInsert, RoomID: msg.RoomID, Message: &m})
	return nil
}

func (s *publishingStorage) publish(ctx context.Context, event model.ChangeEvent) {
	event.At = s.clock.Now()
	if err := s.feed.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("failed to publish change",
			slog.String("table", string(event.Table)),
			slog.String("op", string(event.Op)),
			slog.String("room_id", string(event.RoomID)),
			slog.String("error", err.Error()))
	}
}
