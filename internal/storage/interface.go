package storage

import (
	"context"
	"time"

	"github.com/mcoot/coursebattle/internal/model"
)

// Storage defines the interface for data persistence.
// Implementations must be safe for concurrent use and must return copies:
// mutating a returned value never changes stored state.
type Storage interface {
	// Player operations
	SavePlayer(ctx context.Context, player *model.Player) error
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error)
	DeletePlayer(ctx context.Context, id model.PlayerID) error

	// Registered player operations
	SaveRegisteredPlayer(ctx context.Context, rp *model.RegisteredPlayer) error
	GetRegisteredPlayer(ctx context.Context, playerID model.PlayerID) (*model.RegisteredPlayer, error)
	GetRegisteredPlayerByUsername(ctx context.Context, username string) (*model.RegisteredPlayer, error)

	// Room operations
	// CreateRoom fails with model.ErrDuplicateRoomCode if the code is taken
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error)
	GetRoomByCode(ctx context.Context, code model.RoomCode) (*model.Room, error)
	RoomCodeExists(ctx context.Context, code model.RoomCode) (bool, error)
	// UpdateRoom applies mutate to the current room atomically. If mutate
	// returns an error nothing is written and that error is returned.
	UpdateRoom(ctx context.Context, id model.RoomID, mutate func(room *model.Room) error) (*model.Room, error)
	// DeleteRoom removes the room with its memberships and messages
	DeleteRoom(ctx context.Context, id model.RoomID) error
	ListRoomsByAdmin(ctx context.Context, adminID model.PlayerID) ([]*model.Room, error)
	ListRoomsByMember(ctx context.Context, playerID model.PlayerID) ([]*model.Room, error)

	// Membership operations
	// AddMember fails with model.ErrDuplicateMembership if the pair exists
	AddMember(ctx context.Context, member *model.Member) error
	GetMember(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) (*model.Member, error)
	SetMemberName(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, name string) (*model.Member, error)
	// UpsertProgress creates or updates the (player, room) row, always
	// refreshing its timestamp and preserving the display name. created
	// reports whether the row did not exist before.
	UpsertProgress(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, snapshot model.Snapshot, score int, at time.Time) (member *model.Member, created bool, err error)
	// ListMembers returns memberships in join order
	ListMembers(ctx context.Context, roomID model.RoomID) ([]*model.Member, error)

	// Message operations
	AddMessage(ctx context.Context, msg *model.ChatMessage) error
	// ListMessages returns the most recent limit messages, oldest first
	ListMessages(ctx context.Context, roomID model.RoomID, limit int) ([]*model.ChatMessage, error)

	// Profile operations
	// GetProfile returns a zero profile for players with no record
	GetProfile(ctx context.Context, playerID model.PlayerID) (*model.Profile, error)
	// IncrementProfile atomically adds to the win and loss counters
	IncrementProfile(ctx context.Context, playerID model.PlayerID, wins, losses int) (*model.Profile, error)
}

// Feed fans committed change events out to subscribers
type Feed interface {
	Publish(ctx context.Context, event model.ChangeEvent) error
	// Subscribe registers for events matching filter. The subscription is
	// released by Close or when ctx is done.
	Subscribe(ctx context.Context, filter model.ChangeFilter) (Subscription, error)
}

// Subscription is a cancellable stream of change events
type Subscription interface {
	// Events is closed once the subscription is released
	Events() <-chan model.ChangeEvent
	// Close releases the subscription. Calling it more than once is a no-op.
	Close() error
}
