package redis

import (
	"fmt"

	"github.com/mcoot/coursebattle/internal/model"
)

// Key prefix for all battle-related data
const keyPrefix = "battle"

// Key generation functions for each entity type

// playerKey returns the Redis key for a Player
func playerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s", keyPrefix, id)
}

// registeredPlayerKey returns the Redis key for a RegisteredPlayer
func registeredPlayerKey(playerID model.PlayerID) string {
	return fmt.Sprintf("%s:registered_player:%s", keyPrefix, playerID)
}

// usernameIndexKey returns the Redis key for the username -> player_id index
func usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", keyPrefix, username)
}

// roomKey returns the Redis key for a Room
func roomKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, id)
}

// roomCodeIndexKey returns the Redis key for the code -> room_id index
func roomCodeIndexKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:idx:room_code:%s", keyPrefix, code)
}

// adminRoomsIndexKey returns the Redis key for the SET of rooms a player administers
func adminRoomsIndexKey(playerID model.PlayerID) string {
	return fmt.Sprintf("%s:idx:admin_rooms:%s", keyPrefix, playerID)
}

// playerRoomsIndexKey returns the Redis key for the SET of rooms a player has joined
func playerRoomsIndexKey(playerID model.PlayerID) string {
	return fmt.Sprintf("%s:idx:player_rooms:%s", keyPrefix, playerID)
}

// membersKey returns the Redis key for the HASH of memberships in a room
func membersKey(roomID model.RoomID) string {
	return fmt.Sprintf("%s:members:%s", keyPrefix, roomID)
}

// messagesKey returns the Redis key for the LIST of chat messages in a room
func messagesKey(roomID model.RoomID) string {
	return fmt.Sprintf("%s:messages:%s", keyPrefix, roomID)
}

// profileKey returns the Redis key for a player's win/loss HASH
func profileKey(playerID model.PlayerID) string {
	return fmt.Sprintf("%s:profile:%s", keyPrefix, playerID)
}

// changeChannel returns the pub/sub channel a change event is published on
func changeChannel(table model.ChangeTable, roomID model.RoomID) string {
	return fmt.Sprintf("%s:changes:%s:%s", keyPrefix, table, roomID)
}

// changePatterns returns the PSUBSCRIBE patterns that cover filter
func changePatterns(filter model.ChangeFilter) []string {
	room := "*"
	if filter.RoomID != "" {
		room = string(filter.RoomID)
	}
	if len(filter.Tables) == 0 {
		return []string{fmt.Sprintf("%s:changes:*:%s", keyPrefix, room)}
	}
	patterns := make([]string, len(filter.Tables))
	for i, table := range filter.Tables {
		patterns[i] = fmt.Sprintf("%s:changes:%s:%s", keyPrefix, table, room)
	}
	return patterns
}
