package model

import (
	"slices"
	"time"
)

// ChangeTable names the logical table a change event came from
type ChangeTable string

const (
	TableRooms    ChangeTable = "rooms"
	TablePlayers  ChangeTable = "players"
	TableMessages ChangeTable = "messages"
)

// ChangeOp is the kind of mutation that produced a change event
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent describes a committed mutation of the room store.
// Exactly one of Room, Member or Message is set, matching Table.
type ChangeEvent struct {
	Table   ChangeTable
	Op      ChangeOp
	RoomID  RoomID
	At      time.Time
	Room    *Room        `json:",omitempty"`
	Member  *Member      `json:",omitempty"`
	Message *ChatMessage `json:",omitempty"`
}

// ChangeFilter selects which change events a subscriber receives.
// An empty RoomID matches every room; empty Tables matches every table.
type ChangeFilter struct {
	RoomID RoomID
	Tables []ChangeTable
}

// Matches reports whether the event passes the filter
func (f ChangeFilter) Matches(e ChangeEvent) bool {
	if f.RoomID != "" && f.RoomID != e.RoomID {
		return false
	}
	if len(f.Tables) > 0 && !slices.Contains(f.Tables, e.Table) {
		return false
	}
	return true
}

// RoomChanges selects room and membership changes for one room
func RoomChanges(roomID RoomID) ChangeFilter {
	return ChangeFilter{RoomID: roomID, Tables: []ChangeTable{TableRooms, TablePlayers}}
}

// AllRoomChanges selects room and membership changes across all rooms
func AllRoomChanges() ChangeFilter {
	return ChangeFilter{Tables: []ChangeTable{TableRooms, TablePlayers}}
}

// ChatChanges selects chat message inserts for one room
func ChatChanges(roomID RoomID) ChangeFilter {
	return ChangeFilter{RoomID: roomID, Tables: []ChangeTable{TableMessages}}
}
