package model

import (
	"sort"
	"strings"
	"time"
)

// Member is a player's participation in a room: one row per (player, room)
type Member struct {
	PlayerID       PlayerID
	RoomID         RoomID
	DisplayName    string
	Progress       *Snapshot
	Score          int
	LastProgressAt *time.Time
	JoinedAt       time.Time
}

// Label returns the name shown for the member, falling back to a
// truncated player id when no display name was given
func (m *Member) Label() string {
	if name := strings.TrimSpace(m.DisplayName); name != "" {
		return name
	}
	id := string(m.PlayerID)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Clone returns a deep copy of the member
func (m *Member) Clone() *Member {
	c := *m
	c.LastProgressAt = cloneTime(m.LastProgressAt)
	if m.Progress != nil {
		p := m.Progress.Clone()
		c.Progress = &p
	}
	return &c
}

// SortByScore orders members by score, highest first.
// The sort is stable so equal scores keep their incoming order.
func SortByScore(members []*Member) {
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Score > members[j].Score
	})
}
