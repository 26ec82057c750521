package sse

import (
	"testing"
	"time"

	"github.com/mcoot/coursebattle/internal/dependencies/mocks"
	"github.com/mcoot/coursebattle/internal/testutil"
)

func TestFormatSSEMessage(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		data      string
		expected  string
	}{
		{
			name:      "single line data",
			eventName: "test-event",
			data:      "hello world",
			expected:  "event: test-event\ndata: hello world\n\n",
		},
		{
			name:      "multi-line data",
			eventName: "leaderboard",
			data:      "<table>\n  <tr>row1</tr>\n  <tr>row2</tr>\n</table>",
			expected:  "event: leaderboard\ndata: <table>\ndata:   <tr>row1</tr>\ndata:   <tr>row2</tr>\ndata: </table>\n\n",
		},
		{
			name:      "empty data",
			eventName: "ping",
			data:      "",
			expected:  "event: ping\ndata: \n\n",
		},
		{
			name:      "data with carriage returns",
			eventName: "test",
			data:      "line1\r\nline2",
			expected:  "event: test\ndata: line1\ndata: line2\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatSSEMessage(tt.eventName, tt.data)
			if string(result) != tt.expected {
				t.Errorf("formatSSEMessage(%q, %q)\ngot:  %q\nwant: %q",
					tt.eventName, tt.data, string(result), tt.expected)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single line", input: "hello", expected: []string{"hello"}},
		{name: "two lines", input: "line1\nline2", expected: []string{"line1", "line2"}},
		{name: "trailing newline", input: "line1\n", expected: []string{"line1"}},
		{name: "empty string", input: "", expected: []string{""}},
		{name: "crlf line endings", input: "line1\r\nline2\r\n", expected: []string{"line1", "line2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitLines(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("splitLines(%q) returned %d lines, want %d",
					tt.input, len(result), len(tt.expected))
				return
			}
			for i, line := range result {
				if line != tt.expected[i] {
					t.Errorf("splitLines(%q)[%d] = %q, want %q",
						tt.input, i, line, tt.expected[i])
				}
			}
		})
	}
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub("room-1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	client := NewClient(hub, "player1")
	if !hub.Register(client) {
		t.Fatal("Register() = false on a running hub")
	}
	waitForClients(t, hub, 1)

	hub.BroadcastEvent("test-event", "test data")

	select {
	case msg := <-client.send:
		expected := "event: test-event\ndata: test data\n\n"
		if string(msg) != expected {
			t.Errorf("client received %q, want %q", string(msg), expected)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("client did not receive message")
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub("room-1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	client := NewClient(hub, "player1")
	hub.Register(client)
	waitForClients(t, hub, 1)

	hub.Unregister(client)
	waitForClients(t, hub, 0)

	if _, ok := <-client.send; ok {
		t.Error("client send channel still open after unregister")
	}
}

func TestHub_BroadcastToMultipleClients(t *testing.T) {
	hub := NewHub("room-1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	clients := []*Client{
		NewClient(hub, "player1"),
		NewClient(hub, "player2"),
		NewClient(hub, "player3"),
	}
	for _, c := range clients {
		hub.Register(c)
	}
	waitForClients(t, hub, 3)

	hub.BroadcastEvent("update", "data")

	for i, client := range clients {
		select {
		case msg := <-client.send:
			expected := "event: update\ndata: data\n\n"
			if string(msg) != expected {
				t.Errorf("client %d received %q, want %q", i+1, string(msg), expected)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client %d did not receive message", i+1)
		}
	}
}

func TestHub_RegisterAfterClose(t *testing.T) {
	hub := NewHub("room-1", testutil.NopLogger())
	go hub.Run()
	hub.Close()
	hub.Close()

	if hub.Register(NewClient(hub, "late")) {
		t.Error("Register() = true on a closed hub")
	}
}

func newTestManager() *HubManager {
	return NewHubManager(nil, nil, mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)), testutil.NopLogger())
}

func TestHubManager_GetOrCreateHub(t *testing.T) {
	manager := newTestManager()
	defer manager.CloseAll()

	hub1 := manager.GetOrCreateHub("room-a")
	if hub1 == nil {
		t.Fatal("GetOrCreateHub returned nil")
	}

	if hub2 := manager.GetOrCreateHub("room-a"); hub1 != hub2 {
		t.Error("GetOrCreateHub returned different hub for same room")
	}

	if hub3 := manager.GetOrCreateHub("room-b"); hub3 == hub1 {
		t.Error("GetOrCreateHub returned same hub for different room")
	}
}

func TestHubManager_GetHub(t *testing.T) {
	manager := newTestManager()
	defer manager.CloseAll()

	if hub := manager.GetHub("missing"); hub != nil {
		t.Error("GetHub returned non-nil for non-existent hub")
	}

	created := manager.GetOrCreateHub("room-a")
	if got := manager.GetHub("room-a"); got != created {
		t.Error("GetHub returned different hub than GetOrCreateHub")
	}
}

func TestHubManager_RemoveHub(t *testing.T) {
	manager := newTestManager()

	hub := manager.GetOrCreateHub("room-a")
	manager.RemoveHub("room-a")

	if got := manager.GetHub("room-a"); got != nil {
		t.Error("GetHub returned hub after RemoveHub")
	}
	select {
	case <-hub.Done():
	default:
		t.Error("removed hub was not closed")
	}
}

func TestHubManager_CleanupEmptyHubs(t *testing.T) {
	manager := newTestManager()
	defer manager.CloseAll()

	busy := manager.GetOrCreateHub("busy")
	manager.GetOrCreateHub("idle")

	busy.Register(NewClient(busy, "player1"))
	waitForClients(t, busy, 1)

	if removed := manager.CleanupEmptyHubs(); removed != 1 {
		t.Errorf("CleanupEmptyHubs() = %d, want 1", removed)
	}
	if manager.GetHub("idle") != nil {
		t.Error("idle hub survived cleanup")
	}
	if manager.GetHub("busy") == nil {
		t.Error("busy hub was removed")
	}
}
