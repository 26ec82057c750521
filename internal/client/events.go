package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mcoot/coursebattle/internal/model"
)

// SSEEvent represents a parsed SSE event
type SSEEvent struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Data  string    `json:"data"`
}

// StreamEvents connects to a room's SSE endpoint and calls fn for every
// event until ctx is done, the server closes the stream, or fn returns an
// error. A cancelled ctx is not reported as an error.
func (c *Client) StreamEvents(ctx context.Context, roomID model.RoomID, fn func(SSEEvent) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+roomPath(roomID, "/events"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req.Header)

	// No timeout for SSE
	resp, err := (&http.Client{Timeout: 0}).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			body.WriteString(scanner.Text())
		}
		return decodeError(resp.StatusCode, []byte(body.String()))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var currentEvent string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case line == "":
			if currentEvent != "" {
				evt := SSEEvent{Time: time.Now(), Event: currentEvent, Data: strings.Join(dataLines, "\n")}
				if err := fn(evt); err != nil {
					return err
				}
			}
			currentEvent = ""
			dataLines = nil
		}
	}

	if err := scanner.Err(); err != nil {
		// Context cancellation is expected
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("stream error: %w", err)
	}
	return nil
}
