package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/coursebattle/internal/client"
	"github.com/mcoot/coursebattle/internal/model"
)

func newEventsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "events <room-id>",
		Short: "Stream SSE events from a room",
		Long: `Connect to the room's SSE endpoint and stream events in real-time.

Events include:
  - connected: Stream established
  - leaderboard: Rendered leaderboard table after a progress change
  - room: Room started, finished or updated
  - chat: New chat message

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()

			roomID := model.RoomID(args[0])
			w := cmd.OutOrStdout()
			connected := false

			err := apiClient.StreamEvents(ctx, roomID, func(evt client.SSEEvent) error {
				if !connected && !jsonOutput {
					fmt.Fprintf(w, "Connected to room %s\n", roomID)
				}
				connected = true
				printEvent(w, evt, jsonOutput)
				return nil
			})
			if err != nil {
				return err
			}

			if !jsonOutput {
				fmt.Fprintln(w, "Disconnected")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")

	return cmd
}

func printEvent(w io.Writer, evt client.SSEEvent, jsonOutput bool) {
	if jsonOutput {
		jsonData, _ := json.Marshal(evt)
		fmt.Fprintln(w, string(jsonData))
		return
	}

	timestamp := evt.Time.Format("2006-01-02 15:04:05")
	// Truncate data if it's too long for display
	displayData := evt.Data
	if len(displayData) > 100 {
		displayData = displayData[:100] + "..."
	}
	// Remove newlines for cleaner display
	displayData = strings.ReplaceAll(displayData, "\n", " ")
	fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, evt.Event, displayData)
}
