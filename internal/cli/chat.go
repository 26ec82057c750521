package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/coursebattle/internal/model"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Room chat commands",
	}

	cmd.AddCommand(newChatSendCmd())
	cmd.AddCommand(newChatHistoryCmd())
	cmd.AddCommand(newChatWatchCmd())

	return cmd
}

func newChatSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <room-id> <message...>",
		Short: "Send a chat message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient.SendMessage(cmd.Context(), model.RoomID(args[0]), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newChatHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <room-id>",
		Short: "Show recent chat messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient.Messages(cmd.Context(), model.RoomID(args[0]), limit)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum messages (default: server default)")

	return cmd
}

func newChatWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <room-id>",
		Short: "Print chat messages as they arrive",
		Long: `Subscribe to the room's chat over the realtime websocket and print
each new message. Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()

			sub, err := apiClient.SubscribeChat(ctx, model.RoomID(args[0]))
			if err != nil {
				return err
			}
			defer func() { _ = sub.Close() }()

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			if cfg.Output != "json" {
				fmt.Fprintf(cmd.OutOrStdout(), "Watching chat in room %s\n", args[0])
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-sub.Events():
					if !ok {
						return nil
					}
					out.Print(ev)
				}
			}
		},
	}
}
