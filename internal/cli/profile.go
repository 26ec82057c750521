package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/coursebattle/internal/model"
)

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile [player-id]",
		Short: "Show a player's win/loss record (default: you)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID := model.PlayerID("me")
			if len(args) == 1 {
				playerID = model.PlayerID(args[0])
			}

			result, err := apiClient.Profile(cmd.Context(), playerID)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}
