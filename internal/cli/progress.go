package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/coursebattle/internal/dependencies/clock"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/progress"
)

// newProgressService builds a progress client from the CLI configuration
func newProgressService() *progress.Service {
	var tokens progress.TokenSource
	if cfg.ProgressTokenFile != "" {
		tokens = progress.FileToken{Path: cfg.ProgressTokenFile, Clock: clock.New()}
	}
	return progress.New(progress.Config{BaseURL: cfg.ProgressURL}, tokens, logger)
}

func newProgressCmd() *cobra.Command {
	var lessonID, roomID string

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Build your course progress snapshot",
		Long: `Fetch your progress for the course containing the given lesson and
print the snapshot. With --room the snapshot and score are uploaded to
that room's leaderboard.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newProgressService().Build(cmd.Context(), lessonID)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			if roomID == "" {
				out.Print(result)
				return nil
			}

			member, err := apiClient.UpsertProgress(cmd.Context(), model.RoomID(roomID), result.Snapshot, result.Score)
			if err != nil {
				return fmt.Errorf("upload progress: %w", err)
			}
			out.Print(member)
			return nil
		},
	}

	cmd.Flags().StringVar(&lessonID, "lesson", "", "Lesson id (required)")
	cmd.Flags().StringVar(&roomID, "room", "", "Room to upload the snapshot to")
	_ = cmd.MarkFlagRequired("lesson")

	return cmd
}
