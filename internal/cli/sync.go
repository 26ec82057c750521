package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/coursebattle/internal/dependencies/clock"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/progress"
	"github.com/mcoot/coursebattle/internal/services/syncloop"
)

func newSyncCmd() *cobra.Command {
	var (
		lessonID string
		roomID   string
		interval time.Duration
		hidden   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Keep your progress and a room's leaderboard in sync",
		Long: `Run the background sync loop: every interval your progress is rebuilt
and uploaded to the room, and the leaderboard is redrawn. Room changes
pushed by the server trigger a redraw in between.

Signals:
  SIGUSR1  pause syncing (page hidden)
  SIGUSR2  resume syncing (page visible)
  SIGHUP   sync now
  SIGINT   stop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()

			loop := syncloop.New(
				syncloop.Config{Interval: interval, StartHidden: hidden},
				syncloop.Session{LessonID: lessonID, RoomID: model.RoomID(roomID)},
				newProgressService(),
				apiClient,
				&textRenderer{w: cmd.OutOrStdout()},
				clock.New(),
				logger,
			)

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
			defer signal.Stop(signals)

			go loop.Run(ctx)

			for {
				select {
				case <-loop.Done():
					return nil
				case sig := <-signals:
					switch sig {
					case syscall.SIGUSR1:
						loop.SetVisible(false)
					case syscall.SIGUSR2:
						loop.SetVisible(true)
					case syscall.SIGHUP:
						loop.SyncNow()
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&lessonID, "lesson", "", "Lesson id (required)")
	cmd.Flags().StringVar(&roomID, "room", "", "Room to sync with")
	cmd.Flags().DurationVar(&interval, "interval", syncloop.DefaultInterval, "Sync interval")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Start paused")
	_ = cmd.MarkFlagRequired("lesson")

	return cmd
}

// textRenderer draws sync loop output as plain text
type textRenderer struct {
	w io.Writer
}

func (r *textRenderer) Progress(result *progress.Result) {
	fmt.Fprintf(r.w, "\nYou: %d%% (%d/%d lessons)\n", result.Score, result.Snapshot.Done, result.Snapshot.Total)
}

func (r *textRenderer) Members(roomID model.RoomID, members []*model.Member) {
	fmt.Fprintf(r.w, "\nRoom %s\n", roomID)
	NewOutput("text", r.w).Print(members)
}

func (r *textRenderer) Room(room *model.Room) {
	fmt.Fprintf(r.w, "\nRoom %s is %s\n", room.Code, room.Status())
}
