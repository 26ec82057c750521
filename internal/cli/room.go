package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/coursebattle/internal/api/request"
	"github.com/mcoot/coursebattle/internal/model"
)

func newRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Battle room commands",
	}

	cmd.AddCommand(newRoomCreateCmd())
	cmd.AddCommand(newRoomJoinCmd())
	cmd.AddCommand(newRoomListCmd())
	cmd.AddCommand(newRoomGetCmd())
	cmd.AddCommand(newRoomStartCmd())
	cmd.AddCommand(newRoomFinishCmd())
	cmd.AddCommand(newRoomDeleteCmd())
	cmd.AddCommand(newRoomRenameCmd())
	cmd.AddCommand(newRoomMembersCmd())

	return cmd
}

// roomAction runs fn against the room named by the single argument and
// prints the result
func roomAction(use, short string, fn func(cmd *cobra.Command, roomID model.RoomID) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <room-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := fn(cmd, model.RoomID(args[0]))
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newRoomCreateCmd() *cobra.Command {
	var req request.CreateRoomRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a battle room for a course",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient.CreateRoom(cmd.Context(), req)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.CourseID, "course", "", "Course id (required)")
	cmd.Flags().StringVar(&req.CourseName, "course-name", "", "Course name")
	cmd.Flags().BoolVar(&req.IsPrivate, "private", false, "Hide the room from discovery")
	cmd.Flags().StringVar(&req.DisplayName, "name", "", "Your display name in the room")
	_ = cmd.MarkFlagRequired("course")

	return cmd
}

func newRoomJoinCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "join <code>",
		Short: "Join a room by its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient.JoinRoom(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Your display name in the room (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newRoomListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms you administer or belong to",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient.ListRooms(cmd.Context())
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newRoomGetCmd() *cobra.Command {
	return roomAction("get", "Get room details", func(cmd *cobra.Command, id model.RoomID) (any, error) {
		return apiClient.GetRoom(cmd.Context(), id)
	})
}

func newRoomStartCmd() *cobra.Command {
	return roomAction("start", "Start a room and lock joining (admin only)", func(cmd *cobra.Command, id model.RoomID) (any, error) {
		return apiClient.StartRoom(cmd.Context(), id)
	})
}

func newRoomFinishCmd() *cobra.Command {
	return roomAction("finish", "Finish a room and declare the winner (admin only)", func(cmd *cobra.Command, id model.RoomID) (any, error) {
		return apiClient.FinishRoom(cmd.Context(), id)
	})
}

func newRoomMembersCmd() *cobra.Command {
	return roomAction("members", "Show the room leaderboard", func(cmd *cobra.Command, id model.RoomID) (any, error) {
		return apiClient.GetMembers(cmd.Context(), id)
	})
}

func newRoomDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <room-id>",
		Short: "Delete a room (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.DeleteRoom(cmd.Context(), model.RoomID(args[0])); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage("Room deleted")
			return nil
		},
	}
}

func newRoomRenameCmd() *cobra.Command {
	var name string

	cmd := roomAction("rename", "Change your display name in a room", func(cmd *cobra.Command, id model.RoomID) (any, error) {
		return apiClient.Rename(cmd.Context(), id, name)
	})
	cmd.Flags().StringVar(&name, "name", "", "New display name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
