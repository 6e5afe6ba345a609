package admin

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/presence"
	"github.com/vishal-tambi/white-board-collabration-app/internal/protocol"
	"github.com/vishal-tambi/white-board-collabration-app/internal/service"
)

var roomsLimit int

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Inspect rooms",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recently created rooms",
	Args:  cobra.NoArgs,
	RunE:  listRooms,
}

var strokesCmd = &cobra.Command{
	Use:   "strokes",
	Short: "Manage stroke history",
}

var strokesClearCmd = &cobra.Command{
	Use:   "clear <roomId>",
	Short: "Delete every stroke and shape of a room",
	Args:  cobra.ExactArgs(1),
	RunE:  clearStrokes,
}

func init() {
	roomsListCmd.Flags().IntVar(&roomsLimit, "limit", 20, "maximum rooms to print (0 for all)")
	roomsCmd.AddCommand(roomsListCmd)
	strokesCmd.AddCommand(strokesClearCmd)
	rootCmd.AddCommand(roomsCmd, strokesCmd)
}

func roomService() *service.RoomService {
	defaults := model.DefaultRoomSettings()
	defaults.MaxUsers = cfg.Session.DefaultMaxUsers
	return service.NewRoomService(st, st, presence.NewRegistry(), nil, defaults, zlog)
}

func listRooms(cmd *cobra.Command, _ []string) error {
	rooms, err := roomService().ListRooms(cmd.Context(), roomsLimit)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(rooms) == 0 {
		fmt.Fprintln(out, "no rooms")
		return nil
	}
	for _, r := range rooms {
		fmt.Fprintf(out, "%-12s %s maxUsers=%d private=%t\n",
			r.RoomID, r.CreatedAt.Format(time.RFC3339), r.Settings.MaxUsers, r.Settings.IsPrivate)
	}
	return nil
}

func clearStrokes(cmd *cobra.Command, args []string) error {
	roomID := args[0]
	if !protocol.ValidRoomID(roomID) {
		return fmt.Errorf("invalid room id %q", roomID)
	}

	n, err := roomService().ClearStrokes(cmd.Context(), roomID)
	if err != nil {
		return fmt.Errorf("clear strokes: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🧹 removed %d strokes from %s\n", n, roomID)
	return nil
}
