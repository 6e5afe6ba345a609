package admin

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/events"
	"github.com/vishal-tambi/white-board-collabration-app/internal/protocol"
	"github.com/vishal-tambi/white-board-collabration-app/internal/service"
	"github.com/vishal-tambi/white-board-collabration-app/internal/storage"
)

var pruneKeep int

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage saved snapshots",
}

var snapshotsPruneCmd = &cobra.Command{
	Use:   "prune <roomId>",
	Short: "Delete all but the newest --keep snapshots of a room",
	Args:  cobra.ExactArgs(1),
	RunE:  pruneSnapshots,
}

func init() {
	snapshotsPruneCmd.Flags().IntVar(&pruneKeep, "keep", 10, "snapshots to keep")
	snapshotsCmd.AddCommand(snapshotsPruneCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func pruneSnapshots(cmd *cobra.Command, args []string) error {
	roomID := args[0]
	if !protocol.ValidRoomID(roomID) {
		return fmt.Errorf("invalid room id %q", roomID)
	}

	// 오브젝트 스토리지가 설정돼 있으면 이미지도 함께 지운다
	var images service.ImageStore
	if cfg.Storage.Enabled() {
		is, err := storage.NewImageStore(cmd.Context(), storage.Config{
			Endpoint:      cfg.Storage.Endpoint,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			UseSSL:        cfg.Storage.UseSSL,
			PresignExpiry: cfg.Storage.PresignExpiry,
		}, zlog)
		if err != nil {
			zlog.Warn("object storage unavailable, objects will be orphaned", zap.Error(err))
		} else {
			images = is
		}
	}

	snapshots := service.NewSnapshotService(st, images, events.Noop{}, zlog)
	n, err := snapshots.Prune(cmd.Context(), roomID, pruneKeep)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🗑️ pruned %d snapshots from %s (kept %d)\n", n, roomID, pruneKeep)
	return nil
}
