package admin

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var checkDBCmd = &cobra.Command{
	Use:   "check-db",
	Short: "Ping the store and print row counts",
	Args:  cobra.NoArgs,
	RunE:  checkDB,
}

func init() {
	rootCmd.AddCommand(checkDBCmd)
}

func checkDB(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	start := time.Now()
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", st.Kind(), err)
	}
	fmt.Fprintf(out, "✅ %s reachable (%s)\n", st.Kind(), time.Since(start).Round(time.Millisecond))

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	fmt.Fprintf(out, "rooms:     %d\n", stats.Rooms)
	fmt.Fprintf(out, "strokes:   %d\n", stats.Strokes)
	fmt.Fprintf(out, "shapes:    %d\n", stats.Shapes)
	fmt.Fprintf(out, "snapshots: %d\n", stats.Snapshots)
	return nil
}
