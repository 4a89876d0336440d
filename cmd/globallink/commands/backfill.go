package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/globallink/internal/pipeline"
)

// backfillCmd replays archived raw snapshots into history
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild history from archived raw snapshots",
	Long: `Replays every data/raw/market_snap_*.json in cycle order.

Points already stored are reported as duplicates, so the command
can be re-run safely.`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printHeader("Backfill: " + a.raw.Dir())
	res, err := pipeline.Backfill(ctx, a.raw, a.store, a.log)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	if err := printJSON(res); err != nil {
		return err
	}
	printDone("Replayed %d snapshots (%d appended)", res.Files, res.Appended)
	return nil
}
