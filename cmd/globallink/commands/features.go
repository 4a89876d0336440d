package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportOut string

// featuresCmd prints the feature vector of one indicator
var featuresCmd = &cobra.Command{
	Use:   "features [key]",
	Short: "Show the feature vector of an indicator",
	Args:  cobra.ExactArgs(1),
	RunE:  showFeatures,
}

// historyCmd groups history maintenance commands
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or export indicator history",
}

var historyExportCmd = &cobra.Command{
	Use:   "export [key]",
	Short: "Export one indicator series to Parquet",
	Long: `Writes the stored series of one indicator as a Parquet file
with columns timestamp (local, minutes) and value.

Example:
  go run ./cmd/globallink history export VIX --out vix.parquet`,
	Args: cobra.ExactArgs(1),
	RunE: exportHistory,
}

func init() {
	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default <key>.parquet)")
}

func showFeatures(cmd *cobra.Command, args []string) error {
	key := args[0]
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.catalog.Indicator(key); !ok {
		return fmt.Errorf("unknown indicator %q", key)
	}

	fv, err := a.store.GetFeatures(ctx, key)
	if err != nil {
		return fmt.Errorf("features %s: %w", key, err)
	}
	last, ok, err := a.store.LastUpdate(ctx, key)
	if err != nil {
		return fmt.Errorf("last update %s: %w", key, err)
	}

	out := map[string]interface{}{"key": key, "features": fv, "last_update": nil}
	if ok {
		out["last_update"] = last
	}
	return printJSON(out)
}

func exportHistory(cmd *cobra.Command, args []string) error {
	key := args[0]
	out := exportOut
	if out == "" {
		out = key + ".parquet"
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.catalog.Indicator(key); !ok {
		return fmt.Errorf("unknown indicator %q", key)
	}

	n, err := a.store.ExportParquet(ctx, key, out)
	if err != nil {
		return fmt.Errorf("export %s: %w", key, err)
	}
	printDone("Exported %d points of %s to %s", n, key, out)
	return nil
}
