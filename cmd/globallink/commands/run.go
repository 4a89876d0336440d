package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/globallink/internal/pipeline"
)

// runCmd runs one cycle or a single stage of it
var runCmd = &cobra.Command{
	Use:   "run [all|harvest|update|compute]",
	Short: "Run one pipeline cycle (or one stage)",
	Long: `Run one pipeline cycle.

Stages:
  all      - harvest → update → compute (default)
  harvest  - acquire a raw snapshot only
  update   - append the latest snapshot to history
  compute  - rebuild the metrics matrix from the latest snapshot

Example:
  go run ./cmd/globallink run
  go run ./cmd/globallink run compute`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"all", "harvest", "update", "compute"},
	RunE:      runCycle,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	stage := "all"
	if len(args) == 1 {
		stage = args[0]
	}

	var fn func(*pipeline.Cycle, context.Context) (*pipeline.Result, error)
	switch stage {
	case "all":
		fn = (*pipeline.Cycle).Run
	case "harvest":
		fn = (*pipeline.Cycle).RunHarvest
	case "update":
		fn = (*pipeline.Cycle).RunUpdate
	case "compute":
		fn = (*pipeline.Cycle).RunCompute
	default:
		return fmt.Errorf("unknown stage %q (want all, harvest, update or compute)", stage)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printHeader("Cycle: " + stage)
	res, err := fn(a.cycle, ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", stage, err)
	}

	if err := printJSON(res); err != nil {
		return err
	}
	printDone("Cycle %s finished (%d failed indicators)", res.RunID, len(res.Failed))
	return nil
}
