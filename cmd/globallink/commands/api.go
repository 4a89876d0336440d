package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// apiCmd serves the ops endpoints without running the scheduler
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the ops HTTP endpoints",
	Long: `Serves on METRICS_PORT:
  GET /health
  GET /metrics
  GET /api/matrix/latest
  GET /api/matrix/health
  GET /api/features/{key}`,
	Args: cobra.NoArgs,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server := a.server()
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
