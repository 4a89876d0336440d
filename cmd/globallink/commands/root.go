package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	catalogFile string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "globallink",
	Short: "Macro and technical feature pipeline",
	Long: `globallink CLI

Acquires macro indicators and ETF quotes through ordered provider
fallback chains, keeps per-indicator history, and writes one metrics
matrix per cycle.

Usage:
  go run ./cmd/globallink [command]

Examples:
  go run ./cmd/globallink run
  go run ./cmd/globallink run harvest
  go run ./cmd/globallink backfill
  go run ./cmd/globallink features VIX
  go run ./cmd/globallink scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Ctrl+C cancels the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "catalog YAML (default is CATALOG_PATH or the built-in catalog)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
