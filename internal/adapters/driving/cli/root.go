// Package cli implements the command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/helicon-labs/vectra/internal/core/ports/driving"
	"github.com/helicon-labs/vectra/internal/logger"
)

// version is set by Execute.
var version = "dev"

// Persistent flags.
var (
	cfgFile string
	verbose bool
)

// ingestOrchestrator drives ingestion for the ingest, stats and watch
// commands. Commands build it lazily via ensureServices; tests inject
// their own.
var ingestOrchestrator driving.IngestOrchestrator

var rootCmd = &cobra.Command{
	Use:   "vectra",
	Short: "Incremental calendar event indexer",
	Long: `vectra ingests calendar events from a file-backed event log,
embeds them and maintains a persistent vector index.

A fingerprint ledger tracks what has been indexed, so re-runs only
process records that are new, changed or previously failed.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (TOML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the CLI with the given version string.
func Execute(v string) error {
	version = v
	defer closeServices()
	return rootCmd.Execute()
}
