package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

var (
	ingestMode  string
	ingestForce bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion cycle",
	Long: `Scans the event log, detects new, changed and deleted records
against the fingerprint ledger, and brings the vector index up to date.

Per-record failures are recorded in the ledger and retried on the next
run; they do not fail the command.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "incremental", "ingestion mode: full or incremental")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "reindex every record regardless of fingerprints")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	mode, ok := domain.ParseMode(ingestMode)
	if !ok || mode == domain.ModeForce {
		return fmt.Errorf("invalid mode %q (expected full or incremental)", ingestMode)
	}
	if ingestForce {
		mode = domain.ModeForce
	}

	// Fail before touching any state if the embedding service is down.
	if appEmbedder != nil {
		if err := appEmbedder.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("embedding service unavailable: %w", err)
		}
	}

	cmd.Printf("Running %s ingestion...\n", mode)

	report, err := ingestOrchestrator.Run(cmd.Context(), mode)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	cmd.Printf("Partition: %d new, %d changed, %d unchanged, %d deleted\n",
		report.New, report.Changed, report.Unchanged, report.Deleted)
	cmd.Printf("Indexed %d records", report.Indexed)
	if report.Failed > 0 {
		cmd.Printf(" (%d failed, will retry next run)", report.Failed)
	}
	cmd.Println()

	return nil
}
