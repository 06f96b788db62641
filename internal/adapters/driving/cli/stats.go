package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger and index statistics",
	Long: `Reports ledger counts, index size and per-calendar breakdowns
without running the pipeline. Divergence between ledger and index is
reported but never repaired.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

// statsOutput is the JSON view of the stats report.
type statsOutput struct {
	Indexed     int                    `json:"indexed"`
	Pending     int                    `json:"pending"`
	Failed      int                    `json:"failed"`
	IndexCount  int                    `json:"index_count"`
	Containers  []containerStatsOutput `json:"containers,omitempty"`
	LastRun     *runOutput             `json:"last_run,omitempty"`
	Consistency string                 `json:"consistency_error,omitempty"`
}

type containerStatsOutput struct {
	ContainerID string `json:"container_id"`
	Indexed     int    `json:"indexed"`
	Pending     int    `json:"pending"`
	Failed      int    `json:"failed"`
	LastIndexed string `json:"last_indexed,omitempty"`
}

type runOutput struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Indexed    int    `json:"indexed"`
	Failed     int    `json:"failed"`
}

func runStats(cmd *cobra.Command, _ []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	stats, err := ingestOrchestrator.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	if statsJSON {
		return printStatsJSON(cmd, stats)
	}
	printStats(cmd, stats)
	return nil
}

func printStats(cmd *cobra.Command, stats *domain.Stats) {
	cmd.Printf("Ledger: %d indexed, %d pending, %d failed\n",
		stats.Indexed, stats.Pending, stats.Failed)
	cmd.Printf("Index:  %d records\n", stats.IndexCount)

	for _, c := range stats.Containers {
		cmd.Printf("  %s: %d indexed, %d pending, %d failed\n",
			c.ContainerID, c.Indexed, c.Pending, c.Failed)
	}

	if stats.LastRun != nil {
		cmd.Printf("Last run: %s (%s) at %s, %d indexed, %d failed\n",
			stats.LastRun.ID, stats.LastRun.Mode,
			stats.LastRun.StartedAt.Format(time.RFC3339),
			stats.LastRun.Report.Indexed, stats.LastRun.Report.Failed)
	}

	if stats.ConsistencyErr != "" {
		cmd.Printf("WARNING: %s\n", stats.ConsistencyErr)
	}
}

func printStatsJSON(cmd *cobra.Command, stats *domain.Stats) error {
	out := statsOutput{
		Indexed:     stats.Indexed,
		Pending:     stats.Pending,
		Failed:      stats.Failed,
		IndexCount:  stats.IndexCount,
		Consistency: stats.ConsistencyErr,
	}
	for _, c := range stats.Containers {
		co := containerStatsOutput{
			ContainerID: c.ContainerID,
			Indexed:     c.Indexed,
			Pending:     c.Pending,
			Failed:      c.Failed,
		}
		if !c.LastIndexed.IsZero() {
			co.LastIndexed = c.LastIndexed.Format(time.RFC3339)
		}
		out.Containers = append(out.Containers, co)
	}
	if stats.LastRun != nil {
		out.LastRun = &runOutput{
			ID:         stats.LastRun.ID,
			Mode:       string(stats.LastRun.Mode),
			StartedAt:  stats.LastRun.StartedAt.Format(time.RFC3339),
			FinishedAt: stats.LastRun.FinishedAt.Format(time.RFC3339),
			Indexed:    stats.LastRun.Report.Indexed,
			Failed:     stats.LastRun.Report.Failed,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}
