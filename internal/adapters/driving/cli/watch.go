package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helicon-labs/vectra/internal/adapters/driven/source/eventlog"
	"github.com/helicon-labs/vectra/internal/core/services"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the event log and ingest continuously",
	Long: `Runs incremental ingestion on a schedule and whenever the event
log changes on disk. Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if err := ensureServices(); err != nil {
		return err
	}
	if appSource == nil || appConfig == nil {
		return errors.New("watch requires a configured event log source")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := eventlog.NewWatcher(appSource)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Stop()

	scheduler := services.NewScheduler(services.SchedulerConfig{
		Interval:    time.Duration(appConfig.Indexing.CheckIntervalSeconds) * time.Second,
		Debounce:    time.Duration(appConfig.Indexing.DebounceSeconds) * time.Second,
		FullOnStart: appConfig.Indexing.FullOnStart,
	}, ingestOrchestrator, watcher.Triggers())

	cmd.Printf("Watching %s (checking every %ds)...\n",
		appConfig.Source.Root, appConfig.Indexing.CheckIntervalSeconds)

	err := scheduler.Start(ctx)
	if errors.Is(err, context.Canceled) {
		cmd.Println("Stopped.")
		return nil
	}
	return err
}
