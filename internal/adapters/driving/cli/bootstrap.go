package cli

import (
	"fmt"
	"io"

	"github.com/helicon-labs/vectra/internal/adapters/driven/embedding/ollama"
	"github.com/helicon-labs/vectra/internal/adapters/driven/embedding/openai"
	"github.com/helicon-labs/vectra/internal/adapters/driven/source/eventlog"
	"github.com/helicon-labs/vectra/internal/adapters/driven/storage/sqlite"
	"github.com/helicon-labs/vectra/internal/adapters/driven/transform"
	"github.com/helicon-labs/vectra/internal/adapters/driven/transform/calendar"
	"github.com/helicon-labs/vectra/internal/config"
	"github.com/helicon-labs/vectra/internal/core/ports/driven"
	"github.com/helicon-labs/vectra/internal/core/services"
	"github.com/helicon-labs/vectra/internal/logger"
)

// Wiring state shared between commands once ensureServices has run.
var (
	appConfig   *config.Config
	appSource   *eventlog.Source
	appEmbedder driven.EmbeddingService
	closers     []io.Closer
)

// ensureServices builds the service graph from configuration. A test
// that pre-sets ingestOrchestrator skips wiring entirely.
func ensureServices() error {
	if ingestOrchestrator != nil {
		return nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	appConfig = cfg

	source, err := eventlog.NewSource(eventlog.Config{
		Root: cfg.Source.Root,
		Kind: cfg.Source.Kind,
	})
	if err != nil {
		return err
	}
	appSource = source

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	closers = append(closers, store)

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	closers = append(closers, embedder)
	appEmbedder = embedder
	logger.Debug("Using %s embeddings (%d dimensions)", embedder.ModelName(), embedder.Dimensions())

	builders := transform.NewRegistry(calendar.New(calendar.Options{
		IncludeDescription:   cfg.Builder.IncludeDescription,
		IncludeLocation:      cfg.Builder.IncludeLocation,
		IncludeAttendees:     cfg.Builder.IncludeAttendees,
		MaxDescriptionLength: cfg.Builder.MaxDescriptionLength,
	}))

	ingestOrchestrator = services.NewOrchestrator(
		source,
		store.LedgerStore(),
		store.RunStore(),
		builders,
		embedder,
		store.VectorIndex(),
		services.Options{BatchSize: cfg.Indexing.BatchSize},
	)
	return nil
}

// buildEmbedder constructs the configured embedding provider.
func buildEmbedder(cfg *config.Config) (driven.EmbeddingService, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			Dimensions:        cfg.Embedding.Dimensions,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		}), nil
	case "openai":
		return openai.NewEmbeddingService(openai.Config{
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			Dimensions:        cfg.Embedding.Dimensions,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}

// closeServices releases wired resources in reverse order.
func closeServices() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("Close failed: %v", err)
		}
	}
	closers = nil
}
