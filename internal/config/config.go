// Package config loads the application configuration from a TOML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

// Default configuration values.
const (
	DefaultEmbeddingProvider = "ollama"
	DefaultBatchSize         = 100
	DefaultCheckInterval     = 300 // seconds
	DefaultDebounce          = 2   // seconds
)

// Config is the application configuration.
type Config struct {
	// DataDir is the directory holding the ledger and index database.
	// Defaults to ~/.vectra/data.
	DataDir string `toml:"data_dir"`

	Source    SourceConfig    `toml:"source"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Builder   BuilderConfig   `toml:"builder"`
	Indexing  IndexingConfig  `toml:"indexing"`
}

// SourceConfig configures the event log source.
type SourceConfig struct {
	// Root is the event log root directory (required).
	Root string `toml:"root"`

	// Kind is the record kind to ingest (default "calendar").
	Kind string `toml:"kind"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: ollama or openai.
	Provider string `toml:"provider"`

	// Model overrides the provider's default model.
	Model string `toml:"model"`

	// BaseURL overrides the provider's API endpoint.
	BaseURL string `toml:"base_url"`

	// APIKey authenticates against the provider. The OPENAI_API_KEY
	// environment variable takes precedence.
	APIKey string `toml:"api_key"`

	// Dimensions overrides the model's vector size.
	Dimensions int `toml:"dimensions"`

	// RequestsPerSecond throttles API calls (0 = unlimited).
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BuilderConfig configures document building.
type BuilderConfig struct {
	IncludeDescription   bool `toml:"include_description"`
	IncludeLocation      bool `toml:"include_location"`
	IncludeAttendees     bool `toml:"include_attendees"`
	MaxDescriptionLength int  `toml:"max_description_length"`
}

// IndexingConfig configures run behaviour.
type IndexingConfig struct {
	// BatchSize is the number of records processed per pipeline batch.
	BatchSize int `toml:"batch_size"`

	// CheckIntervalSeconds is the periodic run interval in watch mode.
	CheckIntervalSeconds int `toml:"check_interval_seconds"`

	// DebounceSeconds delays watch-triggered runs so bursts of file
	// changes collapse into one run.
	DebounceSeconds int `toml:"debounce_seconds"`

	// FullOnStart runs a full pass when watch mode starts.
	FullOnStart bool `toml:"full_on_start"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Kind: "calendar",
		},
		Embedding: EmbeddingConfig{
			Provider: DefaultEmbeddingProvider,
		},
		Builder: BuilderConfig{
			IncludeDescription:   true,
			IncludeLocation:      true,
			IncludeAttendees:     true,
			MaxDescriptionLength: 2000,
		},
		Indexing: IndexingConfig{
			BatchSize:            DefaultBatchSize,
			CheckIntervalSeconds: DefaultCheckInterval,
			DebounceSeconds:      DefaultDebounce,
		},
	}
}

// Load reads configuration from the given TOML file, applies
// environment overrides and validates the result. An empty path loads
// defaults plus environment only; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading config file %s: %v", domain.ErrConfiguration, path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing config file %s: %v", domain.ErrConfiguration, path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment.
func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.DataDir, "VECTRA_DATA_DIR")
	setString(&c.Source.Root, "VECTRA_SOURCE_ROOT")
	setString(&c.Source.Kind, "VECTRA_SOURCE_KIND")
	setString(&c.Embedding.Provider, "VECTRA_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "VECTRA_EMBEDDING_MODEL")
	setString(&c.Embedding.BaseURL, "VECTRA_EMBEDDING_BASE_URL")
	setString(&c.Embedding.APIKey, "OPENAI_API_KEY")

	if v := os.Getenv("VECTRA_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexing.BatchSize = n
		}
	}
	if v := os.Getenv("VECTRA_CHECK_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexing.CheckIntervalSeconds = n
		}
	}

	if c.DataDir != "" {
		c.DataDir = expandHome(c.DataDir)
	}
	if c.Source.Root != "" {
		c.Source.Root = expandHome(c.Source.Root)
	}
}

func (c *Config) validate() error {
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, c.Embedding.Provider)
	}
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", domain.ErrConfiguration)
	}
	if c.Indexing.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("%w: check_interval_seconds must be positive", domain.ErrConfiguration)
	}
	return nil
}

// expandHome resolves a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path == "~" || len(path) > 1 && path[0] == '~' && path[1] == os.PathSeparator {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
