// Package pipelines composes the scrape nodes into runnable
// question-answering pipelines over JSON documents.
package pipelines

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/answergraph-go/graph/model"
	"github.com/dshills/answergraph-go/graph/model/anthropic"
	"github.com/dshills/answergraph-go/graph/model/google"
	"github.com/dshills/answergraph-go/graph/model/openai"
	"github.com/dshills/answergraph-go/graph/store"
	"github.com/dshills/answergraph-go/scrape"
)

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderMock      = "mock"
)

// Supported persistence backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// envKeys maps a provider to the environment variable consulted when
// the config carries no API key.
var envKeys = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGoogle:    "GOOGLE_API_KEY",
}

// Config holds everything a pipeline needs beyond the question and
// the sources. A pipeline deep-copies its Config at build time, so
// callers may reuse one Config across pipelines without sharing.
type Config struct {
	// Provider selects the chat model backend.
	Provider string `toml:"provider"`
	// Model overrides the provider's default model name.
	Model string `toml:"model"`
	// APIKey authenticates with the provider. Empty falls back to
	// the provider's environment variable.
	APIKey string `toml:"api_key"`

	// Temperature, when set, is passed through to the model.
	Temperature *float64 `toml:"temperature"`
	// MaxTokens caps the model's output per call. 0 leaves the
	// provider default in place.
	MaxTokens int `toml:"max_tokens"`

	// ChunkSize is the per-chunk character budget for large
	// documents. 0 uses the scrape default.
	ChunkSize int `toml:"chunk_size"`
	// MaxConcurrent bounds in-flight sources in the multi-source
	// pipeline. 0 uses the scrape default.
	MaxConcurrent int `toml:"max_concurrent"`
	// FailFast aborts the multi-source pipeline on the first
	// per-source failure instead of collecting what it can.
	FailFast bool `toml:"fail_fast"`

	// NodeTimeout bounds each node run. 0 means no timeout.
	NodeTimeout time.Duration `toml:"node_timeout"`
	// Verbose emits per-step progress to stderr.
	Verbose bool `toml:"verbose"`

	// Store selects the persistence backend. Empty means memory.
	Store string `toml:"store"`
	// StoreDSN is the connection string for sqlite and mysql
	// backends.
	StoreDSN string `toml:"store_dsn"`

	// Schema, when set, constrains the final answer shape.
	Schema scrape.Schema `toml:"schema"`
}

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Clone returns a deep copy. Mutating the copy never affects the
// original, including the schema map and temperature pointer.
func (c Config) Clone() Config {
	out := c
	if c.Temperature != nil {
		t := *c.Temperature
		out.Temperature = &t
	}
	if c.Schema != nil {
		out.Schema = c.Schema.Clone()
	}
	return out
}

// Validate reports configuration errors before any pipeline is built.
func (c Config) Validate() error {
	switch c.Provider {
	case "", ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderMock:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch c.Store {
	case "", StoreMemory:
	case StoreSQLite, StoreMySQL:
		if c.StoreDSN == "" {
			return fmt.Errorf("store %q requires store_dsn", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must not be negative")
	}
	return nil
}

// apiKey resolves the provider credential, falling back to the
// environment.
func (c Config) apiKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv(envKeys[c.Provider])
}

// BuildModel constructs the chat model named by the config. The mock
// provider returns a model that answers every call with NA, which is
// useful for wiring tests.
func (c Config) BuildModel(ctx context.Context) (model.ChatModel, error) {
	switch c.Provider {
	case "", ProviderOpenAI:
		key := c.apiKey()
		if key == "" {
			return nil, fmt.Errorf("openai: missing API key")
		}
		return openai.New(key, c.Model)
	case ProviderAnthropic:
		key := c.apiKey()
		if key == "" {
			return nil, fmt.Errorf("anthropic: missing API key")
		}
		return anthropic.New(key, c.Model)
	case ProviderGoogle:
		key := c.apiKey()
		if key == "" {
			return nil, fmt.Errorf("google: missing API key")
		}
		return google.New(ctx, key, c.Model)
	case ProviderMock:
		return &model.MockChatModel{
			Responses: []model.Response{{Text: `{"answer": "` + scrape.NoAnswer + `"}`}},
		}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

// BuildStore constructs the persistence backend named by the config.
func (c Config) BuildStore() (store.Store[scrape.State], error) {
	switch c.Store {
	case "", StoreMemory:
		return store.NewMemStore[scrape.State](), nil
	case StoreSQLite:
		return store.NewSQLiteStore[scrape.State](c.StoreDSN)
	case StoreMySQL:
		return store.NewMySQLStore[scrape.State](c.StoreDSN)
	default:
		return nil, fmt.Errorf("unknown store %q", c.Store)
	}
}
