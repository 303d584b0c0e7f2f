package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreConfig configures the badger-backed vector store.
type StoreConfig struct {
	Path      string `yaml:"path"`
	Dimension int    `yaml:"dimension"`
}

// EmbedderConfig configures the OpenAI-compatible embedding client.
type EmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
}

// ChunkerConfig configures how parsed text is split into chunks.
type ChunkerConfig struct {
	MaxTokens     int    `yaml:"max_tokens"`
	OverlapTokens int    `yaml:"overlap_tokens"`
	Tokenizer     string `yaml:"tokenizer"` // "approx" or "tiktoken"
}

// RetryConfig bounds retries of external calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ArchiveConfig configures the document archive backend.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	TokenEnv      string        `yaml:"token_env"`
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// ParserConfig configures the document parsing backend.
type ParserConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StateConfig configures per-source processing state files.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// JobsConfig configures the job queue.
type JobsConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// AppConfig is the root application configuration.
type AppConfig struct {
	Store    StoreConfig    `yaml:"store"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	Retry    RetryConfig    `yaml:"retry"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Parser   ParserConfig   `yaml:"parser"`
	State    StateConfig    `yaml:"state"`
	Jobs     JobsConfig     `yaml:"jobs"`
	DataDir  string         `yaml:"data_dir"` // temp download area
}

// Load reads a config from path. A missing file yields defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

// ArchiveToken resolves the archive API token from the environment.
func (c *AppConfig) ArchiveToken() string {
	return os.Getenv(c.Archive.TokenEnv)
}

// Validate checks cross-field constraints that defaulting cannot fix.
func (c *AppConfig) Validate() error {
	if c.Store.Dimension <= 0 {
		return errors.New("config: store.dimension must be positive")
	}
	if c.Chunker.OverlapTokens >= c.Chunker.MaxTokens {
		return errors.New("config: chunker.overlap_tokens must be smaller than max_tokens")
	}
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("config: retry.max_attempts must be positive")
	}
	if c.Archive.Enabled && c.Archive.BaseURL == "" {
		return errors.New("config: archive.base_url required when archive is enabled")
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/vectors"
	}
	if cfg.Store.Dimension == 0 {
		cfg.Store.Dimension = 768
	}
	if cfg.Embedder.BaseURL == "" {
		cfg.Embedder.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "embeddinggemma"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 2
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 1000
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = 100
	}
	if cfg.Chunker.Tokenizer == "" {
		cfg.Chunker.Tokenizer = "approx"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Archive.TokenEnv == "" {
		cfg.Archive.TokenEnv = "ARCHIVE_API_TOKEN"
	}
	if cfg.Archive.VerifyTimeout == 0 {
		cfg.Archive.VerifyTimeout = 2 * time.Minute
	}
	if cfg.Archive.PollInterval == 0 {
		cfg.Archive.PollInterval = 2 * time.Second
	}
	if cfg.Parser.BaseURL == "" {
		cfg.Parser.BaseURL = "http://localhost:9998"
	}
	if cfg.Parser.Timeout == 0 {
		cfg.Parser.Timeout = 2 * time.Minute
	}
	if cfg.State.Dir == "" {
		cfg.State.Dir = "data/state"
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = 16
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data/downloads"
	}
}
