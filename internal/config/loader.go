package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Load builds a validated [Config] from the YAML file at path overlaid with
// environment variables. A missing file is not an error — the pipeline can be
// configured from the environment alone. An empty path skips the file step
// entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, using environment only", "path", path)
		case err != nil:
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		default:
			defer f.Close()
			if err := decodeYAML(f, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	// Environment variables win over file values.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates. No environment overlay is performed — useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := decodeYAML(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML decodes cfg from r, rejecting unknown fields so typos in config
// files surface immediately.
func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Non-fatal oddities (absent optional credentials) are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required (set DATABASE_URL)"))
	}
	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.PoolMaxConns < 1 {
		errs = append(errs, fmt.Errorf("pool_max_conns %d must be at least 1", cfg.PoolMaxConns))
	}
	if cfg.Embeddings.Dimensions < 1 {
		errs = append(errs, fmt.Errorf("embeddings.dimensions %d must be positive", cfg.Embeddings.Dimensions))
	}
	switch cfg.Embeddings.Provider {
	case "", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider %q is invalid; valid values: openai, ollama", cfg.Embeddings.Provider))
	}
	if cfg.Assembly.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("assembly.max_tokens %d must be positive", cfg.Assembly.MaxTokens))
	}
	if cfg.Assembly.TokenBuffer < 0 {
		errs = append(errs, fmt.Errorf("assembly.token_buffer %d must not be negative", cfg.Assembly.TokenBuffer))
	}
	if cfg.Assembly.TokenBuffer >= cfg.Assembly.MaxTokens {
		errs = append(errs, fmt.Errorf("assembly.token_buffer %d must be smaller than assembly.max_tokens %d",
			cfg.Assembly.TokenBuffer, cfg.Assembly.MaxTokens))
	}
	if cfg.Drift.DefaultThreshold < 0 || cfg.Drift.DefaultThreshold > 1 {
		errs = append(errs, fmt.Errorf("drift.default_threshold %.2f is out of range [0, 1]", cfg.Drift.DefaultThreshold))
	}

	if cfg.Embeddings.APIKey == "" && cfg.Embeddings.Provider != "ollama" {
		slog.Warn("no embedding API key configured; memory retrieval downgrades to importance/recency and memories are stored without embeddings")
	}
	if cfg.Extractor.APIKey == "" {
		slog.Warn("no extractor API key configured; setting-preference extraction is disabled")
	}

	return errors.Join(errs...)
}
