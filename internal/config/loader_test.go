package config_test

import (
	"strings"
	"testing"

	"github.com/ofim/contexto/internal/config"
)

const validYAML = `
database_url: "postgres://u:p@localhost:5432/contexto"
personas_root: "souls"
log_level: debug
embeddings:
  api_key: "sk-test"
  dimensions: 1536
assembly:
  max_tokens: 2000
  token_buffer: 100
  templates_require_active: true
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.DatabaseURL != "postgres://u:p@localhost:5432/contexto" {
		t.Errorf("DatabaseURL = %q, want postgres URL", cfg.DatabaseURL)
	}
	if cfg.PersonasRoot != "souls" {
		t.Errorf("PersonasRoot = %q, want %q", cfg.PersonasRoot, "souls")
	}
	if cfg.Assembly.MaxTokens != 2000 {
		t.Errorf("Assembly.MaxTokens = %d, want 2000", cfg.Assembly.MaxTokens)
	}
	if !cfg.Assembly.TemplatesRequireActive {
		t.Error("Assembly.TemplatesRequireActive = false, want true")
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(`database_url: "postgres://localhost/c"`))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.PersonasRoot != config.DefaultPersonasRoot {
		t.Errorf("PersonasRoot = %q, want default %q", cfg.PersonasRoot, config.DefaultPersonasRoot)
	}
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, config.LogInfo)
	}
	if cfg.PoolMaxConns != config.DefaultPoolMaxConns {
		t.Errorf("PoolMaxConns = %d, want %d", cfg.PoolMaxConns, config.DefaultPoolMaxConns)
	}
	if cfg.Assembly.MaxTokens != config.DefaultMaxTokens {
		t.Errorf("Assembly.MaxTokens = %d, want %d", cfg.Assembly.MaxTokens, config.DefaultMaxTokens)
	}
	if cfg.Assembly.TokenBuffer != config.DefaultTokenBuffer {
		t.Errorf("Assembly.TokenBuffer = %d, want %d", cfg.Assembly.TokenBuffer, config.DefaultTokenBuffer)
	}
	if cfg.Embeddings.Dimensions != config.DefaultEmbeddingDimensions {
		t.Errorf("Embeddings.Dimensions = %d, want %d", cfg.Embeddings.Dimensions, config.DefaultEmbeddingDimensions)
	}
	if cfg.Drift.DefaultThreshold != config.DefaultDriftThreshold {
		t.Errorf("Drift.DefaultThreshold = %v, want %v", cfg.Drift.DefaultThreshold, config.DefaultDriftThreshold)
	}
	if cfg.Assembly.TemplatesRequireActive {
		t.Error("Assembly.TemplatesRequireActive = true, want false by default")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`databse_url: "typo"`))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string // substrings that must appear in the error
	}{
		{
			name:    "missing database url",
			yaml:    `log_level: info`,
			wantErr: []string{"database_url is required"},
		},
		{
			name:    "invalid log level",
			yaml:    "database_url: x\nlog_level: loud",
			wantErr: []string{"log_level"},
		},
		{
			name:    "buffer exceeds budget",
			yaml:    "database_url: x\nassembly:\n  max_tokens: 100\n  token_buffer: 200",
			wantErr: []string{"token_buffer"},
		},
		{
			name:    "drift threshold out of range",
			yaml:    "database_url: x\ndrift:\n  default_threshold: 1.5",
			wantErr: []string{"default_threshold"},
		},
		{
			name: "multiple errors",
			yaml: "log_level: loud\ndrift:\n  default_threshold: -2",
			wantErr: []string{
				"database_url is required",
				"log_level",
				"default_threshold",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("LoadFromReader() expected error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error = %q, want substring %q", err, want)
				}
			}
		})
	}
}
