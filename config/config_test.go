package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "zero workers",
			mutate: func(cfg *Config) {
				cfg.Workers = 0
			},
			wantErr: "workers",
		},
		{
			name: "empty profile url",
			mutate: func(cfg *Config) {
				cfg.ProfileURL = ""
			},
			wantErr: "profile URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.ProfileURL = "http://"
			},
			wantErr: "profile URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "zero progress interval",
			mutate: func(cfg *Config) {
				cfg.ProgressEvery = 0
			},
			wantErr: "progress",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "output format without file",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "csv"
				cfg.OutputFile = ""
			},
			wantErr: "output file",
		},
		{
			name: "inverted fina age window",
			mutate: func(cfg *Config) {
				cfg.MinFinaAge = 19
			},
			wantErr: "FINA age",
		},
		{
			name: "bad graphql endpoint",
			mutate: func(cfg *Config) {
				cfg.GraphQLEndpoint = "not a url"
			},
			wantErr: "graphql endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.ProgressEvery != 100 {
		t.Fatalf("progress every = %d, want 100", cfg.ProgressEvery)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	cfg, err := Load(context.Background(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Parallelism != DefaultConfig().Parallelism {
		t.Fatalf("parallelism = %d, want default", cfg.Parallelism)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skillrating.yaml")
	yamlContent := `
parallelism: 12
timeout: 3s
database_path: /tmp/ratings.db
progress_every: 250
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvConfigFile, path)
	t.Setenv("SKILLRATING_PARALLELISM", "48")
	t.Setenv("SKILLRATING_BATCH_TIMEOUT", "30m")

	cfg, err := Load(context.Background(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Parallelism != 48 {
		t.Fatalf("parallelism = %d, want env override 48", cfg.Parallelism)
	}
	if cfg.Timeout != 3*time.Second {
		t.Fatalf("timeout = %v, want 3s from file", cfg.Timeout)
	}
	if cfg.BatchTimeout != 30*time.Minute {
		t.Fatalf("batch timeout = %v, want 30m", cfg.BatchTimeout)
	}
	if cfg.DatabasePath != "/tmp/ratings.db" {
		t.Fatalf("database path = %q", cfg.DatabasePath)
	}
	if cfg.ProgressEvery != 250 {
		t.Fatalf("progress every = %d, want 250", cfg.ProgressEvery)
	}
	if cfg.Workers != DefaultConfig().Workers {
		t.Fatalf("workers = %d, want default to survive layering", cfg.Workers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
