package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
inspector:
  concurrency: 6
  queue_depth: 128
  user_agent: real-agent
  ignore_robots: true
  max_stylesheets: 10
  max_urls_per_project: 12
http:
  timeout_seconds: 45
  max_retries: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  min_html_bytes: 512
storage:
  backend: gcs
  bucket: bucket
  prefix: pages
  content_type: text/plain
rate_limit:
  enabled: true
  default_rps: 1.5
  default_burst: 3
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Inspector.Concurrency != 6 || cfg.Inspector.IgnoreRobots != true {
		t.Fatalf("expected inspector overrides to apply")
	}
	if cfg.Inspector.MaxURLsPerProject != 12 {
		t.Fatalf("expected max_urls_per_project 12, got %d", cfg.Inspector.MaxURLsPerProject)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.Bucket != "bucket" {
		t.Fatalf("expected gcs storage overrides: %+v", cfg.Storage)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.DefaultRPS != 1.5 {
		t.Fatalf("expected rate limit overrides: %+v", cfg.RateLimit)
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("expected default memory storage, got %q", cfg.Storage.Backend)
	}
	if cfg.Inspector.MaxStylesheets != 20 {
		t.Fatalf("expected default max_stylesheets 20, got %d", cfg.Inspector.MaxStylesheets)
	}
	if cfg.Progress.Batch.MaxEvents != 1000 {
		t.Fatalf("expected default batch size 1000, got %d", cfg.Progress.Batch.MaxEvents)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Inspector: InspectorConfig{Concurrency: 1, MaxURLsPerProject: 10},
		HTTP:      HTTPConfig{TimeoutSeconds: 10},
		Storage:   StorageConfig{Backend: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Inspector.Concurrency = 0
				return c
			}(),
			want: "inspector.concurrency",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "unknown storage backend",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			}(),
			want: "storage.backend",
		},
		{
			name: "gcs missing bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "gcs"
				return c
			}(),
			want: "storage.bucket",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
