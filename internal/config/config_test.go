package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.Timeout)
	}
	if cfg.ExcerptLength != 500 {
		t.Fatalf("expected excerpt length 500, got %d", cfg.ExcerptLength)
	}
	if cfg.InvocationTimeout != 2*time.Minute {
		t.Fatalf("expected 2m invocation timeout, got %s", cfg.InvocationTimeout)
	}
	if cfg.DrugBank.APIKey != "" || cfg.PubMed.Email != "" {
		t.Fatal("credentials must not have defaults")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "biobroker.yaml")
	content := `
log_level: debug
timeout: 5s
invocation_timeout: 45s
pubmed:
  email: lab@example.org
biorxiv:
  server: medrxiv
journal:
  path: /tmp/journal.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BIOBROKER_TIMEOUT", "12s")
	t.Setenv("BIOBROKER_INVOCATION_TIMEOUT", "90s")
	t.Setenv("NCBI_API_KEY", "ncbi-key")
	t.Setenv("DRUGBANK_API_KEY", "db-key")
	t.Setenv("BIOBROKER_HTTP_JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug, got %q", cfg.LogLevel)
	}
	if cfg.Timeout != 12*time.Second {
		t.Fatalf("env must win over file, got %s", cfg.Timeout)
	}
	if cfg.InvocationTimeout != 90*time.Second {
		t.Fatalf("env must win over file for invocation_timeout, got %s", cfg.InvocationTimeout)
	}
	if cfg.PubMed.Email != "lab@example.org" {
		t.Fatalf("unexpected email %q", cfg.PubMed.Email)
	}
	if cfg.PubMed.APIKey != "ncbi-key" {
		t.Fatalf("unexpected ncbi key %q", cfg.PubMed.APIKey)
	}
	if cfg.DrugBank.APIKey != "db-key" {
		t.Fatalf("unexpected drugbank key %q", cfg.DrugBank.APIKey)
	}
	if cfg.BioRxiv.Server != "medrxiv" {
		t.Fatalf("unexpected server %q", cfg.BioRxiv.Server)
	}
	if cfg.HTTP.JWTSecret != "s3cret" {
		t.Fatalf("unexpected jwt secret %q", cfg.HTTP.JWTSecret)
	}
	if cfg.Journal.Path != "/tmp/journal.db" {
		t.Fatalf("unexpected journal path %q", cfg.Journal.Path)
	}
	if cfg.ClinicalTrials.BaseURL != DefaultConfig().ClinicalTrials.BaseURL {
		t.Fatalf("unset values must keep defaults, got %q", cfg.ClinicalTrials.BaseURL)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"negative invocation timeout", func(c *Config) { c.InvocationTimeout = -time.Second }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }},
		{"zero excerpt", func(c *Config) { c.ExcerptLength = 0 }},
		{"bad server", func(c *Config) { c.BioRxiv.Server = "arxiv" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}
}
