package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Name     string        `yaml:"name" envconfig:"CFGTEST_NAME"`
	Port     int           `yaml:"port" envconfig:"CFGTEST_PORT"`
	Debug    bool          `yaml:"debug" envconfig:"CFGTEST_DEBUG"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"CFGTEST_TIMEOUT"`
	Database struct {
		DSN string `yaml:"dsn" envconfig:"CFGTEST_DSN"`
	} `yaml:"database" envconfig:"DB"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
name: test-app
port: 8080
debug: false
timeout: 45s
database:
  dsn: sqlite3://test.db
`)

	var cfg testConfig
	if err := Load(path, "TEST", &cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Name != "test-app" {
		t.Fatalf("expected 'test-app', got '%s'", cfg.Name)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected 8080, got %d", cfg.Port)
	}
	if cfg.Debug {
		t.Fatal("expected debug to be false")
	}
	if cfg.Timeout != 45*time.Second {
		t.Fatalf("expected 45s, got %s", cfg.Timeout)
	}
	if cfg.Database.DSN != "sqlite3://test.db" {
		t.Fatalf("unexpected dsn %q", cfg.Database.DSN)
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, `
name: default
port: 3000
timeout: 10s
`)

	// Prefixed and bare names are both honoured.
	t.Setenv("TEST_CFGTEST_NAME", "from-env")
	t.Setenv("CFGTEST_PORT", "9090")
	t.Setenv("CFGTEST_DEBUG", "true")
	t.Setenv("CFGTEST_DSN", "sqlite3://env.db")

	var cfg testConfig
	if err := Load(path, "TEST", &cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Name != "from-env" {
		t.Fatalf("expected 'from-env', got '%s'", cfg.Name)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected 9090, got %d", cfg.Port)
	}
	if !cfg.Debug {
		t.Fatal("expected debug to be true from env")
	}
	if cfg.Timeout != 10*time.Second {
		t.Fatalf("unset env must keep file value, got %s", cfg.Timeout)
	}
	if cfg.Database.DSN != "sqlite3://env.db" {
		t.Fatalf("expected nested override, got %q", cfg.Database.DSN)
	}
}

func TestEnvOverride_BadValue(t *testing.T) {
	path := writeConfig(t, "port: 3000\n")
	t.Setenv("CFGTEST_PORT", "not-a-number")

	var cfg testConfig
	if err := Load(path, "TEST", &cfg); err == nil {
		t.Fatal("expected error for malformed env value")
	}
}

func TestExpandEnvInFile(t *testing.T) {
	t.Setenv("CONFIG_TEST_HOST", "db.internal")
	path := writeConfig(t, "database:\n  dsn: postgres://${CONFIG_TEST_HOST}/app\n")

	var cfg testConfig
	if err := Load(path, "TEST", &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Database.DSN != "postgres://db.internal/app" {
		t.Fatalf("unexpected dsn %q", cfg.Database.DSN)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg := testConfig{Name: "preset"}
	if err := LoadOrDefault("/nonexistent/config.yaml", "TEST", &cfg); err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Name != "preset" {
		t.Fatalf("expected preset name to survive, got '%s'", cfg.Name)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "name: [unclosed\n")
	var cfg testConfig
	if err := Load(path, "TEST", &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}
