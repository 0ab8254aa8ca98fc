// Package config holds the biobroker runtime configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	appconfig "github.com/RobinCoderZhao/biobroker/pkg/config"
)

// EnvPrefix prefixes every environment override (BIOBROKER_TIMEOUT,
// BIOBROKER_PUBMED_BASE_URL, ...). Upstream credentials are also read under
// their conventional names (NCBI_API_KEY, DRUGBANK_API_KEY).
const EnvPrefix = "BIOBROKER"

// Config is the main configuration for all brokers.
type Config struct {
	LogLevel       string        `yaml:"log_level" split_words:"true"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency" split_words:"true"`
	ExcerptLength  int           `yaml:"excerpt_length" split_words:"true"`

	// InvocationTimeout bounds one tool call end to end, across every
	// upstream request it makes. Zero disables the bound.
	InvocationTimeout time.Duration `yaml:"invocation_timeout" split_words:"true"`

	Journal JournalConfig `yaml:"journal"`
	HTTP    HTTPConfig    `yaml:"http"`

	PubMed         PubMedConfig         `yaml:"pubmed" envconfig:"PUBMED"`
	BioRxiv        BioRxivConfig        `yaml:"biorxiv" envconfig:"BIORXIV"`
	ClinicalTrials ClinicalTrialsConfig `yaml:"clinicaltrials" envconfig:"CLINICALTRIALS"`
	DrugBank       DrugBankConfig       `yaml:"drugbank" envconfig:"DRUGBANK"`
	OpenTargets    OpenTargetsConfig    `yaml:"opentargets" envconfig:"OPENTARGETS"`
}

// JournalConfig controls the invocation journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds settings for the HTTP transport.
type HTTPConfig struct {
	Addr       string `yaml:"addr"`
	JWTSecret  string `yaml:"jwt_secret" split_words:"true"`
	APIKeyHash string `yaml:"api_key_hash" split_words:"true"`
}

// PubMedConfig configures NCBI Entrez access.
type PubMedConfig struct {
	BaseURL string `yaml:"base_url" split_words:"true"`
	Email   string `yaml:"email" envconfig:"NCBI_EMAIL"`
	Tool    string `yaml:"tool" envconfig:"NCBI_TOOL"`
	APIKey  string `yaml:"api_key" envconfig:"NCBI_API_KEY"`
}

// BioRxivConfig configures the bioRxiv/medRxiv details API.
type BioRxivConfig struct {
	BaseURL string `yaml:"base_url" split_words:"true"`
	Server  string `yaml:"server" envconfig:"BIORXIV_SERVER"`
}

// ClinicalTrialsConfig configures the ClinicalTrials.gov v2 API.
type ClinicalTrialsConfig struct {
	BaseURL string `yaml:"base_url" split_words:"true"`
}

// DrugBankConfig configures the DrugBank API.
type DrugBankConfig struct {
	BaseURL string `yaml:"base_url" split_words:"true"`
	APIKey  string `yaml:"api_key" envconfig:"DRUGBANK_API_KEY"`
}

// OpenTargetsConfig configures the Open Targets Platform GraphQL API.
type OpenTargetsConfig struct {
	BaseURL string `yaml:"base_url" split_words:"true"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:       "info",
		Timeout:        30 * time.Second,
		MaxConcurrency: 4,
		ExcerptLength:  500,

		InvocationTimeout: 2 * time.Minute,
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		PubMed: PubMedConfig{
			BaseURL: "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			Tool:    "biobroker",
		},
		BioRxiv: BioRxivConfig{
			BaseURL: "https://api.biorxiv.org",
			Server:  "biorxiv",
		},
		ClinicalTrials: ClinicalTrialsConfig{
			BaseURL: "https://clinicaltrials.gov/api/v2",
		},
		DrugBank: DrugBankConfig{
			BaseURL: "https://api.drugbank.com/v1",
		},
		OpenTargets: OpenTargetsConfig{
			BaseURL: "https://api.platform.opentargets.org/api/v4",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// it exists) and environment overrides. An empty path looks for
// ./biobroker.yaml and then ~/.biobroker.yaml.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := appconfig.LoadOrDefault(path, EnvPrefix, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if _, err := os.Stat("biobroker.yaml"); err == nil {
		return "biobroker.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".biobroker.yaml")
}

// Validate rejects values no broker can run with. Missing credentials are
// not checked here; they surface per invocation.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.InvocationTimeout < 0 {
		return fmt.Errorf("invocation_timeout must not be negative, got %s", c.InvocationTimeout)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.ExcerptLength < 1 {
		return fmt.Errorf("excerpt_length must be at least 1, got %d", c.ExcerptLength)
	}
	switch c.BioRxiv.Server {
	case "biorxiv", "medrxiv":
	default:
		return fmt.Errorf("biorxiv.server must be biorxiv or medrxiv, got %q", c.BioRxiv.Server)
	}
	return nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger builds the process logger. Output goes to stderr because stdout
// carries protocol frames.
func (c Config) Logger() *slog.Logger {
	level, _ := ParseLevel(c.LogLevel)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
