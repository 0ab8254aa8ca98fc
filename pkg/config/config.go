// Package config provides YAML configuration loading with environment variable override.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file into the given struct, then applies
// environment variable overrides.
//
// Overrides follow envconfig rules: a field tagged `envconfig:"NAME"` is read
// from PREFIX_NAME, falling back to NAME. Nested structs extend the prefix.
// Unset variables leave the loaded value in place.
func Load(path, prefix string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	// Expand environment variables in the YAML
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return ApplyEnv(prefix, out)
}

// LoadOrDefault tries to load config from path. When the file doesn't exist
// out keeps its current values and only the environment overrides apply.
func LoadOrDefault(path, prefix string, out any) error {
	if path == "" {
		return ApplyEnv(prefix, out)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ApplyEnv(prefix, out)
	}
	return Load(path, prefix, out)
}

// ApplyEnv sets struct fields from environment variables.
func ApplyEnv(prefix string, out any) error {
	if err := envconfig.Process(prefix, out); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}
	return nil
}
