// Package config loads stemflow configuration from YAML files and
// environment variables. Every file key has an environment override:
// the variable name is the uppercased key path joined with "__" under
// the STEMFLOW prefix, e.g. registry.encryption_key becomes
// STEMFLOW__REGISTRY__ENCRYPTION_KEY.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the project-wide prefix for environment overrides.
const EnvPrefix = "STEMFLOW"

// Environment variable names recognized by ApplyEnv.
const (
	EnvRegistryEncryptionKey               = "STEMFLOW__REGISTRY__ENCRYPTION_KEY"
	EnvRegistryWarnOnDuplicateRegistration = "STEMFLOW__REGISTRY__WARN_ON_DUPLICATE_REGISTRATION"
	EnvRegistryLoadOnStartup               = "STEMFLOW__REGISTRY__LOAD_ON_STARTUP"
)

// Config is the root configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
}

// RegistryConfig configures the flow registry.
type RegistryConfig struct {
	// EncryptionKey wraps serialized registry snapshots. Empty disables
	// encryption; the registry warns and serializes in clear.
	EncryptionKey string `yaml:"encryption_key"`

	// WarnOnDuplicateRegistration emits a warning when a flow is
	// registered under an existing (project, name, version) key.
	WarnOnDuplicateRegistration bool `yaml:"warn_on_duplicate_registration"`

	// LoadOnStartup names a serialized registry snapshot to load at
	// process init. Empty disables startup loading.
	LoadOnStartup string `yaml:"load_on_startup"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Registry: RegistryConfig{
			WarnOnDuplicateRegistration: true,
		},
	}
}

// LoadFile reads a YAML config file over the defaults. A missing path
// is an error; use Load for the file-then-env chain that tolerates an
// absent file.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	// #nosec G304 -- path comes from explicit caller configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// Load resolves configuration: defaults, then the YAML file at path if
// it exists (empty path skips the file), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if clean := strings.TrimSpace(path); clean != "" {
		loaded, err := LoadFile(clean)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		} else {
			cfg = loaded
		}
	}
	return cfg.ApplyEnv(os.LookupEnv), nil
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() Config {
	return Default().ApplyEnv(os.LookupEnv)
}

// ApplyEnv overlays environment overrides onto the config. The lookup
// function is injectable so tests can supply their own environment.
// Malformed boolean values are ignored and the prior value kept.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) Config {
	if v, ok := lookup(EnvRegistryEncryptionKey); ok {
		c.Registry.EncryptionKey = v
	}
	if v, ok := lookup(EnvRegistryWarnOnDuplicateRegistration); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Registry.WarnOnDuplicateRegistration = b
		}
	}
	if v, ok := lookup(EnvRegistryLoadOnStartup); ok {
		c.Registry.LoadOnStartup = v
	}
	return c
}
