// Package config loads process-wide configuration from ~/.bastion/config.yaml
// with environment variable overrides. It also resolves the master secrets
// for the field codecs, which is where the development/production split
// matters: production requires explicit secret references and fails startup
// without them, development falls back to a locally generated key.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/majorcontext/bastion/internal/keyring"
	"github.com/majorcontext/bastion/internal/secrets"
)

// Environment controls startup strictness.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// ConfigError indicates required configuration is missing or invalid. In
// production this is fatal at startup, never a per-call error.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config is the process-wide configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	VMAPI struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key"`
		// Project is the control-plane project sandboxes are created under.
		Project string `yaml:"project"`
	} `yaml:"vm_api"`

	// Keys holds secret references (env://, file://, sm://) for the two
	// codec key classes. Separate references keep credential and PII key
	// rotation independent.
	Keys struct {
		CredentialSecretRef string `yaml:"credential_secret_ref"`
		PIISecretRef        string `yaml:"pii_secret_ref"`
	} `yaml:"keys"`

	DataDir string `yaml:"data_dir"`

	Debug struct {
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"debug"`
}

// Dir returns the bastion configuration directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".bastion")
	}
	return filepath.Join(home, ".bastion")
}

// Load reads config.yaml (if present) and applies environment overrides.
func Load() (*Config, error) {
	cfg := &Config{Environment: Development}
	cfg.Debug.RetentionDays = 7

	path := filepath.Join(Dir(), "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if cfg.DataDir == "" {
		cfg.DataDir = Dir()
	}

	switch cfg.Environment {
	case Development, Production:
	default:
		return nil, &ConfigError{Field: "environment",
			Reason: fmt.Sprintf("must be %q or %q, got %q", Development, Production, cfg.Environment)}
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BASTION_ENV"); v != "" {
		cfg.Environment = Environment(v)
	}
	if v := os.Getenv("BASTION_VM_API_URL"); v != "" {
		cfg.VMAPI.URL = v
	}
	if v := os.Getenv("BASTION_VM_API_KEY"); v != "" {
		cfg.VMAPI.APIKey = v
	}
	if v := os.Getenv("BASTION_VM_PROJECT"); v != "" {
		cfg.VMAPI.Project = v
	}
	if v := os.Getenv("BASTION_CREDENTIAL_KEY_REF"); v != "" {
		cfg.Keys.CredentialSecretRef = v
	}
	if v := os.Getenv("BASTION_PII_KEY_REF"); v != "" {
		cfg.Keys.PIISecretRef = v
	}
	if v := os.Getenv("BASTION_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BASTION_DEBUG_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Debug.RetentionDays = days
		}
	}
}

// MasterSecrets resolves the key material for the credential and PII codecs.
//
// Production requires both references; a missing one is a ConfigError and the
// process must not start. Development falls back to a per-machine key from
// the OS keychain (or a 0600 file) so local setups work with zero config.
func (c *Config) MasterSecrets(ctx context.Context) (credential, pii []byte, err error) {
	credential, err = c.resolveKey(ctx, "keys.credential_secret_ref", c.Keys.CredentialSecretRef)
	if err != nil {
		return nil, nil, err
	}
	pii, err = c.resolveKey(ctx, "keys.pii_secret_ref", c.Keys.PIISecretRef)
	if err != nil {
		return nil, nil, err
	}
	return credential, pii, nil
}

func (c *Config) resolveKey(ctx context.Context, field, ref string) ([]byte, error) {
	if ref == "" {
		if c.Environment == Production {
			return nil, &ConfigError{Field: field,
				Reason: "secret reference is required in production (env://, file:// or sm://)"}
		}
		return keyring.GetOrCreateKey()
	}

	value, err := secrets.Resolve(ctx, ref)
	if err != nil {
		return nil, &ConfigError{Field: field, Reason: err.Error()}
	}
	return []byte(value), nil
}
