package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Environment != Development {
		t.Errorf("Environment = %q, want %q", cfg.Environment, Development)
	}
	if cfg.Debug.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.Debug.RetentionDays)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir should default to the config dir")
	}
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".bastion")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	yaml := `
environment: production
vm_api:
  url: https://api.example.com
  api_key: from-file
keys:
  credential_secret_ref: env://CRED_KEY
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	// Env wins over the file.
	t.Setenv("BASTION_VM_API_KEY", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Environment != Production {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
	if cfg.VMAPI.URL != "https://api.example.com" {
		t.Errorf("URL = %q", cfg.VMAPI.URL)
	}
	if cfg.VMAPI.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env override", cfg.VMAPI.APIKey)
	}
	if cfg.Keys.CredentialSecretRef != "env://CRED_KEY" {
		t.Errorf("CredentialSecretRef = %q", cfg.Keys.CredentialSecretRef)
	}
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BASTION_ENV", "staging")

	_, err := Load()
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("Load() error = %v, want ConfigError", err)
	}
	if cerr.Field != "environment" {
		t.Errorf("Field = %q", cerr.Field)
	}
}

func TestMasterSecrets_ProductionRequiresRefs(t *testing.T) {
	cfg := &Config{Environment: Production}

	_, _, err := cfg.MasterSecrets(context.Background())
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("MasterSecrets() error = %v, want ConfigError", err)
	}
	if cerr.Field != "keys.credential_secret_ref" {
		t.Errorf("Field = %q", cerr.Field)
	}
}

func TestMasterSecrets_ResolvesReferences(t *testing.T) {
	t.Setenv("CRED_SECRET", "credential-material")
	t.Setenv("PII_SECRET", "pii-material")

	cfg := &Config{Environment: Production}
	cfg.Keys.CredentialSecretRef = "env://CRED_SECRET"
	cfg.Keys.PIISecretRef = "env://PII_SECRET"

	cred, pii, err := cfg.MasterSecrets(context.Background())
	if err != nil {
		t.Fatalf("MasterSecrets() error = %v", err)
	}
	if string(cred) != "credential-material" || string(pii) != "pii-material" {
		t.Errorf("MasterSecrets() = %q, %q", cred, pii)
	}
}

func TestMasterSecrets_BadReferenceIsConfigError(t *testing.T) {
	cfg := &Config{Environment: Production}
	cfg.Keys.CredentialSecretRef = "env://UNSET_SECRET_VAR"
	cfg.Keys.PIISecretRef = "env://ALSO_UNSET"

	_, _, err := cfg.MasterSecrets(context.Background())
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("MasterSecrets() error = %v, want ConfigError", err)
	}
}

func TestMasterSecrets_DevelopmentFallsBackToKeyring(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BASTION_KEYRING_SERVICE", "bastion-config-test")

	cfg := &Config{Environment: Development}
	cred, pii, err := cfg.MasterSecrets(context.Background())
	if err != nil {
		t.Fatalf("MasterSecrets() error = %v", err)
	}
	if len(cred) == 0 || len(pii) == 0 {
		t.Error("expected generated key material in development")
	}
}
