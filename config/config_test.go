package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.Registry.WarnOnDuplicateRegistration {
		t.Error("warn_on_duplicate_registration should default to true")
	}
	if cfg.Registry.EncryptionKey != "" {
		t.Error("encryption_key should default to empty")
	}
	if cfg.Registry.LoadOnStartup != "" {
		t.Error("load_on_startup should default to empty")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stemflow.yaml")
	content := `
registry:
  encryption_key: sekrit
  warn_on_duplicate_registration: false
  load_on_startup: /var/lib/stemflow/registry.snap
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Registry.EncryptionKey != "sekrit" {
		t.Errorf("EncryptionKey = %q, want %q", cfg.Registry.EncryptionKey, "sekrit")
	}
	if cfg.Registry.WarnOnDuplicateRegistration {
		t.Error("WarnOnDuplicateRegistration should be false")
	}
	if cfg.Registry.LoadOnStartup != "/var/lib/stemflow/registry.snap" {
		t.Errorf("LoadOnStartup = %q", cfg.Registry.LoadOnStartup)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile of a missing path should fail")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvRegistryEncryptionKey:               "from-env",
		EnvRegistryWarnOnDuplicateRegistration: "false",
		EnvRegistryLoadOnStartup:               "/tmp/reg.snap",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default().ApplyEnv(lookup)
	if cfg.Registry.EncryptionKey != "from-env" {
		t.Errorf("EncryptionKey = %q, want %q", cfg.Registry.EncryptionKey, "from-env")
	}
	if cfg.Registry.WarnOnDuplicateRegistration {
		t.Error("env override should disable duplicate warnings")
	}
	if cfg.Registry.LoadOnStartup != "/tmp/reg.snap" {
		t.Errorf("LoadOnStartup = %q", cfg.Registry.LoadOnStartup)
	}
}

func TestApplyEnv_MalformedBoolKept(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == EnvRegistryWarnOnDuplicateRegistration {
			return "not-a-bool", true
		}
		return "", false
	}
	cfg := Default().ApplyEnv(lookup)
	if !cfg.Registry.WarnOnDuplicateRegistration {
		t.Error("malformed boolean should keep the prior value")
	}
}

func TestLoad_EmptyPathUsesEnvOnly(t *testing.T) {
	t.Setenv(EnvRegistryEncryptionKey, "env-key")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Registry.EncryptionKey != "env-key" {
		t.Errorf("EncryptionKey = %q, want %q", cfg.Registry.EncryptionKey, "env-key")
	}
}
