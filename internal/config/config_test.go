package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAL_STORAGE_ROOT", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Versions.Python != "3.9.1" || cfg.Versions.NodeJS != "14.15.1" || cfg.Versions.Bash != "1.0.0" {
		t.Errorf("versions = %+v", cfg.Versions)
	}
	if cfg.Sandbox.Backend != "docker" {
		t.Errorf("backend = %q, want docker", cfg.Sandbox.Backend)
	}
	if cfg.Sandbox.Network {
		t.Error("network should default to disabled")
	}
	if cfg.MaxRunDuration() != 0 {
		t.Errorf("max run duration = %s, want unlimited", cfg.MaxRunDuration())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PAL_STORAGE_ROOT", t.TempDir())
	t.Setenv("PAL_PORT", "9090")
	t.Setenv("PAL_PYTHON_VERSION", "3.11.4")
	t.Setenv("PAL_SANDBOX_BACKEND", "local")
	t.Setenv("PAL_GATEWAY_TOKEN", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Versions.Python != "3.11.4" {
		t.Errorf("python version = %q, want 3.11.4", cfg.Versions.Python)
	}
	if cfg.Sandbox.Backend != "local" {
		t.Errorf("backend = %q, want local", cfg.Sandbox.Backend)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q", cfg.Auth.Token)
	}
}

func TestLoadMissingStorageRoot(t *testing.T) {
	t.Setenv("PAL_STORAGE_ROOT", "")

	if _, err := Load(); err == nil {
		t.Error("expected error without a storage root")
	}
}

func TestMaxRunDuration(t *testing.T) {
	cfg := &Config{}
	cfg.Sandbox.MaxRunSeconds = 30
	if got := cfg.MaxRunDuration(); got != 30*time.Second {
		t.Errorf("MaxRunDuration = %s, want 30s", got)
	}
}
