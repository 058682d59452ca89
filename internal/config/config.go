package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	// Root is the directory under which every task workspace lives.
	// Required; the server refuses to start without it.
	Root string `mapstructure:"root"`

	// DBPath is where run history is kept.
	DBPath string `mapstructure:"db_path"`
}

// LanguageVersions are the image version tags per supported language.
type LanguageVersions struct {
	Python string `mapstructure:"python"`
	NodeJS string `mapstructure:"nodejs"`
	Bash   string `mapstructure:"bash"`
}

type SandboxConfig struct {
	// Backend selects the sandbox implementation: "docker" or "local".
	Backend string `mapstructure:"backend"`

	MemoryMB  int     `mapstructure:"memory_mb"`
	CPUCores  float64 `mapstructure:"cpu_cores"`
	PIDsLimit int     `mapstructure:"pids_limit"`
	Network   bool    `mapstructure:"network"`

	// MaxRunSeconds caps a session's wall-clock runtime. 0 = unlimited.
	MaxRunSeconds int `mapstructure:"max_run_seconds"`
}

type AuthConfig struct {
	// Token, when set, must be presented by websocket clients.
	// Empty = the upstream identity layer is trusted to gate access.
	Token string `mapstructure:"token"`
}

type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Storage  StorageConfig    `mapstructure:"storage"`
	Versions LanguageVersions `mapstructure:"versions"`
	Sandbox  SandboxConfig    `mapstructure:"sandbox"`
	Auth     AuthConfig       `mapstructure:"auth"`
}

// MaxRunDuration returns the configured runtime cap, 0 for unlimited.
func (c *Config) MaxRunDuration() time.Duration {
	return time.Duration(c.Sandbox.MaxRunSeconds) * time.Second
}

// Load reads palrun.yaml (optional) and PAL_* environment variables.
// The storage root has no default: a missing PAL_STORAGE_ROOT is a
// startup error, never a silent fallback.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("palrun")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.palrun")

	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".palrun", "history.db"))
	v.SetDefault("versions.python", "3.9.1")
	v.SetDefault("versions.nodejs", "14.15.1")
	v.SetDefault("versions.bash", "1.0.0")
	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.cpu_cores", 1.0)
	v.SetDefault("sandbox.pids_limit", 64)
	v.SetDefault("sandbox.network", false)
	v.SetDefault("sandbox.max_run_seconds", 0)

	// Environment names kept from the original backend deployment.
	v.BindEnv("storage.root", "PAL_STORAGE_ROOT")
	v.BindEnv("versions.python", "PAL_PYTHON_VERSION")
	v.BindEnv("versions.nodejs", "PAL_NODEJS_VERSION")
	v.BindEnv("versions.bash", "PAL_BASH_VERSION")
	v.BindEnv("server.port", "PAL_PORT")
	v.BindEnv("sandbox.backend", "PAL_SANDBOX_BACKEND")
	v.BindEnv("auth.token", "PAL_GATEWAY_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No config file is fine; env + defaults cover everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Storage.Root == "" {
		return nil, fmt.Errorf("storage root not configured (set PAL_STORAGE_ROOT or storage.root)")
	}

	return &cfg, nil
}
