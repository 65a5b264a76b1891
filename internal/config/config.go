// Package config loads the service configuration from defaults, an optional
// config.yaml, and GCC_-prefixed environment variables (in increasing
// precedence).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZUENS2020/gcc-mem-system/internal/validate"
	"github.com/spf13/viper"
)

// Config holds everything the engine and its transports consume from the
// environment.
type Config struct {
	DataRoot        string        `yaml:"data_root" mapstructure:"data_root"`
	LockTimeout     time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
	MaxIDLength     int           `yaml:"max_id_length" mapstructure:"max_id_length"`
	MaxStringLength int           `yaml:"max_string_length" mapstructure:"max_string_length"`
	MinLimit        int           `yaml:"min_limit" mapstructure:"min_limit"`
	MaxLimit        int           `yaml:"max_limit" mapstructure:"max_limit"`
	LogLevel        string        `yaml:"log_level" mapstructure:"log_level"`
	AuditDir        string        `yaml:"audit_dir" mapstructure:"audit_dir"`
	Git             GitConfig     `yaml:"git" mapstructure:"git"`
	Server          ServerConfig  `yaml:"server" mapstructure:"server"`
}

// GitConfig is the committer identity and default branch used by the
// version-control adapter.
type GitConfig struct {
	Name          string `yaml:"name" mapstructure:"name"`
	Email         string `yaml:"email" mapstructure:"email"`
	DefaultBranch string `yaml:"default_branch" mapstructure:"default_branch"`
}

// ServerConfig is the HTTP transport configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataRoot:        "/data",
		LockTimeout:     10 * time.Second,
		MaxIDLength:     100,
		MaxStringLength: 10000,
		MinLimit:        1,
		MaxLimit:        1000,
		LogLevel:        "info",
		Git: GitConfig{
			Name:          "GCC Agent",
			Email:         "gcc@example.com",
			DefaultBranch: "main",
		},
		Server: ServerConfig{Addr: ":8000"},
	}
}

// Limits returns the input-validation bounds derived from the
// configuration.
func (c *Config) Limits() validate.Limits {
	return validate.Limits{
		MaxIDLength:     c.MaxIDLength,
		MaxStringLength: c.MaxStringLength,
		MinLimit:        c.MinLimit,
		MaxLimit:        c.MaxLimit,
	}
}

// Load reads configuration from config.yaml (searched in the working
// directory and /etc/gccmem) and GCC_* environment variables, layered over
// the defaults. A missing config file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/gccmem")

	v.SetEnvPrefix("GCC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults must be registered so AutomaticEnv picks up keys that the
	// config file never mentions.
	v.SetDefault("data_root", cfg.DataRoot)
	v.SetDefault("lock_timeout", cfg.LockTimeout)
	v.SetDefault("max_id_length", cfg.MaxIDLength)
	v.SetDefault("max_string_length", cfg.MaxStringLength)
	v.SetDefault("min_limit", cfg.MinLimit)
	v.SetDefault("max_limit", cfg.MaxLimit)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("audit_dir", cfg.AuditDir)
	v.SetDefault("git.name", cfg.Git.Name)
	v.SetDefault("git.email", cfg.Git.Email)
	v.SetDefault("git.default_branch", cfg.Git.DefaultBranch)
	v.SetDefault("server.addr", cfg.Server.Addr)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.AuditDir == "" {
		cfg.AuditDir = cfg.DataRoot + "/logs"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency of the loaded values.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("data_root must not be empty")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive, got %s", c.LockTimeout)
	}
	if c.MaxIDLength <= 0 {
		return fmt.Errorf("max_id_length must be positive, got %d", c.MaxIDLength)
	}
	if c.MinLimit < 1 || c.MaxLimit < c.MinLimit {
		return fmt.Errorf("limit bounds invalid: min=%d max=%d", c.MinLimit, c.MaxLimit)
	}
	if c.Git.DefaultBranch == "" {
		return fmt.Errorf("git.default_branch must not be empty")
	}
	return nil
}
