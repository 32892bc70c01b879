package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config models librarian.yml plus LIBRARIAN_* environment overrides.
type Config struct {
	Store struct {
		// Backend selects the document store implementation:
		// "sqlite" (default) or "bolt".
		Backend   string `mapstructure:"backend"`
		Workspace string `mapstructure:"workspace"`
	} `mapstructure:"store"`
	Tokens struct {
		// InviteSecret signs anonymized invitation tokens.
		InviteSecret string `mapstructure:"invite_secret"`
	} `mapstructure:"tokens"`
	Payments struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"payments"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Store.Backend = "sqlite"
	cfg.Store.Workspace = "."
	cfg.Tokens.InviteSecret = ""
	cfg.Payments.Enabled = true
	return &cfg
}

// Load reads librarian.yml from the workspace (if present) and applies
// environment overrides.
func Load(workspace string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIBRARIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.workspace", workspace)
	v.SetDefault("payments.enabled", true)

	v.SetConfigName("librarian")
	v.SetConfigType("yaml")
	if workspace == "" {
		workspace = "."
	}
	v.AddConfigPath(workspace)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "", "sqlite", "bolt":
	default:
		return fmt.Errorf("config.store.backend must be sqlite or bolt, got %q", c.Store.Backend)
	}
	return nil
}
