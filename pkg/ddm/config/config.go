// Package config loads ddm's configuration from file and environment.
// Everything here except the per-component log levels has a flag-level
// override; the file only supplies defaults for preferences that are
// annoying to repeat, like ignore axes or disabling color.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	// Ignore is the default comparison axes to disable, same token list as
	// the -i flag.
	Ignore string `mapstructure:"ignore"`

	// NoColor disables the lipgloss banner styling.
	NoColor bool `mapstructure:"no_color"`

	// SingleThread disables the parallel source scan.
	SingleThread bool `mapstructure:"single_thread"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// Load reads the configuration. Config file locations (in order):
//   - $XDG_CONFIG_HOME/ddm/config.yaml
//   - $HOME/.config/ddm/config.yaml
//
// Environment variables are prefixed with DDM_ (e.g. DDM_NO_COLOR).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "ddm"))
	} else {
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "ddm"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "ddm"))
	}

	v.SetEnvPrefix("DDM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("ignore", "")
	v.SetDefault("no_color", false)
	v.SetDefault("single_thread", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.components", map[string]string{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
