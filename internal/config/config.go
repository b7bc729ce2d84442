// Package config loads engine-exec settings from defaults, an optional YAML
// file and ENGINE_EXEC_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "engine-exec"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// LocalConfigFile is looked up in the working directory.
	LocalConfigFile = AppName + ".yaml"
	// EnvPrefix is prepended to every environment override.
	EnvPrefix = "ENGINE_EXEC"
)

// Config holds the engine-exec settings.
type Config struct {
	// Engine is the container engine binary, resolved through PATH when relative.
	Engine string `mapstructure:"engine"`
	// CommandTimeout bounds each CLI invocation.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	// OutputLimit caps retained bytes per stream; 0 means unlimited.
	OutputLimit int `mapstructure:"output_limit"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// Sudo runs shell commands through sudo by default.
	Sudo bool `mapstructure:"sudo"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Engine:         "docker",
		CommandTimeout: 2 * time.Minute,
		OutputLimit:    0,
		LogLevel:       "info",
		Sudo:           false,
	}
}

// LoadOptions controls where Load looks for a file.
type LoadOptions struct {
	// ConfigFile is used exclusively when set and must exist.
	ConfigFile string
	// ConfigDir overrides the user config directory.
	ConfigDir string
}

// Load resolves the configuration. A missing optional file is not an error.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("engine", defaults.Engine)
	v.SetDefault("command_timeout", defaults.CommandTimeout)
	v.SetDefault("output_limit", defaults.OutputLimit)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("sudo", defaults.Sudo)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	path, err := resolveFile(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no executor can run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Engine) == "" {
		errs = append(errs, errors.New("engine must not be blank"))
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("command_timeout must not be negative, got %s", c.CommandTimeout))
	}
	if c.OutputLimit < 0 {
		errs = append(errs, fmt.Errorf("output_limit must not be negative, got %d", c.OutputLimit))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ConfigDir returns $XDG_CONFIG_HOME/engine-exec, defaulting to ~/.config/engine-exec.
func ConfigDir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName), nil
}

func resolveFile(opts LoadOptions) (string, error) {
	if opts.ConfigFile != "" {
		if !fileExists(opts.ConfigFile) {
			return "", fmt.Errorf("config file not found: %s", opts.ConfigFile)
		}
		return opts.ConfigFile, nil
	}

	dir := opts.ConfigDir
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	if path := filepath.Join(dir, ConfigFileName+".yaml"); fileExists(path) {
		return path, nil
	}
	if fileExists(LocalConfigFile) {
		return LocalConfigFile, nil
	}
	return "", nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
