// Package config loads nbslot's configuration from defaults, an optional
// YAML file and NBSLOT_* environment variables, in increasing precedence.
//
// The container runtime endpoint is not part of this configuration: the
// Docker client reads DOCKER_HOST, DOCKER_CERT_PATH and DOCKER_TLS_VERIFY
// from the environment itself.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/everydev1618/nbslot"
)

// EnvPrefix prefixes environment overrides, e.g. NBSLOT_SLOT_IMAGE.
const EnvPrefix = "NBSLOT"

// Config is the full nbslot configuration.
type Config struct {
	Addr  string      `yaml:"addr" mapstructure:"addr"`
	Log   LogConfig   `yaml:"log" mapstructure:"log"`
	Slot  SlotConfig  `yaml:"slot" mapstructure:"slot"`
	Clone CloneConfig `yaml:"clone" mapstructure:"clone"`
	Token TokenConfig `yaml:"token" mapstructure:"token"`
	Sweep SweepConfig `yaml:"sweep" mapstructure:"sweep"`
	Pull  bool        `yaml:"pull" mapstructure:"pull"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SlotConfig describes the compute container.
type SlotConfig struct {
	Name       string `yaml:"name" mapstructure:"name"`
	Image      string `yaml:"image" mapstructure:"image"`
	Port       int    `yaml:"port" mapstructure:"port"`
	Workspace  string `yaml:"workspace" mapstructure:"workspace"`
	Domain     string `yaml:"domain" mapstructure:"domain"`
	HostPrefix int    `yaml:"host_prefix" mapstructure:"host_prefix"`
}

// CloneConfig describes the volume copy helper.
type CloneConfig struct {
	Image string `yaml:"image" mapstructure:"image"`
	Owner string `yaml:"owner" mapstructure:"owner"`
}

// TokenConfig bounds the wait for the notebook's access token.
type TokenConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SweepConfig schedules removal of copy helpers left behind by a crash.
// An empty schedule disables the sweep.
type SweepConfig struct {
	Schedule string        `yaml:"schedule" mapstructure:"schedule"`
	MaxAge   time.Duration `yaml:"max_age" mapstructure:"max_age"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Slot: SlotConfig{
			Name:       nbslot.DefaultSlotName,
			Image:      nbslot.DefaultImage,
			Port:       nbslot.DefaultPort,
			Workspace:  nbslot.DefaultWorkspace,
			Domain:     nbslot.DefaultDomain,
			HostPrefix: nbslot.DefaultHostPrefix,
		},
		Clone: CloneConfig{
			Image: nbslot.DefaultCloneImage,
			Owner: nbslot.DefaultCloneOwner,
		},
		Token: TokenConfig{
			Timeout: nbslot.DefaultTokenTimeout,
		},
		Sweep: SweepConfig{
			Schedule: "@every 10m",
			MaxAge:   15 * time.Minute,
		},
		Pull: true,
	}
}

// Load reads the configuration. An empty path falls back to
// nbslot.DefaultConfigPath(), which may be absent; an explicit path must exist.
// It returns the config and the file it was read from, if any.
func Load(ctx context.Context, path string) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("addr", defaults.Addr)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("slot.name", defaults.Slot.Name)
	v.SetDefault("slot.image", defaults.Slot.Image)
	v.SetDefault("slot.port", defaults.Slot.Port)
	v.SetDefault("slot.workspace", defaults.Slot.Workspace)
	v.SetDefault("slot.domain", defaults.Slot.Domain)
	v.SetDefault("slot.host_prefix", defaults.Slot.HostPrefix)
	v.SetDefault("clone.image", defaults.Clone.Image)
	v.SetDefault("clone.owner", defaults.Clone.Owner)
	v.SetDefault("token.timeout", defaults.Token.Timeout)
	v.SetDefault("sweep.schedule", defaults.Sweep.Schedule)
	v.SetDefault("sweep.max_age", defaults.Sweep.MaxAge)
	v.SetDefault("pull", defaults.Pull)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	explicit := path != ""
	if !explicit {
		path = nbslot.DefaultConfigPath()
	}

	if fileExists(path) {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config %s: %w", path, err)
		}
		resolvedPath = path
	} else if explicit {
		return nil, "", fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolvedPath, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Slot.Name == "" {
		errs = append(errs, errors.New("slot.name must not be empty"))
	}
	if c.Slot.Image == "" {
		errs = append(errs, errors.New("slot.image must not be empty"))
	}
	if c.Slot.Port <= 0 || c.Slot.Port > 65535 {
		errs = append(errs, fmt.Errorf("slot.port %d out of range", c.Slot.Port))
	}
	if !strings.HasPrefix(c.Slot.Workspace, "/") {
		errs = append(errs, fmt.Errorf("slot.workspace %q must be an absolute path", c.Slot.Workspace))
	}
	if c.Slot.HostPrefix < 1 {
		errs = append(errs, fmt.Errorf("slot.host_prefix must be at least 1, got %d", c.Slot.HostPrefix))
	}
	if c.Clone.Image == "" {
		errs = append(errs, errors.New("clone.image must not be empty"))
	}
	if c.Clone.Owner == "" {
		errs = append(errs, errors.New("clone.owner must not be empty"))
	}
	if c.Token.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("token.timeout must be positive, got %s", c.Token.Timeout))
	}
	if c.Sweep.Schedule != "" && c.Sweep.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("sweep.max_age must be positive, got %s", c.Sweep.MaxAge))
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text, json or logfmt", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
