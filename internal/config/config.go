// Package config loads rtbox settings from defaults, the environment and an
// optional TOML config file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rtbox/rtbox/internal/catalog"
	"github.com/rtbox/rtbox/internal/models"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const (
	// EnvPrefix is prepended to every environment variable key, so "home"
	// is read from RTBOX_HOME.
	EnvPrefix = "RTBOX"
	// ConfigFileName is looked up inside the home directory.
	ConfigFileName = "config.toml"
	// RootfsDirName is the directory under home holding installed trees.
	RootfsDirName = "rootfs"
)

// stderrIsTerminal decides the progress default; download bars are only
// drawn on a terminal.
var stderrIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Config is the resolved rtbox configuration
type Config struct {
	Home          string        `mapstructure:"home"`
	ImageServer   string        `mapstructure:"image_server"`
	Keyring       string        `mapstructure:"keyring"`
	Progress      bool          `mapstructure:"progress"`
	StagingMaxAge time.Duration `mapstructure:"staging_max_age"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `mapstructure:"-"`
}

// LoadOptions overrides the lookup performed by Load.
type LoadOptions struct {
	// ConfigFile is an explicit config file; it must exist.
	ConfigFile string
	// Home takes precedence over RTBOX_HOME and the config file.
	Home string
}

// DefaultHome returns ~/.rtbox.
func DefaultHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".rtbox"), nil
}

// Load resolves the configuration. Precedence, highest first: LoadOptions,
// RTBOX_* environment variables, config file, defaults.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaultHome, err := DefaultHome()
	if err != nil {
		return nil, invalid("%w", err)
	}
	v.SetDefault("home", defaultHome)
	v.SetDefault("image_server", catalog.DefaultImageServer)
	v.SetDefault("keyring", "")
	v.SetDefault("progress", stderrIsTerminal())
	v.SetDefault("staging_max_age", 24*time.Hour)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := opts.ConfigFile
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, invalid("config file not found: %w", err)
		}
	} else {
		home := opts.Home
		if home == "" {
			home = v.GetString("home")
		}
		candidate := filepath.Join(expandHome(home), ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, invalid("failed to read config %s: %w", configFile, err)
		}
	}

	if opts.Home != "" {
		v.Set("home", opts.Home)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, invalid("failed to decode config: %w", err)
	}
	cfg.ConfigFile = configFile
	cfg.Home = expandHome(cfg.Home)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	if c.Home == "" {
		return invalid("home directory is empty")
	}
	abs, err := filepath.Abs(c.Home)
	if err != nil {
		return invalid("invalid home %q: %w", c.Home, err)
	}
	c.Home = abs

	u, err := url.Parse(c.ImageServer)
	if err != nil {
		return invalid("invalid image_server %q: %w", c.ImageServer, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("image_server %q must be an http(s) URL", c.ImageServer)
	}

	if c.Keyring != "" {
		if _, err := os.Stat(c.Keyring); err != nil {
			return invalid("keyring: %w", err)
		}
	}
	if c.StagingMaxAge < 0 {
		return invalid("staging_max_age must not be negative")
	}
	return nil
}

// RootfsDir returns <home>/rootfs.
func (c *Config) RootfsDir() string {
	return filepath.Join(c.Home, RootfsDirName)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func invalid(format string, args ...any) error {
	return models.NewError(models.ErrInvalidConfig, "", format, args...)
}
