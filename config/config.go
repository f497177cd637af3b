// ABOUTME: Application configuration loaded from .env, YAML, and environment
// ABOUTME: Google client credentials, storage backend, refresh schedule, and display timezone

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/daybook/charm"
	"github.com/harperreed/daybook/db"
)

// Storage backends.
const (
	StoreSQLite = "sqlite"
	StoreCharm  = "charm"
)

const (
	DefaultRefreshInterval = 15 * time.Minute
	DefaultWindowDays      = 7
	DefaultCallbackAddr    = "127.0.0.1:8080"
	DefaultLogLevel        = "info"
)

// GoogleConfig holds the OAuth client registered with Google.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Config is the top-level daybook configuration.
type Config struct {
	Google GoogleConfig `yaml:"google"`

	// Store selects the persistence backend: "sqlite" or "charm".
	Store  string `yaml:"store"`
	DBPath string `yaml:"db_path,omitempty"`

	// RefreshInterval is how often the background refresher revalidates the connection.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// WindowDays is the default number of days fetched starting today.
	WindowDays int `yaml:"window_days"`

	// Timezone is an IANA zone name used to lay out events; empty means local time.
	Timezone string `yaml:"timezone,omitempty"`

	LogLevel     string `yaml:"log_level"`
	CallbackAddr string `yaml:"callback_addr"`

	Charm charm.Config `yaml:"charm"`
}

// DefaultPath returns the XDG-compliant config file path.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "daybook", "config.yaml")
}

// DefaultDBPath returns the XDG-compliant sqlite database path.
func DefaultDBPath() string {
	return db.DefaultPath()
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	switch c.Store {
	case StoreSQLite, StoreCharm:
	default:
		c.Store = StoreSQLite
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath()
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.CallbackAddr == "" {
		c.CallbackAddr = DefaultCallbackAddr
	}
	if c.Charm == (charm.Config{}) {
		c.Charm = *charm.DefaultConfig()
	} else if c.Charm.Host == "" {
		c.Charm.Host = charm.DefaultCharmHost
	}
}

// Load reads .env (if present), then the YAML file at path, then environment overrides.
// A missing file is not an error. An empty path means DefaultPath().
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	// .env is optional
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	setString("GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	setString("DAYBOOK_STORE", &c.Store)
	setString("DAYBOOK_DB_PATH", &c.DBPath)
	setString("DAYBOOK_TIMEZONE", &c.Timezone)
	setString("DAYBOOK_LOG_LEVEL", &c.LogLevel)
	setString("DAYBOOK_CALLBACK_ADDR", &c.CallbackAddr)
	setString("CHARM_HOST", &c.Charm.Host)

	if v := os.Getenv("DAYBOOK_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DAYBOOK_REFRESH_INTERVAL %q: %w", v, err)
		}
		c.RefreshInterval = d
	}
	if v := os.Getenv("DAYBOOK_WINDOW_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DAYBOOK_WINDOW_DAYS %q: %w", v, err)
		}
		c.WindowDays = n
	}

	return nil
}

// Save writes cfg as YAML to path with 0600 permissions, via a temp file and rename.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	c.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".daybook-config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Location resolves Timezone, defaulting to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsGoogleConfigured reports whether OAuth client credentials are present.
func (c *Config) IsGoogleConfigured() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}
