package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Client holds the configuration of the FinKeeper client.
type Client struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Session   SessionConfig   `mapstructure:"session"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig locates the finance service.
type ServerConfig struct {
	URL            string        `mapstructure:"url"`
	CAFile         string        `mapstructure:"ca_file"`
	CertFile       string        `mapstructure:"cert_file"`
	KeyFile        string        `mapstructure:"key_file"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retries        int           `mapstructure:"retries"`
}

// StoreConfig selects the local cache backend.
type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// SessionConfig holds where the bearer token is kept.
type SessionConfig struct {
	TokenFile string `mapstructure:"token_file"`
}

// HeartbeatConfig tunes the reachability monitor.
type HeartbeatConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Threshold int           `mapstructure:"threshold"`
}

// SyncConfig tunes background sync.
type SyncConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	WindowDays int           `mapstructure:"window_days"`
}

// LogConfig configures the client log file.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"server":      "server.url",
	"store":       "store.driver",
	"db":          "store.path",
	"log-level":   "log.level",
	"window-days": "sync.window_days",
}

// NewClientViper returns a viper instance with client defaults and env
// overrides (prefix FINKEEPER_, dots become underscores).
func NewClientViper() *viper.Viper {
	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "finkeeper")

	v := viper.New()
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.ca_file", "")
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.retries", 1)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", filepath.Join(dataDir, "finkeeper.db"))
	v.SetDefault("session.token_file", filepath.Join(dataDir, "session"))
	v.SetDefault("heartbeat.interval", 30*time.Second)
	v.SetDefault("heartbeat.timeout", 5*time.Second)
	v.SetDefault("heartbeat.threshold", 3)
	v.SetDefault("sync.interval", time.Minute)
	v.SetDefault("sync.window_days", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(dataDir, "client.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetEnvPrefix("FINKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ClientFlags registers the persistent client flags on fs.
func ClientFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (toml, yaml or json)")
	fs.String("server", "", "finance service base URL")
	fs.String("store", "", "local store driver: sqlite or memory")
	fs.String("db", "", "local database path")
	fs.String("log-level", "", "log level")
	fs.Int("window-days", 0, "days ahead of today covered by a refresh")
}

// LoadClient reads the configuration. Precedence: flags set on the command
// line, FINKEEPER_* environment, config file, defaults. The file comes from
// --config, then FINKEEPER_CONFIG; a missing default file is not an error.
func LoadClient(v *viper.Viper, fs *pflag.FlagSet) (Client, error) {
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Client{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfgPath := os.Getenv("FINKEEPER_CONFIG")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			cfgPath = f.Value.String()
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return Client{}, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "finkeeper"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Client{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return Client{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Client{}, err
	}
	return c, nil
}

// Validate checks values viper cannot type-check.
func (c Client) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Server.URL == "" {
		return errors.New("server.url: must be set")
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		return errors.New("store.path: must be set for the sqlite driver")
	}
	if c.Sync.WindowDays < 0 {
		return errors.New("sync.window_days: must not be negative")
	}
	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval: must be positive")
	}
	if c.Heartbeat.Interval <= 0 {
		return errors.New("heartbeat.interval: must be positive")
	}
	return nil
}
