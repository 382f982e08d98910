// Package config provides configuration for the FinKeeper binaries: the
// server reads command-line flags, environment variables and a JSON file; the
// client is configured through viper (see client.go).
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

// Options holds the configuration values for the server.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `json:"database_dsn"`

	// Config is the path to the Config file.
	Config string `json:"-"`

	// SessionTTL is how long an issued bearer token stays valid.
	SessionTTL time.Duration `json:"-"`

	// CleanupInterval is how often expired sessions are purged.
	CleanupInterval time.Duration `json:"-"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// LogLevel is a zap level name.
	LogLevel string `json:"log_level"`
}

// fileOptions mirrors Options for the JSON file, where durations are strings.
type fileOptions struct {
	*Options
	SessionTTL      string `json:"session_ttl"`
	CleanupInterval string `json:"cleanup_interval"`
}

// Parse parses the process flags and environment. It returns an error for a
// malformed config file or duration.
func Parse() (*Options, error) {
	return parse(flag.CommandLine, os.Args[1:], os.Getenv)
}

func parse(fs *flag.FlagSet, args []string, getenv func(string) string) (*Options, error) {
	options := &Options{}
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	fs.DurationVar(&options.SessionTTL, "session-ttl", 30*24*time.Hour, "bearer token lifetime")
	fs.DurationVar(&options.CleanupInterval, "cleanup-interval", time.Hour, "expired session purge interval")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "server TLS certificate")
	fs.StringVar(&options.TLSKey, "tls-key", "", "server TLS key")
	fs.StringVar(&options.LogLevel, "log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			file := fileOptions{Options: options}
			if err := json.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
			if err := setDuration(&options.SessionTTL, file.SessionTTL); err != nil {
				return nil, fmt.Errorf("session_ttl: %w", err)
			}
			if err := setDuration(&options.CleanupInterval, file.CleanupInterval); err != nil {
				return nil, fmt.Errorf("cleanup_interval: %w", err)
			}
		}
	}

	if serverAddress := getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if err := setDuration(&options.SessionTTL, getenv("SESSION_TTL")); err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}

	return options, nil
}

func setDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
