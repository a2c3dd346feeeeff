// Package config provides Viper-based configuration loading for the relay server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the TCP listener settings for the relay server.
type ServerConfig struct {
	// Host is the bind address for the game listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the game listener.
	Port int `mapstructure:"port"`
	// ReadTimeout bounds how long a client may stall in the middle of a
	// partially delivered frame. It never applies to idle connections:
	// queued or authenticated-but-silent clients persist until they leave
	// or disconnect. Zero disables the guard.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for client connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxFrameBytes is the largest payload a single frame may declare.
	// A frame exceeding it is a protocol violation and tears the connection down.
	MaxFrameBytes int `mapstructure:"max_frame_bytes"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Account store backend identifiers.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// AccountsConfig selects and configures the account store backend.
type AccountsConfig struct {
	// Backend is the account store implementation: "file", "postgres", or "redis".
	Backend string `mapstructure:"backend"`
	// FilePath is the path of the flat account file used by the file backend.
	FilePath string `mapstructure:"file_path"`
	// RedisURL is the connection URL used by the redis backend.
	RedisURL string `mapstructure:"redis_url"`
	// Database holds the PostgreSQL settings used by the postgres backend.
	Database DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAccounts(c.Accounts); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.ReadTimeout < 0 {
		errs = append(errs, "server.read_timeout must not be negative")
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.MaxFrameBytes < 1 {
		errs = append(errs, fmt.Sprintf("server.max_frame_bytes must be >= 1, got %d", s.MaxFrameBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAccounts(a AccountsConfig) error {
	switch a.Backend {
	case BackendFile:
		if a.FilePath == "" {
			return errors.New("accounts.file_path must not be empty for the file backend")
		}
		return nil
	case BackendRedis:
		if a.RedisURL == "" {
			return errors.New("accounts.redis_url must not be empty for the redis backend")
		}
		return nil
	case BackendPostgres:
		return validateDatabase(a.Database)
	default:
		return fmt.Errorf("accounts.backend must be one of [file, postgres, redis], got %q", a.Backend)
	}
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "accounts.database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("accounts.database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "accounts.database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "accounts.database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("accounts.database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("accounts.database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("accounts.database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "accounts.database.min_conns must not exceed accounts.database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with RELAY_ prefix
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9001)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_frame_bytes", 65536)

	v.SetDefault("accounts.backend", "file")
	v.SetDefault("accounts.file_path", "PlayerAccounts.txt")
	v.SetDefault("accounts.redis_url", "redis://localhost:6379")
	v.SetDefault("accounts.database.host", "localhost")
	v.SetDefault("accounts.database.port", 5432)
	v.SetDefault("accounts.database.user", "relay")
	v.SetDefault("accounts.database.password", "relay")
	v.SetDefault("accounts.database.name", "relay")
	v.SetDefault("accounts.database.sslmode", "disable")
	v.SetDefault("accounts.database.max_conns", 10)
	v.SetDefault("accounts.database.min_conns", 2)
	v.SetDefault("accounts.database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
