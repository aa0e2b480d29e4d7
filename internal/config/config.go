package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POSSYNC_"

// Config defines process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Remote    RemoteConfig    `yaml:"remote"`
	Sync      SyncConfig      `yaml:"sync"`
	Lease     LeaseConfig     `yaml:"lease"`
	Redis     RedisConfig     `yaml:"redis"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

type DBConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// File enables rotated file logging when set.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"min=0"`
}

type TransportConfig struct {
	Mode string `yaml:"mode" validate:"oneof=stdio http"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// Tokens maps bearer tokens to tenant IDs.
	Tokens        map[string]string `yaml:"tokens"`
	DefaultTenant string            `yaml:"default_tenant" validate:"required"`
}

type RemoteConfig struct {
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

type SyncConfig struct {
	HolderID      string        `yaml:"holder_id"`
	Interval      time.Duration `yaml:"interval" validate:"min=0"`
	Debounce      time.Duration `yaml:"debounce" validate:"min=0"`
	ProbeInterval time.Duration `yaml:"probe_interval" validate:"min=0"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" validate:"min=0"`
	PullLimit     int           `yaml:"pull_limit" validate:"min=0"`
	LogCap        int           `yaml:"log_cap" validate:"min=0"`
	// WatchDB refreshes status from the shared database file.
	WatchDB bool `yaml:"watch_db"`
}

type LeaseConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=sqlite redis"`
	TTL     time.Duration `yaml:"ttl" validate:"min=0"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" validate:"required_if=Enabled true"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"min=0"`
	KeyPrefix string `yaml:"key_prefix"`
	Enabled   bool   `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "possync.db",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  5,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		Auth: AuthConfig{
			DefaultTenant: "default",
		},
		Remote: RemoteConfig{
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			Interval:      5 * time.Minute,
			Debounce:      2 * time.Second,
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  3 * time.Second,
			PullLimit:     200,
			LogCap:        200,
		},
		Lease: LeaseConfig{
			Backend: "sqlite",
			TTL:     30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvPrefix + "CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	c.Redis.Enabled = c.Lease.Backend == "redis"
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SERVER_HOST":         &cfg.Server.Host,
		"DB_PATH":             &cfg.DB.Path,
		"LOG_LEVEL":           &cfg.Log.Level,
		"LOG_FILE":            &cfg.Log.File,
		"TRANSPORT_MODE":      &cfg.Transport.Mode,
		"AUTH_DEFAULT_TENANT": &cfg.Auth.DefaultTenant,
		"REMOTE_URL":          &cfg.Remote.URL,
		"REMOTE_TOKEN":        &cfg.Remote.Token,
		"SYNC_HOLDER_ID":      &cfg.Sync.HolderID,
		"LEASE_BACKEND":       &cfg.Lease.Backend,
		"REDIS_ADDR":          &cfg.Redis.Addr,
		"REDIS_PASSWORD":      &cfg.Redis.Password,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":     &cfg.Server.Port,
		"SYNC_PULL_LIMIT": &cfg.Sync.PullLimit,
		"SYNC_LOG_CAP":    &cfg.Sync.LogCap,
		"REDIS_DB":        &cfg.Redis.DB,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"REMOTE_TIMEOUT":      &cfg.Remote.Timeout,
		"SYNC_INTERVAL":       &cfg.Sync.Interval,
		"SYNC_DEBOUNCE":       &cfg.Sync.Debounce,
		"SYNC_PROBE_INTERVAL": &cfg.Sync.ProbeInterval,
		"SYNC_PROBE_TIMEOUT":  &cfg.Sync.ProbeTimeout,
		"LEASE_TTL":           &cfg.Lease.TTL,
	}
	for key, dst := range durations {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"AUTH_ENABLED":  &cfg.Auth.Enabled,
		"SYNC_WATCH_DB": &cfg.Sync.WatchDB,
	}
	for key, dst := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}
	return nil
}
