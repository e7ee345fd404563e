package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHATRELAY_SERVER_ADDRESS.
const EnvPrefix = "CHATRELAY"

// Config represents runtime configuration for the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Replies  RepliesConfig  `mapstructure:"replies"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Name    string `mapstructure:"name"`
	Mode    string `mapstructure:"mode"` // gin mode: debug, release or test
}

type GatewayConfig struct {
	Backend        string  `mapstructure:"backend"`
	Family         string  `mapstructure:"family"`
	Endpoint       string  `mapstructure:"endpoint"`
	Model          string  `mapstructure:"model"`
	AuthToken      string  `mapstructure:"auth_token"`
	MaxNewTokens   int     `mapstructure:"max_new_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	ContextWindow  int     `mapstructure:"context_window"`
	RetentionSize  int     `mapstructure:"retention_size"`
	UserLabel      string  `mapstructure:"user_label"`
	AssistantLabel string  `mapstructure:"assistant_label"`
}

// Timeout returns the per-call upstream timeout.
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// RepliesConfig overrides user-facing replies; empty fields keep the built-in text.
type RepliesConfig struct {
	Unconfigured      string   `mapstructure:"unconfigured"`
	Warming           string   `mapstructure:"warming"`
	RateLimited       string   `mapstructure:"rate_limited"`
	UpstreamError     string   `mapstructure:"upstream_error"`
	Timeout           string   `mapstructure:"timeout"`
	ConnectionFailure string   `mapstructure:"connection_failure"`
	Unexpected        string   `mapstructure:"unexpected"`
	Busy              string   `mapstructure:"busy"`
	Fallbacks         []string `mapstructure:"fallbacks"`
}

type WorkersConfig struct {
	Min                int  `mapstructure:"min"`
	Max                int  `mapstructure:"max"`
	QueueSize          int  `mapstructure:"queue_size"`
	IdleTimeoutSeconds int  `mapstructure:"idle_timeout_seconds"`
	Debug              bool `mapstructure:"debug"` // log worker lifecycle events
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DatabaseConfig selects the call log store. An empty driver disables it.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite3, mysql or postgres
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Params   string `mapstructure:"params"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxAge    int    `mapstructure:"max_age_days"`
	MaxBackup int    `mapstructure:"max_backups"`
	Compress  bool   `mapstructure:"compress"`
	Console   bool   `mapstructure:"console"`
}

type AuditConfig struct {
	RetentionHours       int `mapstructure:"retention_hours"`
	PruneIntervalMinutes int `mapstructure:"prune_interval_minutes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":7860")
	v.SetDefault("server.name", "chatrelay")
	v.SetDefault("server.mode", "release")

	v.SetDefault("gateway.backend", "text-generation")
	v.SetDefault("gateway.family", "dialog")
	// empty picks the backend's own default
	v.SetDefault("gateway.endpoint", "")
	v.SetDefault("gateway.model", "")
	v.SetDefault("gateway.auth_token", "")
	v.SetDefault("gateway.max_new_tokens", 128)
	v.SetDefault("gateway.temperature", 0.8)
	v.SetDefault("gateway.timeout_seconds", 30)
	v.SetDefault("gateway.context_window", 4)
	v.SetDefault("gateway.retention_size", 6)
	v.SetDefault("gateway.user_label", "User")
	v.SetDefault("gateway.assistant_label", "Assistant")

	for _, key := range []string{"unconfigured", "warming", "rate_limited", "upstream_error", "timeout", "connection_failure", "unexpected", "busy"} {
		v.SetDefault("replies."+key, "")
	}
	v.SetDefault("replies.fallbacks", []string{})

	v.SetDefault("workers.min", 2)
	v.SetDefault("workers.max", 16)
	v.SetDefault("workers.queue_size", 64)
	v.SetDefault("workers.idle_timeout_seconds", 300)
	v.SetDefault("workers.debug", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "chatrelay")

	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "chatrelay")
	v.SetDefault("database.params", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.console", true)

	v.SetDefault("audit.retention_hours", 72)
	v.SetDefault("audit.prune_interval_minutes", 30)
}

// Load reads configuration from the optional JSON file at path, then applies
// environment overrides. A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("gateway.auth_token", EnvPrefix+"_GATEWAY_AUTH_TOKEN", "HF_TOKEN"); err != nil {
		return nil, fmt.Errorf("bind auth token env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		v.SetConfigFile(absPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Gateway.ContextWindow < 0 {
		return fmt.Errorf("gateway.context_window must not be negative")
	}
	if c.Gateway.RetentionSize < 0 {
		return fmt.Errorf("gateway.retention_size must not be negative")
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		return fmt.Errorf("gateway.timeout_seconds must be positive")
	}
	if c.Workers.Max <= 0 {
		return fmt.Errorf("workers.max must be positive")
	}
	if c.Workers.Min > c.Workers.Max {
		return fmt.Errorf("workers.min (%d) exceeds workers.max (%d)", c.Workers.Min, c.Workers.Max)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "sqlite3", "mysql", "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}

// TokenConfigured reports whether an auth token for the generation service is present.
func (c *Config) TokenConfigured() bool {
	return strings.TrimSpace(c.Gateway.AuthToken) != ""
}
