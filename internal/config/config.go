package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Tracking      TrackingConfig      `mapstructure:"tracking"`
	Classifier    ClassifierConfig    `mapstructure:"classifier"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Auth          AuthConfig          `mapstructure:"auth"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	BindAddress string `mapstructure:"bind_address"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines connection settings for the redis backend
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines usage accounting settings
type TrackingConfig struct {
	CheckpointInterval  string `mapstructure:"checkpoint_interval"`
	RolloverTime        string `mapstructure:"rollover_time"`
	EnforceOnCheckpoint bool   `mapstructure:"enforce_on_checkpoint"`
	RetentionDays       int    `mapstructure:"retention_days"`
}

// ClassifierConfig defines site classifier settings
type ClassifierConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// NotificationsConfig defines desktop notification settings
type NotificationsConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	NotifyBefore []string `mapstructure:"notify_before"`
}

// AuthConfig defines API authentication settings
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	InitialUsername string `mapstructure:"initial_username"`
	InitialPassword string `mapstructure:"initial_password"`
	TokenExpiration string `mapstructure:"token_expiration"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TIMELIMITD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.api_port", 8177)
	v.SetDefault("server.metrics_port", 9177)
	v.SetDefault("server.bind_address", "127.0.0.1")

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", defaultStoragePath())
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.checkpoint_interval", "15s")
	v.SetDefault("tracking.rollover_time", "00:00")
	v.SetDefault("tracking.enforce_on_checkpoint", true)
	v.SetDefault("tracking.retention_days", 90)

	// Classifier defaults
	v.SetDefault("classifier.cache_size", 512)

	// Notification defaults
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.notify_before", []string{"10m", "5m", "1m"})

	// Auth defaults
	v.SetDefault("auth.initial_username", "admin")
	v.SetDefault("auth.initial_password", "changeme")
	v.SetDefault("auth.token_expiration", "24h")
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/timelimitd/timelimitd.bolt"
	}
	return filepath.Join(home, ".local", "share", "timelimitd", "timelimitd.bolt")
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "", "bolt", "sqlite":
		if cfg.Storage.Type == "" {
			cfg.Storage.Type = "bolt"
		}
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	interval, err := time.ParseDuration(cfg.Tracking.CheckpointInterval)
	if err != nil {
		return fmt.Errorf("invalid checkpoint_interval: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("checkpoint_interval must be positive")
	}

	if _, _, err := ParseClockTime(cfg.Tracking.RolloverTime); err != nil {
		return fmt.Errorf("invalid rollover_time: %w", err)
	}

	if cfg.Tracking.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}

	for _, raw := range cfg.Notifications.NotifyBefore {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid notify_before entry %q: %w", raw, err)
		}
	}

	if _, err := time.ParseDuration(cfg.Auth.TokenExpiration); err != nil {
		return fmt.Errorf("invalid token_expiration: %w", err)
	}

	return nil
}

// ParseClockTime parses an HH:MM wall clock time.
func ParseClockTime(value string) (hour, minute int, err error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q: %w", value, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}
