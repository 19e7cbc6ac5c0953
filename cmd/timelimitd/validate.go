package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/davidgodzsak/timelimitd/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file and stored rules",
	Long: `Validate the timelimitd configuration file for syntax and semantic errors,
and report stored site rules that can never block.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with -dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// Report stored rules that can never block
	reportNeverBlockingRules(cfg)

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		// Get default configuration
		defaultCfg := getDefaultConfig()

		// Dump configuration
		dumpConfig(cfg, defaultCfg, unknownKeys)
	}

	return nil
}

// reportNeverBlockingRules lists enabled rules with no ceilings. They track
// usage but never produce a block, which is usually a misconfiguration.
func reportNeverBlockingRules(cfg *config.Config) {
	store, err := openStorage(cfg.Storage)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not open storage to check rules: %v\n", err)
		return
	}
	defer store.Close()

	rules, err := store.Rules().List(context.Background())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not list rules: %v\n", err)
		return
	}

	yellow := color.New(color.FgYellow, color.Bold)
	neverBlocking := 0
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.HasTimeLimit() || rule.HasOpenLimit() {
			continue
		}
		if neverBlocking == 0 {
			fmt.Fprintln(os.Stdout)
			yellow.Fprintln(os.Stdout, "⚠️  WARNING: Found enabled rule(s) with no ceilings (tracked but never blocked):")
		}
		yellow.Fprintf(os.Stdout, "   - %s (pattern %q)\n", rule.ID, rule.Pattern)
		neverBlocking++
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Checked %d stored rule(s), %d never-blocking\n", len(rules), neverBlocking)
}

// getDefaultConfig creates a configuration with default values
func getDefaultConfig() *config.Config {
	v := viper.New()
	setDefaultsForDump(v)

	var cfg config.Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

// setDefaultsForDump sets default configuration values (copied from config package)
func setDefaultsForDump(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.api_port", 8177)
	v.SetDefault("server.metrics_port", 9177)
	v.SetDefault("server.bind_address", "127.0.0.1")

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", defaultStoragePath())
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
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

// defaultStoragePath mirrors the config package default so the dump compares
// against the value Load would use.
func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/timelimitd/timelimitd.bolt"
	}
	return filepath.Join(home, ".local", "share", "timelimitd", "timelimitd.bolt")
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	// Get all keys from the config file
	allKeys := v.AllKeys()

	// Build set of valid keys
	validKeys := getValidKeys()

	// Find unknown keys
	unknown := []string{}
	for _, key := range allKeys {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}

	return unknown, nil
}

// getValidKeys returns a set of all valid configuration keys
func getValidKeys() map[string]bool {
	keys := map[string]bool{
		// Server
		"server.api_port":     true,
		"server.metrics_port": true,
		"server.bind_address": true,

		// Storage
		"storage.type":                 true,
		"storage.path":                 true,
		"storage.redis.host":           true,
		"storage.redis.port":           true,
		"storage.redis.password":       true,
		"storage.redis.db":             true,
		"storage.redis.pool_size":      true,
		"storage.redis.min_idle_conns": true,
		"storage.redis.dial_timeout":   true,
		"storage.redis.read_timeout":   true,
		"storage.redis.write_timeout":  true,

		// Logging
		"logging.level":  true,
		"logging.format": true,

		// Tracking
		"tracking.checkpoint_interval":   true,
		"tracking.rollover_time":         true,
		"tracking.enforce_on_checkpoint": true,
		"tracking.retention_days":        true,

		// Classifier
		"classifier.cache_size": true,

		// Notifications
		"notifications.enabled":       true,
		"notifications.notify_before": true,

		// Auth
		"auth.jwt_secret":       true,
		"auth.initial_username": true,
		"auth.initial_password": true,
		"auth.token_expiration": true,
	}

	return keys
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	// Setup colors (only if terminal supports it)
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	// Server
	_, _ = cyan.Println("\n[server]")
	dumpField("  api_port", cfg.Server.APIPort, defaultCfg.Server.APIPort, yellow, green)
	dumpField("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort, yellow, green)
	dumpField("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress, yellow, green)

	// Storage
	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	_, _ = cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactSecret(cfg.Storage.Redis.Password), redactSecret(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)

	// Logging
	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	// Tracking
	_, _ = cyan.Println("\n[tracking]")
	dumpField("  checkpoint_interval", cfg.Tracking.CheckpointInterval, defaultCfg.Tracking.CheckpointInterval, yellow, green)
	dumpField("  rollover_time", cfg.Tracking.RolloverTime, defaultCfg.Tracking.RolloverTime, yellow, green)
	dumpField("  enforce_on_checkpoint", cfg.Tracking.EnforceOnCheckpoint, defaultCfg.Tracking.EnforceOnCheckpoint, yellow, green)
	dumpField("  retention_days", cfg.Tracking.RetentionDays, defaultCfg.Tracking.RetentionDays, yellow, green)

	// Classifier
	_, _ = cyan.Println("\n[classifier]")
	dumpField("  cache_size", cfg.Classifier.CacheSize, defaultCfg.Classifier.CacheSize, yellow, green)

	// Notifications
	_, _ = cyan.Println("\n[notifications]")
	dumpField("  enabled", cfg.Notifications.Enabled, defaultCfg.Notifications.Enabled, yellow, green)
	dumpField("  notify_before", cfg.Notifications.NotifyBefore, defaultCfg.Notifications.NotifyBefore, yellow, green)

	// Auth
	_, _ = cyan.Println("\n[auth]")
	dumpField("  jwt_secret", redactSecret(cfg.Auth.JWTSecret), redactSecret(defaultCfg.Auth.JWTSecret), yellow, green)
	dumpField("  initial_username", cfg.Auth.InitialUsername, defaultCfg.Auth.InitialUsername, yellow, green)
	dumpField("  initial_password", redactSecret(cfg.Auth.InitialPassword), redactSecret(defaultCfg.Auth.InitialPassword), yellow, green)
	dumpField("  token_expiration", cfg.Auth.TokenExpiration, defaultCfg.Auth.TokenExpiration, yellow, green)

	// Display unknown keys if any
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	// Deep equal comparison
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactSecret redacts a secret value if not empty
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***REDACTED***"
}
