package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/api"
	"github.com/davidgodzsak/timelimitd/internal/classifier"
	"github.com/davidgodzsak/timelimitd/internal/config"
	"github.com/davidgodzsak/timelimitd/internal/metrics"
	"github.com/davidgodzsak/timelimitd/internal/notify"
	"github.com/davidgodzsak/timelimitd/internal/policy"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/davidgodzsak/timelimitd/internal/storage/bolt"
	"github.com/davidgodzsak/timelimitd/internal/storage/redis"
	"github.com/davidgodzsak/timelimitd/internal/storage/sqlite"
	"github.com/davidgodzsak/timelimitd/internal/systemd"
	"github.com/davidgodzsak/timelimitd/internal/tracking"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the timelimitd daemon",
	Long:  `Start the timelimitd daemon with the extension API, usage tracking engine, and metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting timelimitd")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	switch cfg.Storage.Type {
	case "redis":
		logger.Info().
			Str("type", cfg.Storage.Type).
			Str("redis_host", cfg.Storage.Redis.Host).
			Int("redis_port", cfg.Storage.Redis.Port).
			Msg("Storage initialized")
	default:
		logger.Info().
			Str("type", cfg.Storage.Type).
			Str("path", cfg.Storage.Path).
			Msg("Storage initialized")
	}

	ctx := context.Background()

	// Create the initial admin user if no users exist yet
	if err := api.EnsureInitialAdminUser(ctx, store.AdminUsers(), cfg.Auth.InitialUsername, cfg.Auth.InitialPassword, logger); err != nil {
		return fmt.Errorf("failed to ensure initial admin user: %w", err)
	}

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = generateJWTSecret()
		logger.Warn().Msg("auth.jwt_secret is not set, generated an ephemeral secret; sessions will not survive restarts")
	}

	// Initialize Site Classifier
	sites, err := classifier.New(store.Rules(), cfg.Classifier.CacheSize, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize site classifier: %w", err)
	}

	if err := sites.ReloadRules(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to load site rules, starting with an empty rule set")
	}

	logger.Info().Msg("Site classifier initialized")

	clock := tracking.RealClock{}

	// Initialize Tracking Engine
	engine := tracking.NewEngine(
		store.Usage(),
		sites,
		clock,
		tracking.Config{
			CheckpointInterval:  parseDuration(cfg.Tracking.CheckpointInterval, tracking.DefaultCheckpointInterval),
			EnforceOnCheckpoint: cfg.Tracking.EnforceOnCheckpoint,
		},
		logger,
	)

	logger.Info().Msg("Tracking engine initialized")

	// Initialize limit evaluation and the navigation gate
	evaluator := policy.NewEvaluator(store.Rules(), store.Usage(), clock, logger)
	commands := api.NewCommandQueue(api.DefaultCommandCapacity, logger)

	blockedBase := fmt.Sprintf("http://%s:%d/blocked", cfg.Server.BindAddress, cfg.Server.APIPort)
	gate := policy.NewGate(sites, evaluator, commands, store.Blocks(), blockedBase, logger)

	logger.Info().Msg("Limit gate initialized")

	// Initialize desktop notifications
	var notifier *notify.Notifier
	if cfg.Notifications.Enabled {
		sender, err := notify.NewDBusSender()
		if err != nil {
			logger.Warn().Err(err).Msg("Desktop notifications unavailable")
		} else {
			defer func() {
				if err := sender.Close(); err != nil {
					logger.Error().Err(err).Msg("Failed to close notification sender")
				}
			}()
			notifier = notify.New(sender, store.Rules(), store.Usage(), notifyThresholds(cfg.Notifications.NotifyBefore), clock, logger)
			logger.Info().Msg("Desktop notifications initialized")
		}
	}

	// Engine hooks run on the engine goroutine. MaybeBlock enforces limits
	// for sessions that start without a navigation event (switching back to
	// an already-open tab) and for ceilings crossed mid-session at a
	// checkpoint; the engine itself gates the checkpoint hook on
	// tracking.enforce_on_checkpoint.
	hook := func(siteID string, tabID int64, url string) {
		gate.MaybeBlock(context.Background(), tabID, url)
		if notifier != nil {
			notifier.Check(context.Background(), siteID)
		}
	}
	engine.SetHooks(hook, hook)

	rolloverHour, rolloverMinute, err := config.ParseClockTime(cfg.Tracking.RolloverTime)
	if err != nil {
		return fmt.Errorf("invalid rollover time: %w", err)
	}

	engineCtx, engineCancel := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(engineCtx)
	}()

	// Initialize Rollover Scheduler
	scheduler := tracking.NewRolloverScheduler(
		engine,
		store.Usage(),
		store.Blocks(),
		rolloverHour,
		rolloverMinute,
		cfg.Tracking.RetentionDays,
		clock,
		logger,
	)
	scheduler.Start()

	// Initialize API Server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(
		api.Config{
			ListenAddr:      apiAddr,
			JWTSecret:       jwtSecret,
			TokenExpiration: parseDuration(cfg.Auth.TokenExpiration, api.DefaultTokenExpiration),
		},
		store,
		engine,
		evaluator,
		gate,
		commands,
		sites,
		clock,
		logger,
	)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	logger.Info().
		Str("addr", apiAddr).
		Msg("API server started")

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	logger.Info().
		Str("addr", metricsAddr).
		Msg("Metrics server started")

	// Log startup complete
	logger.Info().Msg("timelimitd startup complete")
	logger.Info().Msgf("API: http://%s:%d/api/v1", cfg.Server.BindAddress, cfg.Server.APIPort)
	logger.Info().Msgf("Blocked page: %s", blockedBase)
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().Msg("SIGHUP received, reloading site rules...")
			if err := sites.ReloadRules(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Failed to reload site rules")
			} else {
				logger.Info().Msg("Site rules reloaded successfully")
			}
			// Continue running
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			// Break out of loop to shutdown
		}

		// Only reached on shutdown signals
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop components. The engine flushes the live session on cancel, so it
	// must finish before the deferred store.Close runs.
	scheduler.Stop()

	engineCancel()
	<-engineDone

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("timelimitd stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "bolt"
	}

	switch storageType {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: bolt, sqlite, redis)", storageType)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// notifyThresholds parses notification lead times, dropping invalid entries.
func notifyThresholds(raw []string) []time.Duration {
	thresholds := make([]time.Duration, 0, len(raw))
	for _, s := range raw {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			continue
		}
		thresholds = append(thresholds, d)
	}
	return thresholds
}

// generateJWTSecret returns a random secret for signing tokens when none is
// configured.
func generateJWTSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("failed to read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)
}
