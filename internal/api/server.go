// Package api exposes the daemon to the browser extension and the options
// UI over loopback HTTP: activity signals in, redirect commands out, plus
// rule and note management and the blocked interstitial.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/classifier"
	"github.com/davidgodzsak/timelimitd/internal/policy"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/davidgodzsak/timelimitd/internal/tracking"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr      string
	JWTSecret       string
	TokenExpiration time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
	AllowedOrigins  []string
}

// Server represents the API HTTP server.
type Server struct {
	config      Config
	store       storage.Store
	auth        *AuthService
	rateLimiter *RateLimiter
	server      *http.Server
	router      *mux.Router
	listener    net.Listener // Optional pre-created listener (for systemd socket activation)
	logger      zerolog.Logger
}

// NewServer creates a new API server. The command queue must be the same
// one the gate uses as its navigator, otherwise queued redirects never
// reach the extension.
func NewServer(cfg Config, store storage.Store, engine *tracking.Engine, evaluator *policy.Evaluator, gate *policy.Gate, commands *CommandQueue, sites *classifier.Classifier, clock tracking.Clock, logger zerolog.Logger) *Server {
	log := logger.With().Str("component", "api").Logger()

	auth := NewAuthService(store.AdminUsers(), cfg.JWTSecret, cfg.TokenExpiration, logger)
	auth.StartSessionCleanup(15 * time.Minute)

	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = 600 // signals arrive every few seconds, leave headroom
	}
	rateLimitWindow := cfg.RateLimitWindow
	if rateLimitWindow == 0 {
		rateLimitWindow = time.Minute
	}
	rateLimiter := NewRateLimiter(rateLimit, rateLimitWindow)

	router := mux.NewRouter()

	s := &Server{
		config:      cfg,
		store:       store,
		auth:        auth,
		rateLimiter: rateLimiter,
		router:      router,
		logger:      log,
	}

	s.setupRoutes(engine, evaluator, gate, commands, sites, clock, logger)

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(engine *tracking.Engine, evaluator *policy.Evaluator, gate *policy.Gate, commands *CommandQueue, sites *classifier.Classifier, clock tracking.Clock, logger zerolog.Logger) {
	// Apply global middleware
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RateLimitMiddleware(s.rateLimiter))

	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(CORSMiddleware(s.config.AllowedOrigins))
	}

	blockedHandler := NewBlockedPageHandler(s.store.Notes(), logger)

	// Public routes (no auth required)
	s.router.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods("POST", "OPTIONS")
	s.router.HandleFunc("/blocked", blockedHandler.Show).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Authenticated routes
	authRouter := s.router.PathPrefix("/api/v1").Subrouter()
	authRouter.Use(AuthMiddleware(s.auth))

	// Auth endpoints
	authRouter.HandleFunc("/auth/logout", s.handleLogout).Methods("POST")
	authRouter.HandleFunc("/auth/me", s.handleMe).Methods("GET")
	authRouter.HandleFunc("/auth/change-password", s.handleChangePassword).Methods("POST")

	// Extension protocol
	signalHandler := NewSignalHandler(engine, gate, commands, logger)
	authRouter.HandleFunc("/signals", signalHandler.Ingest).Methods("POST")
	authRouter.HandleFunc("/navigations", signalHandler.CheckNavigation).Methods("POST")
	authRouter.HandleFunc("/commands", signalHandler.ListCommands).Methods("GET")

	// Usage and decision views
	usageHandler := NewUsageHandler(s.store.Usage(), engine, evaluator, clock, logger)
	authRouter.HandleFunc("/usage/today", usageHandler.Today).Methods("GET")
	authRouter.HandleFunc("/usage/{date}", usageHandler.ByDate).Methods("GET")
	authRouter.HandleFunc("/decision/{siteId}", usageHandler.Decision).Methods("GET")

	// Block event log
	blockLogHandler := NewBlockHandler(s.store.Blocks(), logger)
	authRouter.HandleFunc("/blocks", blockLogHandler.List).Methods("GET")

	// Site rules
	ruleHandler := NewRuleHandler(s.store.Rules(), sites, logger)
	authRouter.HandleFunc("/rules", ruleHandler.List).Methods("GET")
	authRouter.HandleFunc("/rules", ruleHandler.Create).Methods("POST")
	authRouter.HandleFunc("/rules/{id}", ruleHandler.Get).Methods("GET")
	authRouter.HandleFunc("/rules/{id}", ruleHandler.Update).Methods("PUT")
	authRouter.HandleFunc("/rules/{id}", ruleHandler.Delete).Methods("DELETE")

	// Motivational notes
	noteHandler := NewNoteHandler(s.store.Notes(), logger)
	authRouter.HandleFunc("/notes", noteHandler.List).Methods("GET")
	authRouter.HandleFunc("/notes", noteHandler.Create).Methods("POST")
	authRouter.HandleFunc("/notes/{id}", noteHandler.Get).Methods("GET")
	authRouter.HandleFunc("/notes/{id}", noteHandler.Update).Methods("PUT")
	authRouter.HandleFunc("/notes/{id}", noteHandler.Delete).Methods("DELETE")
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}
