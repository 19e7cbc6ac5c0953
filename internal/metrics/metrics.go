package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// API metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timelimitd_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"handler", "method", "code"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timelimitd_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	// Tracking metrics
	SignalsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelimitd_activity_signals_total",
			Help: "Total activity signals consumed by the tracking engine",
		},
	)

	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timelimitd_sessions_started_total",
			Help: "Total tracking sessions started",
		},
		[]string{"site_id"},
	)

	UsageSecondsFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timelimitd_usage_seconds_total",
			Help: "Total tracked seconds flushed to the usage ledger",
		},
		[]string{"site_id"},
	)

	OpensRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timelimitd_opens_total",
			Help: "Total site opens recorded",
		},
		[]string{"site_id"},
	)

	CheckpointFlushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelimitd_checkpoint_flushes_total",
			Help: "Total periodic checkpoint flushes",
		},
	)

	LedgerWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelimitd_ledger_write_failures_total",
			Help: "Total failed usage ledger writes",
		},
	)

	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "timelimitd_session_active",
			Help: "Whether a tracking session is currently live (0 or 1)",
		},
	)

	// Enforcement metrics
	BlockedNavigations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timelimitd_blocked_navigations_total",
			Help: "Total navigations redirected to the blocked page",
		},
		[]string{"site_id", "limit_type"},
	)

	// Classifier metrics
	ClassifierCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelimitd_classifier_cache_hits_total",
			Help: "Classifier hostname cache hits",
		},
	)

	ClassifierCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelimitd_classifier_cache_misses_total",
			Help: "Classifier hostname cache misses",
		},
	)

	// Rollover metrics
	RolloversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelimitd_rollovers_total",
			Help: "Total daily rollovers performed",
		},
	)

	// Notification metrics
	NotificationsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelimitd_notifications_sent_total",
			Help: "Total desktop notifications sent",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SignalsReceived,
		SessionsStarted,
		UsageSecondsFlushed,
		OpensRecorded,
		CheckpointFlushes,
		LedgerWriteFailures,
		SessionActive,
		BlockedNavigations,
		ClassifierCacheHits,
		ClassifierCacheMisses,
		RolloversTotal,
		NotificationsSent,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
