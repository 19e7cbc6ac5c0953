package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/classifier"
	"github.com/davidgodzsak/timelimitd/internal/metrics"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultCheckpointInterval bounds accounting loss on crash to a few seconds.
const DefaultCheckpointInterval = 15 * time.Second

// Classifier matches a URL against the monitored sites.
type Classifier interface {
	Classify(rawURL string) classifier.Result
}

// Hook is invoked from the engine goroutine when a session starts or gets
// checkpointed. Implementations must not call back into the engine.
type Hook func(siteID string, tabID int64, url string)

// Config holds engine configuration.
type Config struct {
	CheckpointInterval  time.Duration
	EnforceOnCheckpoint bool
}

// usageDelta is one pending addition to the usage ledger.
type usageDelta struct {
	date    string
	siteID  string
	seconds int64
	opens   int64
}

// flushSegment is a ledger delta plus the session timestamp it advances to
// once written.
type flushSegment struct {
	delta usageDelta
	end   time.Time
}

// Engine is the usage accounting state machine. It is IDLE when no session
// is live and TRACKING otherwise; at most one session exists at a time, and
// starting a new one flushes and replaces the old one.
//
// All transitions run on the single Run goroutine: activity signals, the
// checkpoint ticker and forced checkpoints are consumed from channels, so no
// interval can be double-counted or dropped by concurrent signals. Ledger
// write failures never surface to callers; the unflushed interval stays
// attributed to the live session (or is queued when the session ends) and is
// retried on the next transition or checkpoint.
type Engine struct {
	usage      storage.UsageStore
	classifier Classifier
	clock      Clock
	logger     zerolog.Logger

	checkpointInterval  time.Duration
	enforceOnCheckpoint bool

	onSessionStart Hook
	onCheckpoint   Hook

	signals     chan ActivitySignal
	checkpoints chan struct{}

	// mu guards session for readers outside the Run goroutine.
	mu      sync.RWMutex
	session *Session

	pending []usageDelta
}

// NewEngine creates a tracking engine. Run must be started for signals to be
// consumed.
func NewEngine(usage storage.UsageStore, classifier Classifier, clock Clock, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}

	return &Engine{
		usage:               usage,
		classifier:          classifier,
		clock:               clock,
		logger:              logger.With().Str("component", "tracking").Logger(),
		checkpointInterval:  cfg.CheckpointInterval,
		enforceOnCheckpoint: cfg.EnforceOnCheckpoint,
		signals:             make(chan ActivitySignal, 64),
		checkpoints:         make(chan struct{}, 1),
	}
}

// SetHooks registers the session-start and checkpoint hooks. Must be called
// before Run.
func (e *Engine) SetHooks(onSessionStart, onCheckpoint Hook) {
	e.onSessionStart = onSessionStart
	e.onCheckpoint = onCheckpoint
}

// Signal hands an activity signal to the engine.
func (e *Engine) Signal(sig ActivitySignal) {
	e.signals <- sig
}

// ForceCheckpoint asks the engine to flush the live session outside the
// regular checkpoint cadence.
func (e *Engine) ForceCheckpoint() {
	select {
	case e.checkpoints <- struct{}{}:
	default:
	}
}

// LiveSession returns a copy of the live session and its unflushed elapsed
// time, or false when the engine is idle.
func (e *Engine) LiveSession() (Session, time.Duration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.session == nil {
		return Session{}, 0, false
	}
	elapsed := e.clock.Now().Sub(e.session.StartTimestamp)
	if elapsed < 0 {
		elapsed = 0
	}
	return *e.session, elapsed, true
}

// Run consumes signals and checkpoint ticks until the context is canceled,
// then flushes the live session and returns.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.checkpointInterval)
	defer ticker.Stop()

	e.logger.Info().
		Dur("checkpoint_interval", e.checkpointInterval).
		Bool("enforce_on_checkpoint", e.enforceOnCheckpoint).
		Msg("Tracking engine started")

	for {
		select {
		case <-ctx.Done():
			e.stopTracking(e.clock.Now())
			e.logger.Info().Msg("Tracking engine stopped")
			return
		case sig := <-e.signals:
			metrics.SignalsReceived.Inc()
			e.handleSignal(sig)
		case <-ticker.C:
			e.handleCheckpoint(false)
		case <-e.checkpoints:
			e.handleCheckpoint(true)
		}
	}
}

// handleSignal applies one activity signal to the state machine.
func (e *Engine) handleSignal(sig ActivitySignal) {
	now := e.clock.Now()
	e.flushPending()

	siteID, ok := e.matchSignal(sig)
	if !ok {
		e.stopTracking(now)
		return
	}

	tabID := *sig.TabID
	url := *sig.URL

	if cur := e.session; cur != nil && cur.SiteID == siteID && cur.TabID == tabID {
		// Same site, same tab: the session continues.
		e.setURL(url)
		return
	}

	e.stopTracking(now)
	e.startTracking(siteID, tabID, url, now)
}

// matchSignal resolves a signal to a monitored site, or false when the
// signal describes no foregrounded matching tab.
func (e *Engine) matchSignal(sig ActivitySignal) (string, bool) {
	if !sig.IsFocused || sig.TabID == nil || sig.URL == nil {
		return "", false
	}
	result := e.classifier.Classify(*sig.URL)
	if !result.IsMatch {
		return "", false
	}
	return result.SiteID, true
}

// handleCheckpoint flushes partial elapsed time without ending the session
// and without counting a visit.
func (e *Engine) handleCheckpoint(forced bool) {
	e.flushPending()

	cur := e.session
	if cur == nil {
		return
	}

	now := e.clock.Now()
	e.flushSession(now, false)
	metrics.CheckpointFlushes.Inc()

	e.logger.Debug().
		Str("site_id", cur.SiteID).
		Bool("forced", forced).
		Msg("Checkpoint flushed")

	if e.enforceOnCheckpoint && e.onCheckpoint != nil {
		e.onCheckpoint(cur.SiteID, cur.TabID, cur.URL)
	}
}

// startTracking begins a session and records the visit.
func (e *Engine) startTracking(siteID string, tabID int64, url string, now time.Time) {
	e.setSession(&Session{SiteID: siteID, TabID: tabID, StartTimestamp: now, URL: url})
	metrics.SessionActive.Set(1)
	metrics.SessionsStarted.WithLabelValues(siteID).Inc()

	// A visit counts once per session start, never per checkpoint.
	e.applyDelta(usageDelta{date: storage.DateKey(now), siteID: siteID, opens: 1}, true)

	e.logger.Info().
		Str("site_id", siteID).
		Int64("tab_id", tabID).
		Msg("Tracking session started")

	if e.onSessionStart != nil {
		e.onSessionStart(siteID, tabID, url)
	}
}

// stopTracking flushes and clears the live session, returning the elapsed
// time it covered. Stopping while idle is a no-op returning zero.
func (e *Engine) stopTracking(now time.Time) time.Duration {
	cur := e.session
	if cur == nil {
		return 0
	}

	elapsed := e.flushSession(now, true)
	siteID := cur.SiteID
	e.setSession(nil)
	metrics.SessionActive.Set(0)

	e.logger.Info().
		Str("site_id", siteID).
		Dur("elapsed", elapsed).
		Msg("Tracking session ended")

	return elapsed
}

// flushSession writes the session's unflushed elapsed time to the ledger,
// split at local midnight so each share lands in its own day. The session's
// StartTimestamp advances past exactly the intervals that were written, so a
// failed write stays covered by the live session. When terminal, intervals
// that cannot be written now are queued for retry instead.
func (e *Engine) flushSession(now time.Time, terminal bool) time.Duration {
	cur := e.session
	elapsed := now.Sub(cur.StartTimestamp)
	if elapsed < 0 {
		elapsed = 0
	}

	segments := splitElapsed(cur.StartTimestamp, now, cur.SiteID)
	for i, seg := range segments {
		if e.applyDelta(seg.delta, terminal) {
			e.setStart(seg.end)
			continue
		}
		if terminal {
			for _, rest := range segments[i+1:] {
				e.pending = append(e.pending, rest.delta)
			}
		}
		break
	}

	return elapsed
}

// applyDelta writes one delta to the ledger. On failure it logs, optionally
// queues the delta for retry, and reports false.
func (e *Engine) applyDelta(d usageDelta, queueOnFailure bool) bool {
	if err := e.usage.IncrementDailyUsage(context.Background(), d.date, d.siteID, d.seconds, d.opens); err != nil {
		metrics.LedgerWriteFailures.Inc()
		e.logger.Error().Err(err).
			Str("date", d.date).
			Str("site_id", d.siteID).
			Int64("seconds", d.seconds).
			Int64("opens", d.opens).
			Msg("Failed to write usage delta")
		if queueOnFailure {
			e.pending = append(e.pending, d)
		}
		return false
	}

	if d.seconds > 0 {
		metrics.UsageSecondsFlushed.WithLabelValues(d.siteID).Add(float64(d.seconds))
	}
	if d.opens > 0 {
		metrics.OpensRecorded.WithLabelValues(d.siteID).Add(float64(d.opens))
	}
	return true
}

// flushPending retries queued deltas in order, stopping at the first failure.
func (e *Engine) flushPending() {
	for len(e.pending) > 0 {
		if !e.applyDelta(e.pending[0], false) {
			return
		}
		e.pending = e.pending[1:]
	}
}

// splitElapsed cuts the interval [start, end) into whole-second ledger
// deltas, one per local calendar day. The final segment's end preserves the
// sub-second remainder so checkpoints never drift.
func splitElapsed(start, end time.Time, siteID string) []flushSegment {
	if !end.After(start) {
		return nil
	}

	var segments []flushSegment
	for storage.DateKey(start) != storage.DateKey(end) {
		boundary := startOfNextDay(start)
		seconds := int64(boundary.Sub(start) / time.Second)
		if seconds > 0 {
			segments = append(segments, flushSegment{
				delta: usageDelta{date: storage.DateKey(start), siteID: siteID, seconds: seconds},
				end:   boundary,
			})
		}
		start = boundary
	}

	seconds := int64(end.Sub(start) / time.Second)
	if seconds > 0 {
		segments = append(segments, flushSegment{
			delta: usageDelta{date: storage.DateKey(start), siteID: siteID, seconds: seconds},
			end:   start.Add(time.Duration(seconds) * time.Second),
		})
	}
	return segments
}

func startOfNextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}

func (e *Engine) setSession(s *Session) {
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
}

func (e *Engine) setStart(t time.Time) {
	e.mu.Lock()
	if e.session != nil {
		e.session.StartTimestamp = t
	}
	e.mu.Unlock()
}

func (e *Engine) setURL(url string) {
	e.mu.Lock()
	if e.session != nil {
		e.session.URL = url
	}
	e.mu.Unlock()
}
