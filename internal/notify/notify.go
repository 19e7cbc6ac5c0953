// Package notify sends desktop notifications when a monitored site is about
// to run out of daily time.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/davidgodzsak/timelimitd/internal/metrics"
	"github.com/davidgodzsak/timelimitd/internal/storage"
)

// Clock provides the notifier's notion of "today".
type Clock interface {
	Now() time.Time
}

// Sender delivers one desktop notification.
type Sender interface {
	Send(summary, body string) error
}

// DBusSender sends notifications over the user's session bus via
// org.freedesktop.Notifications.
type DBusSender struct {
	conn *dbus.Conn
}

// NewDBusSender connects to the session bus. The daemon runs inside the user
// session, so no login1 indirection is needed.
func NewDBusSender() (*DBusSender, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBusSender{conn: conn}, nil
}

// Send delivers the notification with normal urgency and a 10 second timeout.
func (s *DBusSender) Send(summary, body string) error {
	obj := s.conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		"timelimitd",     // app_name
		uint32(0),        // replaces_id
		"dialog-warning", // app_icon
		summary,
		body,
		[]string{}, // actions
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(1)),
		},
		int32(10000), // expire_timeout
	)
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	return nil
}

// Close closes the session bus connection.
func (s *DBusSender) Close() error {
	return s.conn.Close()
}

// Notifier warns the user once per site, threshold and day when the
// remaining time on a site drops to a configured threshold. Sites without a
// time ceiling are never announced; running out entirely is the gate's job.
type Notifier struct {
	sender     Sender
	rules      storage.RuleStore
	usage      storage.UsageStore
	thresholds []time.Duration
	clock      Clock
	logger     zerolog.Logger

	mu       sync.Mutex
	sentDate string
	sent     map[string]struct{}
}

// New creates a Notifier. Thresholds come from the notify_before setting and
// may be given in any order.
func New(sender Sender, rules storage.RuleStore, usage storage.UsageStore, thresholds []time.Duration, clock Clock, logger zerolog.Logger) *Notifier {
	sorted := make([]time.Duration, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return &Notifier{
		sender:     sender,
		rules:      rules,
		usage:      usage,
		thresholds: sorted,
		clock:      clock,
		logger:     logger.With().Str("component", "notify").Logger(),
		sent:       make(map[string]struct{}),
	}
}

// Check looks up the site's remaining time and sends a warning when it has
// dropped to one of the thresholds. Safe to call on every checkpoint; a
// threshold fires at most once per site and day.
func (n *Notifier) Check(ctx context.Context, siteID string) {
	if len(n.thresholds) == 0 || siteID == "" {
		return
	}

	rule, err := n.rules.Get(ctx, siteID)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		n.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to load rule")
		return
	}
	if !rule.Enabled || !rule.HasTimeLimit() {
		return
	}

	now := n.clock.Now()
	var used int64
	entry, err := n.usage.GetDailyUsage(ctx, storage.DateKey(now), siteID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		n.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to load usage")
		return
	default:
		used = entry.TimeSpentSeconds
	}

	remaining := time.Duration(rule.DailyTimeLimitSeconds-used) * time.Second
	if remaining <= 0 {
		return
	}

	threshold, ok := n.crossedThreshold(remaining)
	if !ok {
		return
	}

	key := fmt.Sprintf("%s|%s|%s", storage.DateKey(now), siteID, threshold)
	n.mu.Lock()
	n.resetIfNewDay(storage.DateKey(now))
	_, already := n.sent[key]
	n.mu.Unlock()
	if already {
		return
	}

	body := fmt.Sprintf("About %s left on %s today", formatRemaining(remaining), rule.Pattern)
	if err := n.sender.Send("Time limit approaching", body); err != nil {
		n.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to send notification")
		return
	}

	n.mu.Lock()
	n.sent[key] = struct{}{}
	n.mu.Unlock()

	metrics.NotificationsSent.Inc()
	n.logger.Info().
		Str("site_id", siteID).
		Dur("remaining", remaining).
		Dur("threshold", threshold).
		Msg("Notification sent")
}

// crossedThreshold returns the tightest threshold the remaining time fits
// under. Remaining time that skips several thresholds at once produces only
// the tightest warning.
func (n *Notifier) crossedThreshold(remaining time.Duration) (time.Duration, bool) {
	for _, t := range n.thresholds {
		if remaining <= t {
			return t, true
		}
	}
	return 0, false
}

func (n *Notifier) resetIfNewDay(date string) {
	if n.sentDate != date {
		n.sentDate = date
		n.sent = make(map[string]struct{})
	}
}

// formatRemaining renders a duration the way a person would say it, rounding
// up so the warning never promises more time than is left.
func formatRemaining(d time.Duration) string {
	minutes := int64((d + time.Minute - 1) / time.Minute)
	hours := minutes / 60
	minutes %= 60

	if hours > 0 {
		return fmt.Sprintf("%d hour(s) %d minute(s)", hours, minutes)
	}
	return fmt.Sprintf("%d minute(s)", minutes)
}
