// Package policy decides whether navigation to a distracting site should be
// blocked. The evaluator compares today's usage ledger against a rule's daily
// ceilings; the gate performs the redirect when a ceiling has been crossed.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidgodzsak/timelimitd/internal/storage"
)

// Clock provides the evaluator's notion of "today".
type Clock interface {
	Now() time.Time
}

// Decision is the outcome of evaluating a site against its daily ceilings.
// A zero Decision means the navigation may proceed.
type Decision struct {
	Blocked   bool              `json:"blocked"`
	LimitType storage.LimitType `json:"limitType,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// Evaluator computes block decisions from the rule registry and the usage
// ledger. It holds no state of its own: every call reads the stores fresh, so
// a decision always reflects the ledger at call time.
type Evaluator struct {
	rules  storage.RuleStore
	usage  storage.UsageStore
	clock  Clock
	logger zerolog.Logger
}

// NewEvaluator creates an evaluator backed by the given stores.
func NewEvaluator(rules storage.RuleStore, usage storage.UsageStore, clock Clock, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		rules:  rules,
		usage:  usage,
		clock:  clock,
		logger: logger.With().Str("component", "evaluator").Logger(),
	}
}

// SetClock replaces the evaluator's clock. Used by tests.
func (ev *Evaluator) SetClock(clock Clock) {
	ev.clock = clock
}

// Evaluate reports whether siteID has crossed any of its daily ceilings.
// Ceilings are inclusive: usage equal to the limit already blocks. Unknown
// and disabled sites never block, and storage failures fail open so a broken
// ledger degrades to unrestricted browsing rather than a lockout.
func (ev *Evaluator) Evaluate(ctx context.Context, siteID string) Decision {
	if siteID == "" {
		return Decision{}
	}

	rule, err := ev.rules.Get(ctx, siteID)
	if errors.Is(err, storage.ErrNotFound) {
		return Decision{}
	}
	if err != nil {
		ev.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to load rule, allowing navigation")
		return Decision{}
	}
	if !rule.Enabled {
		return Decision{}
	}

	var seconds, opens int64
	entry, err := ev.usage.GetDailyUsage(ctx, storage.DateKey(ev.clock.Now()), siteID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// No usage recorded today.
	case err != nil:
		ev.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to load usage, allowing navigation")
		return Decision{}
	default:
		seconds = entry.TimeSpentSeconds
		opens = entry.Opens
	}

	timeExceeded := rule.HasTimeLimit() && seconds >= rule.DailyTimeLimitSeconds
	opensExceeded := rule.HasOpenLimit() && opens >= rule.DailyOpenLimit
	if !timeExceeded && !opensExceeded {
		return Decision{}
	}

	var limitType storage.LimitType
	switch {
	case timeExceeded && opensExceeded:
		limitType = storage.LimitBoth
	case timeExceeded:
		limitType = storage.LimitTime
	default:
		limitType = storage.LimitOpens
	}

	return Decision{
		Blocked:   true,
		LimitType: limitType,
		Reason:    blockReason(rule, seconds, opens, timeExceeded, opensExceeded),
	}
}

// blockReason renders a user-facing sentence naming the crossed ceilings.
// Elapsed time rounds up to whole minutes so a freshly crossed limit never
// reads as still within it.
func blockReason(rule *storage.SiteRule, seconds, opens int64, timeExceeded, opensExceeded bool) string {
	var parts []string
	if timeExceeded {
		parts = append(parts, fmt.Sprintf("spent %d minutes on this site today (limit: %d minutes)",
			ceilMinutes(seconds), ceilMinutes(rule.DailyTimeLimitSeconds)))
	}
	if opensExceeded {
		parts = append(parts, fmt.Sprintf("opened this site %d times today (limit: %d)",
			opens, rule.DailyOpenLimit))
	}
	return "You have " + strings.Join(parts, " and ") + "."
}

func ceilMinutes(seconds int64) int64 {
	return (seconds + 59) / 60
}
