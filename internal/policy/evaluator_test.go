package policy

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/davidgodzsak/timelimitd/internal/storage/bolt"
	"github.com/davidgodzsak/timelimitd/internal/tracking"
)

func openTestStore(t *testing.T) *bolt.Store {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "policy.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return store
}

func newTestEvaluator(t *testing.T, store *bolt.Store, clock Clock) *Evaluator {
	t.Helper()

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewEvaluator(store.Rules(), store.Usage(), clock, logger)
}

func TestEvaluateAgainstCeilings(t *testing.T) {
	now := time.Date(2026, 8, 21, 15, 0, 0, 0, time.Local)

	tests := []struct {
		name          string
		seconds       int64
		opens         int64
		wantBlocked   bool
		wantLimitType storage.LimitType
		wantReason    string
	}{
		{
			name: "no usage recorded today",
		},
		{
			name:    "under both ceilings",
			seconds: 3599,
			opens:   4,
		},
		{
			name:          "time ceiling crossed",
			seconds:       4000,
			opens:         3,
			wantBlocked:   true,
			wantLimitType: storage.LimitTime,
			wantReason:    "You have spent 67 minutes on this site today (limit: 60 minutes).",
		},
		{
			name:          "time ceiling exactly reached",
			seconds:       3600,
			opens:         0,
			wantBlocked:   true,
			wantLimitType: storage.LimitTime,
			wantReason:    "You have spent 60 minutes on this site today (limit: 60 minutes).",
		},
		{
			name:          "opens ceiling crossed",
			seconds:       100,
			opens:         6,
			wantBlocked:   true,
			wantLimitType: storage.LimitOpens,
			wantReason:    "You have opened this site 6 times today (limit: 5).",
		},
		{
			name:          "opens ceiling exactly reached",
			seconds:       0,
			opens:         5,
			wantBlocked:   true,
			wantLimitType: storage.LimitOpens,
			wantReason:    "You have opened this site 5 times today (limit: 5).",
		},
		{
			name:          "both ceilings crossed",
			seconds:       4000,
			opens:         6,
			wantBlocked:   true,
			wantLimitType: storage.LimitBoth,
			wantReason:    "You have spent 67 minutes on this site today (limit: 60 minutes) and opened this site 6 times today (limit: 5).",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := openTestStore(t)
			ctx := context.Background()

			rule := storage.SiteRule{
				ID:                    "rule-reddit",
				Pattern:               "reddit.com",
				DailyTimeLimitSeconds: 3600,
				DailyOpenLimit:        5,
				Enabled:               true,
			}
			if err := store.Rules().Create(ctx, rule); err != nil {
				t.Fatalf("failed to create rule: %v", err)
			}
			if tt.seconds > 0 || tt.opens > 0 {
				date := storage.DateKey(now)
				if err := store.Usage().IncrementDailyUsage(ctx, date, rule.ID, tt.seconds, tt.opens); err != nil {
					t.Fatalf("failed to seed usage: %v", err)
				}
			}

			ev := newTestEvaluator(t, store, &tracking.TestClock{CurrentTime: now})
			got := ev.Evaluate(ctx, rule.ID)

			if got.Blocked != tt.wantBlocked {
				t.Fatalf("Evaluate() blocked = %v, want %v (decision: %+v)", got.Blocked, tt.wantBlocked, got)
			}
			if got.LimitType != tt.wantLimitType {
				t.Errorf("Evaluate() limitType = %q, want %q", got.LimitType, tt.wantLimitType)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Evaluate() reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluateSingleCeilingRules(t *testing.T) {
	now := time.Date(2026, 8, 21, 15, 0, 0, 0, time.Local)
	date := storage.DateKey(now)

	t.Run("time only rule ignores opens", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		rule := storage.SiteRule{ID: "rule-news", Pattern: "news.example", DailyTimeLimitSeconds: 1800, Enabled: true}
		if err := store.Rules().Create(ctx, rule); err != nil {
			t.Fatalf("failed to create rule: %v", err)
		}
		if err := store.Usage().IncrementDailyUsage(ctx, date, rule.ID, 0, 500); err != nil {
			t.Fatalf("failed to seed usage: %v", err)
		}

		ev := newTestEvaluator(t, store, &tracking.TestClock{CurrentTime: now})
		if got := ev.Evaluate(ctx, rule.ID); got.Blocked {
			t.Errorf("opens must not block a time-only rule, got %+v", got)
		}

		if err := store.Usage().IncrementDailyUsage(ctx, date, rule.ID, 1800, 0); err != nil {
			t.Fatalf("failed to seed usage: %v", err)
		}
		got := ev.Evaluate(ctx, rule.ID)
		if !got.Blocked || got.LimitType != storage.LimitTime {
			t.Errorf("expected time block, got %+v", got)
		}
	})

	t.Run("opens only rule ignores time", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		rule := storage.SiteRule{ID: "rule-shop", Pattern: "shop.example", DailyOpenLimit: 3, Enabled: true}
		if err := store.Rules().Create(ctx, rule); err != nil {
			t.Fatalf("failed to create rule: %v", err)
		}
		if err := store.Usage().IncrementDailyUsage(ctx, date, rule.ID, 86400, 2); err != nil {
			t.Fatalf("failed to seed usage: %v", err)
		}

		ev := newTestEvaluator(t, store, &tracking.TestClock{CurrentTime: now})
		if got := ev.Evaluate(ctx, rule.ID); got.Blocked {
			t.Errorf("time must not block an opens-only rule, got %+v", got)
		}

		if err := store.Usage().IncrementDailyUsage(ctx, date, rule.ID, 0, 1); err != nil {
			t.Fatalf("failed to seed usage: %v", err)
		}
		got := ev.Evaluate(ctx, rule.ID)
		if !got.Blocked || got.LimitType != storage.LimitOpens {
			t.Errorf("expected opens block, got %+v", got)
		}
	})

	t.Run("zero ceilings never block", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		rule := storage.SiteRule{ID: "rule-wiki", Pattern: "wiki.example", Enabled: true}
		if err := store.Rules().Create(ctx, rule); err != nil {
			t.Fatalf("failed to create rule: %v", err)
		}
		if err := store.Usage().IncrementDailyUsage(ctx, date, rule.ID, 86400, 1000); err != nil {
			t.Fatalf("failed to seed usage: %v", err)
		}

		ev := newTestEvaluator(t, store, &tracking.TestClock{CurrentTime: now})
		if got := ev.Evaluate(ctx, rule.ID); got.Blocked {
			t.Errorf("rule without ceilings blocked: %+v", got)
		}
	})
}

func TestEvaluateDisabledAndUnknownSites(t *testing.T) {
	now := time.Date(2026, 8, 21, 15, 0, 0, 0, time.Local)
	store := openTestStore(t)
	ctx := context.Background()

	rule := storage.SiteRule{
		ID:                    "rule-paused",
		Pattern:               "paused.example",
		DailyTimeLimitSeconds: 60,
		Enabled:               false,
	}
	if err := store.Rules().Create(ctx, rule); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}
	if err := store.Usage().IncrementDailyUsage(ctx, storage.DateKey(now), rule.ID, 9000, 0); err != nil {
		t.Fatalf("failed to seed usage: %v", err)
	}

	ev := newTestEvaluator(t, store, &tracking.TestClock{CurrentTime: now})

	if got := ev.Evaluate(ctx, rule.ID); got.Blocked {
		t.Errorf("disabled rule blocked: %+v", got)
	}
	if got := ev.Evaluate(ctx, "rule-missing"); got.Blocked {
		t.Errorf("unknown site blocked: %+v", got)
	}
	if got := ev.Evaluate(ctx, ""); got.Blocked {
		t.Errorf("empty site id blocked: %+v", got)
	}
}

func TestEvaluateUsesCurrentDay(t *testing.T) {
	yesterday := time.Date(2026, 8, 20, 23, 0, 0, 0, time.Local)
	today := time.Date(2026, 8, 21, 9, 0, 0, 0, time.Local)

	store := openTestStore(t)
	ctx := context.Background()

	rule := storage.SiteRule{ID: "rule-video", Pattern: "video.example", DailyTimeLimitSeconds: 3600, Enabled: true}
	if err := store.Rules().Create(ctx, rule); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}
	if err := store.Usage().IncrementDailyUsage(ctx, storage.DateKey(yesterday), rule.ID, 4000, 0); err != nil {
		t.Fatalf("failed to seed usage: %v", err)
	}

	ev := newTestEvaluator(t, store, &tracking.TestClock{CurrentTime: today})
	if got := ev.Evaluate(ctx, rule.ID); got.Blocked {
		t.Errorf("yesterday's usage blocked today: %+v", got)
	}

	ev.SetClock(&tracking.TestClock{CurrentTime: yesterday})
	if got := ev.Evaluate(ctx, rule.ID); !got.Blocked {
		t.Errorf("expected block on the day the ceiling was crossed, got %+v", got)
	}
}

// failingRules returns an error from every read.
type failingRules struct{}

func (failingRules) Get(ctx context.Context, id string) (*storage.SiteRule, error) {
	return nil, errors.New("registry unavailable")
}
func (failingRules) List(ctx context.Context) ([]storage.SiteRule, error) {
	return nil, errors.New("registry unavailable")
}
func (failingRules) Create(ctx context.Context, rule storage.SiteRule) error { return nil }
func (failingRules) Update(ctx context.Context, rule storage.SiteRule) error { return nil }
func (failingRules) Delete(ctx context.Context, id string) error             { return nil }

// failingUsage returns an error from every read.
type failingUsage struct{}

func (failingUsage) GetDailyUsage(ctx context.Context, date, siteID string) (*storage.UsageEntry, error) {
	return nil, errors.New("ledger unavailable")
}
func (failingUsage) ListDailyUsage(ctx context.Context, date string) ([]storage.UsageEntry, error) {
	return nil, errors.New("ledger unavailable")
}
func (failingUsage) IncrementDailyUsage(ctx context.Context, date, siteID string, seconds, opens int64) error {
	return nil
}
func (failingUsage) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	return 0, nil
}

func TestEvaluateFailsOpenOnStorageErrors(t *testing.T) {
	now := time.Date(2026, 8, 21, 15, 0, 0, 0, time.Local)
	clock := &tracking.TestClock{CurrentTime: now}
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	ctx := context.Background()

	t.Run("rule read failure", func(t *testing.T) {
		store := openTestStore(t)
		ev := NewEvaluator(failingRules{}, store.Usage(), clock, logger)

		if got := ev.Evaluate(ctx, "rule-reddit"); got.Blocked {
			t.Errorf("expected fail open on rule read error, got %+v", got)
		}
	})

	t.Run("usage read failure", func(t *testing.T) {
		store := openTestStore(t)
		rule := storage.SiteRule{ID: "rule-reddit", Pattern: "reddit.com", DailyTimeLimitSeconds: 1, Enabled: true}
		if err := store.Rules().Create(ctx, rule); err != nil {
			t.Fatalf("failed to create rule: %v", err)
		}

		ev := NewEvaluator(store.Rules(), failingUsage{}, clock, logger)
		if got := ev.Evaluate(ctx, rule.ID); got.Blocked {
			t.Errorf("expected fail open on usage read error, got %+v", got)
		}
	})
}

func TestCeilMinutes(t *testing.T) {
	tests := []struct {
		seconds int64
		want    int64
	}{
		{0, 0},
		{1, 1},
		{59, 1},
		{60, 1},
		{61, 2},
		{3600, 60},
		{4000, 67},
	}

	for _, tt := range tests {
		if got := ceilMinutes(tt.seconds); got != tt.want {
			t.Errorf("ceilMinutes(%d) = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}

func TestBlockReasonMentionsEveryCrossedCeiling(t *testing.T) {
	rule := &storage.SiteRule{DailyTimeLimitSeconds: 3600, DailyOpenLimit: 5}

	reason := blockReason(rule, 4000, 6, true, true)
	for _, want := range []string{"67 minutes", "60 minutes", "6 times", "limit: 5"} {
		if !strings.Contains(reason, want) {
			t.Errorf("reason %q missing %q", reason, want)
		}
	}
}
