package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/rs/zerolog"
)

// stubRules is a minimal in-memory RuleStore for classifier tests.
type stubRules struct {
	rules []storage.SiteRule
	err   error
}

func (s *stubRules) Get(ctx context.Context, id string) (*storage.SiteRule, error) {
	for i := range s.rules {
		if s.rules[i].ID == id {
			rule := s.rules[i]
			return &rule, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *stubRules) List(ctx context.Context) ([]storage.SiteRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]storage.SiteRule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

func (s *stubRules) Create(ctx context.Context, rule storage.SiteRule) error {
	s.rules = append(s.rules, rule)
	return nil
}

func (s *stubRules) Update(ctx context.Context, rule storage.SiteRule) error { return nil }
func (s *stubRules) Delete(ctx context.Context, id string) error            { return nil }

func newTestClassifier(t *testing.T, rules *stubRules) *Classifier {
	t.Helper()

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	c, err := New(rules, 128, logger)
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	return c
}

func enabledRule(id, pattern string, createdAt time.Time) storage.SiteRule {
	return storage.SiteRule{
		ID:                    id,
		Pattern:               pattern,
		DailyTimeLimitSeconds: 3600,
		Enabled:               true,
		CreatedAt:             createdAt,
	}
}

func TestClassifyMatchesHostnames(t *testing.T) {
	now := time.Now()
	rules := &stubRules{rules: []storage.SiteRule{
		enabledRule("rule-example", "example.com", now),
	}}
	c := newTestClassifier(t, rules)
	if err := c.ReloadRules(context.Background()); err != nil {
		t.Fatalf("failed to reload rules: %v", err)
	}

	tests := []struct {
		name      string
		url       string
		wantMatch bool
		wantSite  string
	}{
		{"plain http", "http://example.com/watch", true, "rule-example"},
		{"https", "https://example.com/", true, "rule-example"},
		{"subdomain coverage", "https://sub.example.com/page", true, "rule-example"},
		{"mixed case hostname", "https://WWW.Example.COM/Path", true, "rule-example"},
		{"explicit port", "http://example.com:8080/", true, "rule-example"},
		{"substring containment", "https://notexample.com/", true, "rule-example"},
		{"different site", "https://other.org/", false, ""},
		{"chrome scheme", "chrome://settings", false, ""},
		{"about page", "about:blank", false, ""},
		{"file scheme", "file:///home/user/doc.html", false, ""},
		{"unparsable", "http://exa mple.com/%zz", false, ""},
		{"empty url", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.url)
			if got.IsMatch != tt.wantMatch || got.SiteID != tt.wantSite {
				t.Errorf("Classify(%q) = %+v, want match=%v site=%q",
					tt.url, got, tt.wantMatch, tt.wantSite)
			}
		})
	}
}

func TestClassifyBeforeSnapshotLoaded(t *testing.T) {
	c := newTestClassifier(t, &stubRules{})

	got := c.Classify("https://example.com/")
	if got.IsMatch {
		t.Errorf("Classify before reload = %+v, want no match", got)
	}
}

func TestClassifyDisabledRuleNeverMatches(t *testing.T) {
	now := time.Now()
	disabled := enabledRule("rule-disabled", "example.com", now)
	disabled.Enabled = false

	// A rule with both ceilings zero is still classified; only the limit
	// evaluator treats it as never-blocking.
	zeroCeilings := enabledRule("rule-zero", "zero.test", now)
	zeroCeilings.DailyTimeLimitSeconds = 0

	rules := &stubRules{rules: []storage.SiteRule{disabled, zeroCeilings}}
	c := newTestClassifier(t, rules)
	if err := c.ReloadRules(context.Background()); err != nil {
		t.Fatalf("failed to reload rules: %v", err)
	}

	if got := c.Classify("https://example.com/"); got.IsMatch {
		t.Errorf("disabled rule matched: %+v", got)
	}
	if got := c.Classify("https://zero.test/"); !got.IsMatch || got.SiteID != "rule-zero" {
		t.Errorf("zero-ceiling rule should still classify, got %+v", got)
	}
}

func TestClassifyFirstMatchOrder(t *testing.T) {
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	// All three patterns match video.example.com. Registry order is
	// scrambled on purpose; match order must be creation order with ID as
	// tiebreaker.
	rules := &stubRules{rules: []storage.SiteRule{
		enabledRule("rule-z", "example.com", base.Add(time.Minute)),
		enabledRule("rule-oldest", "video.example.com", base),
		enabledRule("rule-a", "example", base.Add(time.Minute)),
	}}
	c := newTestClassifier(t, rules)
	if err := c.ReloadRules(context.Background()); err != nil {
		t.Fatalf("failed to reload rules: %v", err)
	}

	got := c.Classify("https://video.example.com/")
	if !got.IsMatch || got.SiteID != "rule-oldest" {
		t.Errorf("expected oldest rule to win, got %+v", got)
	}

	// Hostname matched only by the two rules created at the same instant:
	// the lower rule ID wins.
	got = c.Classify("https://www.example.com/")
	if !got.IsMatch || got.SiteID != "rule-a" {
		t.Errorf("expected ID tiebreak to pick rule-a, got %+v", got)
	}
}

func TestReloadFailureKeepsSnapshot(t *testing.T) {
	rules := &stubRules{rules: []storage.SiteRule{
		enabledRule("rule-example", "example.com", time.Now()),
	}}
	c := newTestClassifier(t, rules)
	if err := c.ReloadRules(context.Background()); err != nil {
		t.Fatalf("failed to reload rules: %v", err)
	}

	rules.err = errors.New("backend unavailable")
	if err := c.ReloadRules(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}

	if got := c.Classify("https://example.com/"); !got.IsMatch {
		t.Errorf("previous snapshot should survive a failed reload, got %+v", got)
	}
}

func TestReloadInvalidatesCache(t *testing.T) {
	rules := &stubRules{rules: []storage.SiteRule{
		enabledRule("rule-example", "example.com", time.Now()),
	}}
	c := newTestClassifier(t, rules)
	if err := c.ReloadRules(context.Background()); err != nil {
		t.Fatalf("failed to reload rules: %v", err)
	}

	if got := c.Classify("https://example.com/"); !got.IsMatch {
		t.Fatalf("expected match before registry change, got %+v", got)
	}

	// Registry changes are invisible until an explicit reload.
	rules.rules = nil
	if got := c.Classify("https://example.com/"); !got.IsMatch {
		t.Errorf("expected cached snapshot to answer before reload, got %+v", got)
	}

	if err := c.ReloadRules(context.Background()); err != nil {
		t.Fatalf("failed to reload rules: %v", err)
	}
	if got := c.Classify("https://example.com/"); got.IsMatch {
		t.Errorf("expected no match after reload emptied registry, got %+v", got)
	}
}
