package classifier

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/davidgodzsak/timelimitd/internal/metrics"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Result is the outcome of classifying a URL against the site rules.
type Result struct {
	IsMatch bool
	SiteID  string
}

// matchRule is one enabled rule in the snapshot, pattern pre-lowercased.
type matchRule struct {
	id      string
	pattern string
}

// Classifier matches navigated URLs against the enabled site rules. It holds
// a snapshot of the rule set and must be reloaded via ReloadRules whenever
// the rules change. Classify never returns an error; anything that cannot be
// matched is "no match".
type Classifier struct {
	rules  storage.RuleStore
	cache  *lru.Cache[string, Result]
	logger zerolog.Logger

	mu       sync.RWMutex
	snapshot []matchRule
	loaded   bool
}

// New creates a Classifier. The snapshot is empty until ReloadRules is called.
func New(rules storage.RuleStore, cacheSize int, logger zerolog.Logger) (*Classifier, error) {
	cache, err := lru.New[string, Result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hostname cache: %w", err)
	}

	return &Classifier{
		rules:  rules,
		cache:  cache,
		logger: logger.With().Str("component", "classifier").Logger(),
	}, nil
}

// ReloadRules replaces the rule snapshot from the registry. Disabled rules
// are dropped. Match order is creation order with rule ID as tiebreaker, so
// overlapping patterns resolve the same way on every run. On error the
// previous snapshot stays in effect.
func (c *Classifier) ReloadRules(ctx context.Context) error {
	all, err := c.rules.List(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to reload site rules, keeping previous snapshot")
		return fmt.Errorf("failed to list site rules: %w", err)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	snapshot := make([]matchRule, 0, len(all))
	for _, rule := range all {
		if !rule.Enabled || rule.Pattern == "" {
			continue
		}
		snapshot = append(snapshot, matchRule{
			id:      rule.ID,
			pattern: strings.ToLower(rule.Pattern),
		})
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.loaded = true
	c.mu.Unlock()
	c.cache.Purge()

	c.logger.Info().Int("enabled_rules", len(snapshot)).Msg("Rule snapshot reloaded")
	return nil
}

// Classify reports whether the URL belongs to a monitored site. Only http
// and https URLs are eligible; anything else (chrome://, about:, file:,
// unparsable input) is no match.
func (c *Classifier) Classify(rawURL string) Result {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if !loaded {
		c.logger.Warn().Msg("Classify called before any rule snapshot was loaded")
		return Result{}
	}

	hostname := eligibleHostname(rawURL)
	if hostname == "" {
		return Result{}
	}

	if result, ok := c.cache.Get(hostname); ok {
		metrics.ClassifierCacheHits.Inc()
		return result
	}
	metrics.ClassifierCacheMisses.Inc()

	result := c.match(hostname)
	c.cache.Add(hostname, result)
	return result
}

func (c *Classifier) match(hostname string) Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, rule := range c.snapshot {
		if strings.Contains(hostname, rule.pattern) {
			return Result{IsMatch: true, SiteID: rule.id}
		}
	}
	return Result{}
}

// eligibleHostname extracts the lowercased hostname from an http(s) URL,
// or "" when the URL is out of scope or unparsable.
func eligibleHostname(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
