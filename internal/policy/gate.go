package policy

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/davidgodzsak/timelimitd/internal/classifier"
	"github.com/davidgodzsak/timelimitd/internal/metrics"
	"github.com/davidgodzsak/timelimitd/internal/storage"
)

// SiteClassifier resolves a URL to a monitored site.
type SiteClassifier interface {
	Classify(rawURL string) classifier.Result
}

// Navigator performs the redirect side effect in the browser.
type Navigator interface {
	Redirect(ctx context.Context, tabID int64, target string) error
}

// Gate intercepts navigations and redirects tabs whose site has crossed a
// daily ceiling. The gate and the tracking engine consume the evaluator
// independently; a navigation the gate lets through may still be stopped at
// the next checkpoint.
type Gate struct {
	classifier  SiteClassifier
	evaluator   *Evaluator
	navigator   Navigator
	blocks      storage.BlockStore
	blockedBase string
	logger      zerolog.Logger
}

// NewGate creates a Gate. blockedBase is the blocked page URL without query
// parameters.
func NewGate(cls SiteClassifier, ev *Evaluator, nav Navigator, blocks storage.BlockStore, blockedBase string, logger zerolog.Logger) *Gate {
	return &Gate{
		classifier:  cls,
		evaluator:   ev,
		navigator:   nav,
		blocks:      blocks,
		blockedBase: blockedBase,
		logger:      logger.With().Str("component", "gate").Logger(),
	}
}

// MaybeBlock classifies rawURL, evaluates its ceilings and redirects the tab
// to the blocked page when a ceiling has been crossed. It reports whether a
// redirect was performed. Any failure falls open: the navigation proceeds.
func (g *Gate) MaybeBlock(ctx context.Context, tabID int64, rawURL string) bool {
	if rawURL == "" {
		return false
	}

	result := g.classifier.Classify(rawURL)
	if !result.IsMatch {
		return false
	}

	decision := g.evaluator.Evaluate(ctx, result.SiteID)
	if !decision.Blocked {
		return false
	}

	target := g.blockedPageURL(rawURL, result.SiteID, decision)
	if err := g.navigator.Redirect(ctx, tabID, target); err != nil {
		g.logger.Error().Err(err).
			Int64("tab_id", tabID).
			Str("site_id", result.SiteID).
			Msg("Redirect failed, allowing navigation")
		return false
	}

	metrics.BlockedNavigations.WithLabelValues(result.SiteID, string(decision.LimitType)).Inc()
	g.recordBlock(ctx, result.SiteID, rawURL, decision)
	g.logger.Info().
		Int64("tab_id", tabID).
		Str("site_id", result.SiteID).
		Str("limit_type", string(decision.LimitType)).
		Str("url", rawURL).
		Msg("Navigation blocked")
	return true
}

// blockedPageURL builds the interstitial URL. The original URL rides along
// percent-encoded so the blocked page can name it.
func (g *Gate) blockedPageURL(blockedURL, siteID string, decision Decision) string {
	params := url.Values{}
	params.Set("blockedUrl", blockedURL)
	params.Set("siteId", siteID)
	params.Set("reason", decision.Reason)
	params.Set("limitType", string(decision.LimitType))
	return g.blockedBase + "?" + params.Encode()
}

// recordBlock appends the event to the block log. The redirect already
// happened, so a logging failure is only reported.
func (g *Gate) recordBlock(ctx context.Context, siteID, rawURL string, decision Decision) {
	event := storage.BlockEvent{
		SiteID:    siteID,
		URL:       rawURL,
		LimitType: decision.LimitType,
		Reason:    decision.Reason,
	}
	if err := g.blocks.Add(ctx, event); err != nil {
		g.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to record block event")
	}
}
