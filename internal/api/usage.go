package api

import (
	"net/http"

	"github.com/davidgodzsak/timelimitd/internal/policy"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/davidgodzsak/timelimitd/internal/tracking"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// UsageHandler serves usage views and live limit decisions.
type UsageHandler struct {
	usage     storage.UsageStore
	engine    *tracking.Engine
	evaluator *policy.Evaluator
	clock     tracking.Clock
	logger    zerolog.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(usage storage.UsageStore, engine *tracking.Engine, evaluator *policy.Evaluator, clock tracking.Clock, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		usage:     usage,
		engine:    engine,
		evaluator: evaluator,
		clock:     clock,
		logger:    logger.With().Str("handler", "usage").Logger(),
	}
}

// Today returns the current day's ledger entries plus the live session. The
// live session's elapsed seconds are not yet in the ledger; the caller adds
// them to the matching entry for an up-to-the-second total.
func (h *UsageHandler) Today(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := storage.DateKey(h.clock.Now())

	entries, err := h.usage.ListDailyUsage(ctx, date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", date).Msg("Failed to list daily usage")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve usage")
		return
	}
	if entries == nil {
		entries = []storage.UsageEntry{}
	}

	resp := map[string]interface{}{
		"date":    date,
		"entries": entries,
		"count":   len(entries),
	}

	if session, elapsed, ok := h.engine.LiveSession(); ok {
		resp["live_session"] = LiveSessionInfo{
			SiteID:         session.SiteID,
			TabID:          session.TabID,
			URL:            session.URL,
			StartedAt:      session.StartTimestamp,
			ElapsedSeconds: int64(elapsed.Seconds()),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ByDate returns the ledger entries for a specific day (YYYY-MM-DD).
func (h *UsageHandler) ByDate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	date := vars["date"]

	entries, err := h.usage.ListDailyUsage(ctx, date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", date).Msg("Failed to list daily usage")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve usage")
		return
	}
	if entries == nil {
		entries = []storage.UsageEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":    date,
		"entries": entries,
		"count":   len(entries),
	})
}

// Decision evaluates a site against its daily ceilings right now. Read-only
// view for the popup UI; enforcement uses the same evaluator through the
// gate.
func (h *UsageHandler) Decision(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	siteID := vars["siteId"]

	decision := h.evaluator.Evaluate(r.Context(), siteID)
	writeJSON(w, http.StatusOK, decision)
}
