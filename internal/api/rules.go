package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/classifier"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// RuleHandler handles site rule API requests.
type RuleHandler struct {
	store  storage.RuleStore
	sites  *classifier.Classifier
	logger zerolog.Logger
}

// NewRuleHandler creates a new rule handler.
func NewRuleHandler(store storage.RuleStore, sites *classifier.Classifier, logger zerolog.Logger) *RuleHandler {
	return &RuleHandler{
		store:  store,
		sites:  sites,
		logger: logger.With().Str("handler", "rules").Logger(),
	}
}

// List returns all site rules.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rules, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list rules")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve rules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// Get returns a single site rule by ID.
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	id := vars["id"]

	rule, err := h.store.Get(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			writeError(w, http.StatusNotFound, "Rule not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get rule")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// Create creates a new site rule.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule storage.SiteRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validate rule
	if rule.Pattern == "" {
		writeError(w, http.StatusBadRequest, "Rule pattern is required")
		return
	}
	if rule.DailyTimeLimitSeconds < 0 || rule.DailyOpenLimit < 0 {
		writeError(w, http.StatusBadRequest, "Limits cannot be negative")
		return
	}

	if rule.ID == "" {
		rule.ID = generateID("rule")
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := h.store.Create(ctx, rule); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create rule")
		writeError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}

	h.reloadClassifier(r)

	h.logger.Info().Str("id", rule.ID).Str("pattern", rule.Pattern).Msg("Rule created")
	writeJSON(w, http.StatusCreated, rule)
}

// Update updates an existing site rule.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	id := vars["id"]

	existing, err := h.store.Get(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			writeError(w, http.StatusNotFound, "Rule not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get rule")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve rule")
		return
	}

	var updates storage.SiteRule
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Preserve ID and creation time
	updates.ID = existing.ID
	updates.CreatedAt = existing.CreatedAt
	updates.UpdatedAt = time.Now()

	// Validate updates
	if updates.Pattern == "" {
		writeError(w, http.StatusBadRequest, "Rule pattern is required")
		return
	}
	if updates.DailyTimeLimitSeconds < 0 || updates.DailyOpenLimit < 0 {
		writeError(w, http.StatusBadRequest, "Limits cannot be negative")
		return
	}

	if err := h.store.Update(ctx, updates); err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to update rule")
		writeError(w, http.StatusInternalServerError, "Failed to update rule")
		return
	}

	h.reloadClassifier(r)

	h.logger.Info().Str("id", id).Str("pattern", updates.Pattern).Msg("Rule updated")
	writeJSON(w, http.StatusOK, updates)
}

// Delete deletes a site rule.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	id := vars["id"]

	if err := h.store.Delete(ctx, id); err != nil {
		if err == storage.ErrNotFound {
			writeError(w, http.StatusNotFound, "Rule not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete rule")
		writeError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}

	h.reloadClassifier(r)

	h.logger.Info().Str("id", id).Msg("Rule deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule deleted successfully",
	})
}

// reloadClassifier refreshes the matcher snapshot after a rule mutation.
// The mutation already persisted; a failed refresh only delays the new
// rules until the next mutation or restart.
func (h *RuleHandler) reloadClassifier(r *http.Request) {
	if err := h.sites.ReloadRules(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to reload classifier rules")
	}
}
