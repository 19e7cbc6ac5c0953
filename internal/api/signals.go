package api

import (
	"encoding/json"
	"net/http"

	"github.com/davidgodzsak/timelimitd/internal/policy"
	"github.com/davidgodzsak/timelimitd/internal/tracking"
	"github.com/rs/zerolog"
)

// SignalHandler handles the extension protocol: activity reports, the
// pre-navigation gate and the redirect command poll.
type SignalHandler struct {
	engine   *tracking.Engine
	gate     *policy.Gate
	commands *CommandQueue
	logger   zerolog.Logger
}

// NewSignalHandler creates a new signal handler.
func NewSignalHandler(engine *tracking.Engine, gate *policy.Gate, commands *CommandQueue, logger zerolog.Logger) *SignalHandler {
	return &SignalHandler{
		engine:   engine,
		gate:     gate,
		commands: commands,
		logger:   logger.With().Str("handler", "signals").Logger(),
	}
}

// Ingest accepts one activity report and enqueues it to the tracking
// engine. Responds 202 immediately; accounting happens on the engine
// goroutine. Redirect commands already queued for the signaled tab ride
// along so the extension acts on them without a separate poll.
func (h *SignalHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.engine.Signal(tracking.ActivitySignal{
		TabID:     req.TabID,
		URL:       req.URL,
		IsFocused: req.Focused,
	})

	resp := SignalResponse{Queued: true}
	if req.TabID != nil {
		resp.Commands = h.commands.DrainTab(*req.TabID)
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// CheckNavigation runs the pre-navigation gate for a tab about to commit a
// navigation. The extension performs the actual tab redirect; a blocked
// response carries the interstitial URL to navigate to instead.
func (h *SignalHandler) CheckNavigation(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}

	resp := NavigationResponse{}
	if h.gate.MaybeBlock(r.Context(), req.TabID, req.URL) {
		resp.Blocked = true
		// The gate queued the redirect; hand it back inline so the
		// extension doesn't navigate to the blocked page one poll late.
		if cmds := h.commands.DrainTab(req.TabID); len(cmds) > 0 {
			resp.RedirectURL = cmds[len(cmds)-1].URL
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListCommands drains and returns all queued redirect commands. Used by the
// extension's poll loop to pick up engine-initiated enforcement, e.g. when
// a checkpoint crosses a ceiling mid-session.
func (h *SignalHandler) ListCommands(w http.ResponseWriter, r *http.Request) {
	commands := h.commands.Drain()
	if commands == nil {
		commands = []Command{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"commands": commands,
		"count":    len(commands),
	})
}
