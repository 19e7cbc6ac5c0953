package api

import (
	"html/template"
	"math/rand"
	"net/http"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/rs/zerolog"
)

// blockedPageHTML is the interstitial shown instead of a distracting site
// once a daily ceiling is crossed.
const blockedPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Time's Up - timelimitd</title>
	<style>
		* { margin: 0; padding: 0; box-sizing: border-box; }
		body {
			font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
			background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			padding: 20px;
		}
		.container {
			background: white;
			border-radius: 16px;
			padding: 40px;
			max-width: 500px;
			text-align: center;
			box-shadow: 0 20px 60px rgba(0,0,0,0.3);
		}
		.icon { font-size: 64px; margin-bottom: 20px; }
		h1 { color: #333; margin-bottom: 16px; }
		p { color: #666; line-height: 1.6; margin-bottom: 24px; }
		.reason {
			background: #f5f5f5;
			padding: 16px;
			border-radius: 8px;
			color: #c00;
		}
		.note {
			background: #eef6ee;
			padding: 16px;
			border-radius: 8px;
			color: #2e7d32;
			font-style: italic;
			margin-top: 24px;
		}
		.info { font-size: 14px; color: #999; margin-top: 24px; word-break: break-all; }
	</style>
</head>
<body>
	<div class="container">
		<div class="icon">&#8987;</div>
		<h1>Time's Up</h1>
		<p>You've reached your daily limit for this site.</p>
		<div class="reason">{{.Reason}}</div>
		{{if .Note}}<div class="note">{{.Note}}</div>{{end}}
		<p class="info">
			Blocked at: {{.Timestamp}}<br>
			{{if .BlockedURL}}URL: {{.BlockedURL}}{{end}}
		</p>
	</div>
</body>
</html>`

// blockedPageData feeds the interstitial template.
type blockedPageData struct {
	Reason     string
	Note       string
	BlockedURL string
	Timestamp  string
}

// BlockedPageHandler renders the interstitial the gate redirects to.
type BlockedPageHandler struct {
	notes  storage.NoteStore
	tmpl   *template.Template
	logger zerolog.Logger
}

// NewBlockedPageHandler creates a new blocked page handler.
func NewBlockedPageHandler(notes storage.NoteStore, logger zerolog.Logger) *BlockedPageHandler {
	return &BlockedPageHandler{
		notes:  notes,
		tmpl:   template.Must(template.New("blocked").Parse(blockedPageHTML)),
		logger: logger.With().Str("handler", "blocked").Logger(),
	}
}

// Show renders the blocked page. Query parameters carry the block context:
// blockedUrl, siteId, reason, limitType. Everything is optional; the page
// still renders if the extension mangles the redirect URL.
func (h *BlockedPageHandler) Show(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	data := blockedPageData{
		Reason:     q.Get("reason"),
		BlockedURL: q.Get("blockedUrl"),
		Timestamp:  time.Now().Format("2006-01-02 15:04:05"),
	}
	if data.Reason == "" {
		data.Reason = "You have reached your daily limit for this site."
	}
	data.Note = h.randomNote(r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := h.tmpl.Execute(w, data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to render blocked page")
	}
}

// randomNote picks one motivational note, or returns empty when there are
// none or the store is unavailable. The page never fails over a note.
func (h *BlockedPageHandler) randomNote(r *http.Request) string {
	notes, err := h.notes.List(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to load notes for blocked page")
		return ""
	}
	if len(notes) == 0 {
		return ""
	}
	return notes[rand.Intn(len(notes))].Text
}
