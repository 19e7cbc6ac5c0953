package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// LoginRequest represents a login request from the options UI.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the response after a successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// UserInfo represents basic user information.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ChangePasswordRequest represents a password change request.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SignalRequest is one activity report from the extension. A null tabId or
// url means no browsable foreground surface (browser unfocused, chrome://
// page, no window).
type SignalRequest struct {
	TabID   *int64  `json:"tabId"`
	URL     *string `json:"url"`
	Focused bool    `json:"focused"`
}

// SignalResponse acknowledges an activity report. Commands carries redirects
// queued for the signaled tab so the extension picks them up without waiting
// for the next command poll.
type SignalResponse struct {
	Queued   bool      `json:"queued"`
	Commands []Command `json:"commands,omitempty"`
}

// NavigationRequest is a pre-navigation check from the extension.
type NavigationRequest struct {
	TabID int64  `json:"tabId"`
	URL   string `json:"url"`
}

// NavigationResponse tells the extension whether to let the navigation
// through. RedirectURL is set when Blocked is true.
type NavigationResponse struct {
	Blocked     bool   `json:"blocked"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// LiveSessionInfo describes the tracking session currently accumulating
// time. ElapsedSeconds covers only the interval not yet flushed to the
// ledger; flushed time is already in the usage entries.
type LiveSessionInfo struct {
	SiteID         string    `json:"site_id"`
	TabID          int64     `json:"tab_id"`
	URL            string    `json:"url"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

// writeJSON writes a JSON response. The body is buffered first so encoding
// failures can still produce a 500 instead of a torn response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// generateID generates a unique ID with the given prefix.
func generateID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
