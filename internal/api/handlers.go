package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleLogin handles user login requests.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	session, token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if err == ErrInvalidCredentials {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		s.logger.Error().Err(err).Msg("Login error")
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	// Cookies serve the options UI; the extension keeps the bearer token.
	// The API only listens on loopback HTTP, so no Secure flag.
	http.SetCookie(w, &http.Cookie{
		Name:     "timelimitd_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "timelimitd_session",
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})

	resp := LoginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User: UserInfo{
			ID:       session.UserID,
			Username: session.Username,
		},
	}

	writeJSON(w, http.StatusOK, resp)

	s.logger.Info().
		Str("username", req.Username).
		Str("session_id", session.ID).
		Msg("User logged in")
}

// handleLogout handles user logout requests.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := GetSessionFromContext(r.Context())
	if sessionID == "" {
		cookie, err := r.Cookie("timelimitd_session")
		if err == nil {
			sessionID = cookie.Value
		}
	}

	if sessionID != "" {
		if err := s.auth.Logout(sessionID); err != nil {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Logout error")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "timelimitd_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "timelimitd_session",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "Logged out successfully",
	})

	s.logger.Info().Str("session_id", sessionID).Msg("User logged out")
}

// handleMe returns the current user information.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())
	username, _ := GetUsernameFromContext(r.Context())

	writeJSON(w, http.StatusOK, UserInfo{
		ID:       userID,
		Username: username,
	})
}

// handleChangePassword handles password change requests.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := GetUsernameFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Old and new passwords are required")
		return
	}

	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "New password must be at least 8 characters")
		return
	}

	if err := s.auth.ChangePassword(r.Context(), username, req.OldPassword, req.NewPassword); err != nil {
		if err == ErrInvalidCredentials {
			writeError(w, http.StatusUnauthorized, "Invalid current password")
			return
		}
		s.logger.Error().Err(err).Str("username", username).Msg("Password change error")
		writeError(w, http.StatusInternalServerError, "Failed to change password")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "Password changed successfully",
	})

	s.logger.Info().Str("username", username).Msg("User changed password")
}

// handleHealth reports liveness plus the active session count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_sessions": s.auth.GetActiveSessions(),
	})
}
