package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// NoteHandler handles motivational note API requests.
type NoteHandler struct {
	store  storage.NoteStore
	logger zerolog.Logger
}

// NewNoteHandler creates a new note handler.
func NewNoteHandler(store storage.NoteStore, logger zerolog.Logger) *NoteHandler {
	return &NoteHandler{
		store:  store,
		logger: logger.With().Str("handler", "notes").Logger(),
	}
}

// List returns all notes.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	notes, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list notes")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve notes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notes": notes,
		"count": len(notes),
	})
}

// Get returns a single note by ID.
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	id := vars["id"]

	note, err := h.store.Get(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			writeError(w, http.StatusNotFound, "Note not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get note")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve note")
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// Create creates a new note.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var note storage.Note
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if note.Text == "" {
		writeError(w, http.StatusBadRequest, "Note text is required")
		return
	}

	if note.ID == "" {
		note.ID = generateID("note")
	}

	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	if err := h.store.Create(ctx, note); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create note")
		writeError(w, http.StatusInternalServerError, "Failed to create note")
		return
	}

	h.logger.Info().Str("id", note.ID).Msg("Note created")
	writeJSON(w, http.StatusCreated, note)
}

// Update updates an existing note.
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	id := vars["id"]

	existing, err := h.store.Get(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			writeError(w, http.StatusNotFound, "Note not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get note")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve note")
		return
	}

	var updates storage.Note
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Preserve ID and creation time
	updates.ID = existing.ID
	updates.CreatedAt = existing.CreatedAt
	updates.UpdatedAt = time.Now()

	if updates.Text == "" {
		writeError(w, http.StatusBadRequest, "Note text is required")
		return
	}

	if err := h.store.Update(ctx, updates); err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to update note")
		writeError(w, http.StatusInternalServerError, "Failed to update note")
		return
	}

	h.logger.Info().Str("id", id).Msg("Note updated")
	writeJSON(w, http.StatusOK, updates)
}

// Delete deletes a note.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	id := vars["id"]

	if err := h.store.Delete(ctx, id); err != nil {
		if err == storage.ErrNotFound {
			writeError(w, http.StatusNotFound, "Note not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete note")
		writeError(w, http.StatusInternalServerError, "Failed to delete note")
		return
	}

	h.logger.Info().Str("id", id).Msg("Note deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Note deleted successfully",
	})
}
