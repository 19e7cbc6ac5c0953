package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
)

type noteStore struct {
	db *sql.DB
}

func (s *noteStore) Get(ctx context.Context, id string) (*storage.Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, created_at, updated_at FROM notes WHERE id = ?
	`, id)
	return scanNote(row)
}

func (s *noteStore) List(ctx context.Context) ([]storage.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, created_at, updated_at FROM notes ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []storage.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *note)
	}
	return notes, rows.Err()
}

func (s *noteStore) Create(ctx context.Context, note storage.Note) error {
	if note.ID == "" {
		return errors.New("note ID is required")
	}

	now := time.Now()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, text, created_at, updated_at) VALUES (?, ?, ?, ?)
	`, note.ID, note.Text, formatTime(note.CreatedAt), formatTime(note.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *noteStore) Update(ctx context.Context, note storage.Note) error {
	existing, err := s.Get(ctx, note.ID)
	if err != nil {
		return err
	}

	note.CreatedAt = existing.CreatedAt
	note.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx, `
		UPDATE notes SET text = ?, updated_at = ? WHERE id = ?
	`, note.Text, formatTime(note.UpdatedAt), note.ID)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return nil
}

func (s *noteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanNote(row rowScanner) (*storage.Note, error) {
	var note storage.Note
	var createdAt, updatedAt string

	err := row.Scan(&note.ID, &note.Text, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan note: %w", err)
	}

	if note.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if note.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &note, nil
}
