package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/redis/go-redis/v9"
)

type noteStore struct {
	client *redis.Client
}

// Get retrieves a note by ID
func (s *noteStore) Get(ctx context.Context, id string) (*storage.Note, error) {
	data, err := s.client.HGetAll(ctx, noteKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseNote(data)
}

// List returns all notes
func (s *noteStore) List(ctx context.Context) ([]storage.Note, error) {
	ids, err := s.client.SMembers(ctx, notesSetKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []storage.Note{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, noteKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	notes := make([]storage.Note, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		note, err := parseNote(data)
		if err == nil {
			notes = append(notes, *note)
		}
	}

	return notes, nil
}

// Create stores a new note
func (s *noteStore) Create(ctx context.Context, note storage.Note) error {
	if note.ID == "" {
		return fmt.Errorf("note id is required")
	}
	if _, err := s.Get(ctx, note.ID); err == nil {
		return fmt.Errorf("note %s already exists", note.ID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	now := time.Now()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now
	return s.save(ctx, note)
}

// Update overwrites an existing note
func (s *noteStore) Update(ctx context.Context, note storage.Note) error {
	existing, err := s.Get(ctx, note.ID)
	if err != nil {
		return err
	}

	note.CreatedAt = existing.CreatedAt
	note.UpdatedAt = time.Now()
	return s.save(ctx, note)
}

func (s *noteStore) save(ctx context.Context, note storage.Note) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, noteKey(note.ID),
		"id", note.ID,
		"text", note.Text,
		"created_at", note.CreatedAt.Format(time.RFC3339Nano),
		"updated_at", note.UpdatedAt.Format(time.RFC3339Nano),
	)
	pipe.SAdd(ctx, notesSetKey(), note.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes a note by ID
func (s *noteStore) Delete(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, noteKey(id)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return s.client.SRem(ctx, notesSetKey(), id).Err()
}
