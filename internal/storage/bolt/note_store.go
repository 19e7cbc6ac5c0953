package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"go.etcd.io/bbolt"
)

type noteStore struct {
	db *bbolt.DB
}

func (s *noteStore) Get(ctx context.Context, id string) (*storage.Note, error) {
	return getBucketValue[storage.Note](ctx, s.db, bucketNotes, id)
}

func (s *noteStore) List(ctx context.Context) ([]storage.Note, error) {
	return listBucket[storage.Note](ctx, s.db, bucketNotes)
}

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
	return putBucketValue(ctx, s.db, bucketNotes, note.ID, note)
}

func (s *noteStore) Update(ctx context.Context, note storage.Note) error {
	existing, err := s.Get(ctx, note.ID)
	if err != nil {
		return err
	}

	note.CreatedAt = existing.CreatedAt
	note.UpdatedAt = time.Now()
	return putBucketValue(ctx, s.db, bucketNotes, note.ID, note)
}

func (s *noteStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketNotes, id)
}
