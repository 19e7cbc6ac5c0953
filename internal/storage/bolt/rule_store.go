package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"go.etcd.io/bbolt"
)

type ruleStore struct {
	db *bbolt.DB
}

func (s *ruleStore) Get(ctx context.Context, id string) (*storage.SiteRule, error) {
	return getBucketValue[storage.SiteRule](ctx, s.db, bucketRules, id)
}

func (s *ruleStore) List(ctx context.Context) ([]storage.SiteRule, error) {
	return listBucket[storage.SiteRule](ctx, s.db, bucketRules)
}

func (s *ruleStore) Create(ctx context.Context, rule storage.SiteRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if _, err := s.Get(ctx, rule.ID); err == nil {
		return fmt.Errorf("rule %s already exists", rule.ID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	return putBucketValue(ctx, s.db, bucketRules, rule.ID, rule)
}

func (s *ruleStore) Update(ctx context.Context, rule storage.SiteRule) error {
	existing, err := s.Get(ctx, rule.ID)
	if err != nil {
		return err
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	return putBucketValue(ctx, s.db, bucketRules, rule.ID, rule)
}

func (s *ruleStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketRules, id)
}
