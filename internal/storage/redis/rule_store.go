package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/redis/go-redis/v9"
)

type ruleStore struct {
	client *redis.Client
}

// Get retrieves a site rule by ID
func (s *ruleStore) Get(ctx context.Context, id string) (*storage.SiteRule, error) {
	data, err := s.client.HGetAll(ctx, ruleKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseSiteRule(data)
}

// List returns all site rules
func (s *ruleStore) List(ctx context.Context) ([]storage.SiteRule, error) {
	ids, err := s.client.SMembers(ctx, rulesSetKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []storage.SiteRule{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, ruleKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	rules := make([]storage.SiteRule, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		rule, err := parseSiteRule(data)
		if err == nil {
			rules = append(rules, *rule)
		}
	}

	return rules, nil
}

// Create stores a new site rule
func (s *ruleStore) Create(ctx context.Context, rule storage.SiteRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if _, err := s.Get(ctx, rule.ID); err == nil {
		return fmt.Errorf("rule %s already exists", rule.ID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return s.save(ctx, rule)
}

// Update overwrites an existing site rule
func (s *ruleStore) Update(ctx context.Context, rule storage.SiteRule) error {
	if _, err := s.Get(ctx, rule.ID); err != nil {
		return err
	}
	return s.save(ctx, rule)
}

// save writes the rule through a Lua script that preserves created_at.
func (s *ruleStore) save(ctx context.Context, rule storage.SiteRule) error {
	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	script := redis.NewScript(saveRuleScript)
	keys := []string{ruleKey(rule.ID), rulesSetKey()}
	args := []interface{}{
		rule.ID,
		rule.Pattern,
		rule.DailyTimeLimitSeconds,
		rule.DailyOpenLimit,
		formatBool(rule.Enabled),
		rule.CreatedAt.Format(time.RFC3339Nano),
		rule.UpdatedAt.Format(time.RFC3339Nano),
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// Delete removes a site rule by ID
func (s *ruleStore) Delete(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, ruleKey(id)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return s.client.SRem(ctx, rulesSetKey(), id).Err()
}
