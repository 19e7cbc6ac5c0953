package redis

import (
	"context"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/redis/go-redis/v9"
)

type usageStore struct {
	client *redis.Client
}

// GetDailyUsage retrieves the usage entry for a specific date and site
func (s *usageStore) GetDailyUsage(ctx context.Context, date string, siteID string) (*storage.UsageEntry, error) {
	data, err := s.client.HGetAll(ctx, usageKey(date, siteID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseUsageEntry(data)
}

// ListDailyUsage returns all usage entries for a specific date
func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.UsageEntry, error) {
	siteIDs, err := s.client.SMembers(ctx, usageIndexKey(date)).Result()
	if err != nil {
		return nil, err
	}
	if len(siteIDs) == 0 {
		return []storage.UsageEntry{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(siteIDs))
	for i, siteID := range siteIDs {
		cmds[i] = pipe.HGetAll(ctx, usageKey(date, siteID))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	entries := make([]storage.UsageEntry, 0, len(siteIDs))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		entry, err := parseUsageEntry(data)
		if err == nil {
			entries = append(entries, *entry)
		}
	}

	return entries, nil
}

// IncrementDailyUsage atomically merges the deltas into the entry,
// creating it on first use
func (s *usageStore) IncrementDailyUsage(ctx context.Context, date string, siteID string, seconds int64, opens int64) error {
	script := redis.NewScript(incrementDailyUsageScript)

	keys := []string{usageKey(date, siteID), usageIndexKey(date)}
	args := []interface{}{date, siteID, seconds, opens, retentionTTLSeconds}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// DeleteDailyUsageBefore is a no-op for the redis backend: entries carry a
// TTL and expire on their own.
func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	return 0, nil
}
