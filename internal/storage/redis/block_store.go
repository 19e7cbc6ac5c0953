package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/redis/go-redis/v9"
)

type blockStore struct {
	client *redis.Client
}

// Add stores a block event and indexes it on the timeline
func (s *blockStore) Add(ctx context.Context, event storage.BlockEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		id, err := eventID(event.Timestamp)
		if err != nil {
			return err
		}
		event.ID = id
	}

	script := redis.NewScript(addBlockEventScript)
	keys := []string{blockKey(event.ID), blockTimelineKey()}
	args := []interface{}{
		event.ID,
		event.Timestamp.UnixNano(),
		event.Timestamp.Format(time.RFC3339Nano),
		event.SiteID,
		event.URL,
		string(event.LimitType),
		event.Reason,
		retentionTTLSeconds,
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// Query returns filtered block events, newest first
func (s *blockStore) Query(ctx context.Context, filter storage.BlockEventFilter) ([]storage.BlockEvent, error) {
	min, max := "-inf", "+inf"
	if filter.StartTime != nil {
		min = strconv.FormatInt(filter.StartTime.UnixNano(), 10)
	}
	if filter.EndTime != nil {
		max = strconv.FormatInt(filter.EndTime.UnixNano(), 10)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, blockTimelineKey(), &redis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []storage.BlockEvent{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, blockKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	events := make([]storage.BlockEvent, 0, len(ids))
	skipped := 0
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		event, err := parseBlockEvent(data)
		if err != nil {
			continue
		}
		if filter.SiteID != "" && event.SiteID != filter.SiteID {
			continue
		}
		if filter.LimitType != "" && event.LimitType != filter.LimitType {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		events = append(events, *event)
		if filter.Limit > 0 && len(events) >= filter.Limit {
			break
		}
	}

	return events, nil
}

// DeleteBefore removes block events with timestamps before the cutoff
func (s *blockStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	max := strconv.FormatInt(cutoff.UnixNano()-1, 10)
	ids, err := s.client.ZRangeByScore(ctx, blockTimelineKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = blockKey(id)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	if err := s.client.ZRemRangeByScore(ctx, blockTimelineKey(), "-inf", max).Err(); err != nil {
		return 0, err
	}

	return len(ids), nil
}

func eventID(ts time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random suffix: %w", err)
	}
	return fmt.Sprintf("%020d-%s", ts.UnixNano(), hex.EncodeToString(buf)), nil
}
