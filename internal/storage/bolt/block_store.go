package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"go.etcd.io/bbolt"
)

type blockStore struct {
	db *bbolt.DB
}

func (s *blockStore) Add(ctx context.Context, event storage.BlockEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		key, err := eventKey(event.Timestamp)
		if err != nil {
			return err
		}
		event.ID = key
	}
	data, err := marshal(event)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketBlockEvents))
		if bucket == nil {
			return fmt.Errorf("block events bucket missing")
		}
		return bucket.Put([]byte(event.ID), data)
	})
}

// Query walks events newest first and applies the filter. Keys are
// time-ordered, so the reverse cursor already yields recency order.
func (s *blockStore) Query(ctx context.Context, filter storage.BlockEventFilter) ([]storage.BlockEvent, error) {
	events := make([]storage.BlockEvent, 0)
	skipped := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketBlockEvents))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var event storage.BlockEvent
			if err := unmarshal(v, &event); err != nil {
				return err
			}
			if !matchBlockEvent(event, filter) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			events = append(events, event)
			if filter.Limit > 0 && len(events) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	return events, err
}

func (s *blockStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	return deleted, s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketBlockEvents))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var event storage.BlockEvent
			if err := unmarshal(v, &event); err != nil {
				return err
			}
			if event.Timestamp.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
}

func matchBlockEvent(event storage.BlockEvent, filter storage.BlockEventFilter) bool {
	if filter.SiteID != "" && event.SiteID != filter.SiteID {
		return false
	}
	if filter.LimitType != "" && event.LimitType != filter.LimitType {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}
