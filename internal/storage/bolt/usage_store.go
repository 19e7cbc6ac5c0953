package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"go.etcd.io/bbolt"
)

type usageStore struct {
	db *bbolt.DB
}

func (s *usageStore) GetDailyUsage(ctx context.Context, date string, siteID string) (*storage.UsageEntry, error) {
	key := dailyUsageKey(date, siteID)
	return getBucketValue[storage.UsageEntry](ctx, s.db, bucketDailyUsage, key)
}

func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.UsageEntry, error) {
	prefix := []byte(date + "/")
	entries := make([]storage.UsageEntry, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var entry storage.UsageEntry
			if err := unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// IncrementDailyUsage merges the deltas into the entry for date/site inside a
// single write transaction, creating the entry on first use.
func (s *usageStore) IncrementDailyUsage(ctx context.Context, date string, siteID string, seconds int64, opens int64) error {
	key := dailyUsageKey(date, siteID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return fmt.Errorf("daily usage bucket missing")
		}
		var entry storage.UsageEntry
		if existing := b.Get([]byte(key)); existing != nil {
			if err := unmarshal(existing, &entry); err != nil {
				return err
			}
		} else {
			entry = storage.UsageEntry{
				Date:   date,
				SiteID: siteID,
			}
		}
		entry.TimeSpentSeconds += seconds
		entry.Opens += opens
		data, err := marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := time.Parse(storage.DateKeyFormat, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	deleted := 0
	return deleted, s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var entry storage.UsageEntry
			if err := unmarshal(v, &entry); err != nil {
				return err
			}
			dateValue, err := time.Parse(storage.DateKeyFormat, entry.Date)
			if err != nil {
				continue
			}
			if dateValue.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
}

func dailyUsageKey(date, siteID string) string {
	return fmt.Sprintf("%s/%s", date, siteID)
}
