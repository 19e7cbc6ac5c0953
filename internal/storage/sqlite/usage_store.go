package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/davidgodzsak/timelimitd/internal/storage"
)

type usageStore struct {
	db *sql.DB
}

func (s *usageStore) GetDailyUsage(ctx context.Context, date, siteID string) (*storage.UsageEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, site_id, time_spent_seconds, opens
		FROM daily_usage WHERE date = ? AND site_id = ?
	`, date, siteID)

	var entry storage.UsageEntry
	err := row.Scan(&entry.Date, &entry.SiteID, &entry.TimeSpentSeconds, &entry.Opens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan usage entry: %w", err)
	}
	return &entry, nil
}

func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.UsageEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, site_id, time_spent_seconds, opens
		FROM daily_usage WHERE date = ? ORDER BY site_id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query daily usage: %w", err)
	}
	defer rows.Close()

	var entries []storage.UsageEntry
	for rows.Next() {
		var entry storage.UsageEntry
		if err := rows.Scan(&entry.Date, &entry.SiteID, &entry.TimeSpentSeconds, &entry.Opens); err != nil {
			return nil, fmt.Errorf("scan usage entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *usageStore) IncrementDailyUsage(ctx context.Context, date, siteID string, seconds, opens int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_usage (date, site_id, time_spent_seconds, opens)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date, site_id) DO UPDATE SET
			time_spent_seconds = time_spent_seconds + excluded.time_spent_seconds,
			opens = opens + excluded.opens
	`, date, siteID, seconds, opens)
	if err != nil {
		return fmt.Errorf("increment daily usage: %w", err)
	}
	return nil
}

func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM daily_usage WHERE date < ?", cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("delete daily usage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete daily usage: %w", err)
	}
	return int(affected), nil
}
