package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
)

type blockStore struct {
	db *sql.DB
}

func (s *blockStore) Add(ctx context.Context, event storage.BlockEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = eventID(event.Timestamp)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_events (id, timestamp, site_id, url, limit_type, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, formatTime(event.Timestamp), event.SiteID, event.URL,
		string(event.LimitType), event.Reason)
	if err != nil {
		return fmt.Errorf("insert block event: %w", err)
	}
	return nil
}

func (s *blockStore) Query(ctx context.Context, filter storage.BlockEventFilter) ([]storage.BlockEvent, error) {
	query := "SELECT id, timestamp, site_id, url, limit_type, reason FROM block_events"
	var conditions []string
	var args []any

	if filter.SiteID != "" {
		conditions = append(conditions, "site_id = ?")
		args = append(args, filter.SiteID)
	}
	if filter.LimitType != "" {
		conditions = append(conditions, "limit_type = ?")
		args = append(args, string(filter.LimitType))
	}
	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(*filter.StartTime))
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, formatTime(*filter.EndTime))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query block events: %w", err)
	}
	defer rows.Close()

	var events []storage.BlockEvent
	for rows.Next() {
		var event storage.BlockEvent
		var ts, limitType string
		if err := rows.Scan(&event.ID, &ts, &event.SiteID, &event.URL, &limitType, &event.Reason); err != nil {
			return nil, fmt.Errorf("scan block event: %w", err)
		}
		if event.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		event.LimitType = storage.LimitType(limitType)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *blockStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM block_events WHERE timestamp < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete block events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete block events: %w", err)
	}
	return int(affected), nil
}

func eventID(ts time.Time) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%020d-%s", ts.UnixNano(), hex.EncodeToString(suffix))
}
