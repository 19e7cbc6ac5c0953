package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
)

// parseSiteRule converts a Redis hash to SiteRule
func parseSiteRule(data map[string]string) (*storage.SiteRule, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	timeLimit, err := strconv.ParseInt(data["daily_time_limit_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse daily_time_limit_seconds: %w", err)
	}

	openLimit, err := strconv.ParseInt(data["daily_open_limit"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse daily_open_limit: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.SiteRule{
		ID:                    data["id"],
		Pattern:               data["pattern"],
		DailyTimeLimitSeconds: timeLimit,
		DailyOpenLimit:        openLimit,
		Enabled:               data["enabled"] == "1",
		CreatedAt:             createdAt,
		UpdatedAt:             updatedAt,
	}, nil
}

// parseUsageEntry converts a Redis hash to UsageEntry
func parseUsageEntry(data map[string]string) (*storage.UsageEntry, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	seconds, err := strconv.ParseInt(data["time_spent_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse time_spent_seconds: %w", err)
	}

	opens, err := strconv.ParseInt(data["opens"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse opens: %w", err)
	}

	return &storage.UsageEntry{
		Date:             data["date"],
		SiteID:           data["site_id"],
		TimeSpentSeconds: seconds,
		Opens:            opens,
	}, nil
}

// parseNote converts a Redis hash to Note
func parseNote(data map[string]string) (*storage.Note, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.Note{
		ID:        data["id"],
		Text:      data["text"],
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// parseBlockEvent converts a Redis hash to BlockEvent
func parseBlockEvent(data map[string]string) (*storage.BlockEvent, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	timestamp, err := time.Parse(time.RFC3339Nano, data["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	return &storage.BlockEvent{
		ID:        data["id"],
		Timestamp: timestamp,
		SiteID:    data["site_id"],
		URL:       data["url"],
		LimitType: storage.LimitType(data["limit_type"]),
		Reason:    data["reason"],
	}, nil
}

// parseAdminUser converts a Redis hash to AdminUser
func parseAdminUser(data map[string]string) (*storage.AdminUser, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	user := &storage.AdminUser{
		ID:           data["id"],
		Username:     data["username"],
		PasswordHash: data["password_hash"],
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}

	if raw, ok := data["last_login"]; ok && raw != "" {
		lastLogin, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_login: %w", err)
		}
		user.LastLogin = &lastLogin
	}

	return user, nil
}

func formatBool(value bool) string {
	if value {
		return "1"
	}
	return "0"
}
