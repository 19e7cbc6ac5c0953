package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
)

type ruleStore struct {
	db *sql.DB
}

func (s *ruleStore) Get(ctx context.Context, id string) (*storage.SiteRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pattern, daily_time_limit_seconds, daily_open_limit, enabled, created_at, updated_at
		FROM site_rules WHERE id = ?
	`, id)
	return scanRule(row)
}

func (s *ruleStore) List(ctx context.Context) ([]storage.SiteRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern, daily_time_limit_seconds, daily_open_limit, enabled, created_at, updated_at
		FROM site_rules ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query site rules: %w", err)
	}
	defer rows.Close()

	var rules []storage.SiteRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (s *ruleStore) Create(ctx context.Context, rule storage.SiteRule) error {
	if rule.ID == "" {
		return errors.New("rule ID is required")
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_rules (id, pattern, daily_time_limit_seconds, daily_open_limit, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.Pattern, rule.DailyTimeLimitSeconds, rule.DailyOpenLimit,
		boolToInt(rule.Enabled), formatTime(rule.CreatedAt), formatTime(rule.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert site rule: %w", err)
	}
	return nil
}

func (s *ruleStore) Update(ctx context.Context, rule storage.SiteRule) error {
	existing, err := s.Get(ctx, rule.ID)
	if err != nil {
		return err
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx, `
		UPDATE site_rules
		SET pattern = ?, daily_time_limit_seconds = ?, daily_open_limit = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, rule.Pattern, rule.DailyTimeLimitSeconds, rule.DailyOpenLimit,
		boolToInt(rule.Enabled), formatTime(rule.UpdatedAt), rule.ID)
	if err != nil {
		return fmt.Errorf("update site rule: %w", err)
	}
	return nil
}

func (s *ruleStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM site_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete site rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete site rule: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*storage.SiteRule, error) {
	var rule storage.SiteRule
	var enabled int
	var createdAt, updatedAt string

	err := row.Scan(&rule.ID, &rule.Pattern, &rule.DailyTimeLimitSeconds,
		&rule.DailyOpenLimit, &enabled, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan site rule: %w", err)
	}

	rule.Enabled = enabled != 0
	if rule.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rule.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
