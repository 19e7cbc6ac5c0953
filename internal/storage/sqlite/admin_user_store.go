package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
)

type adminUserStore struct {
	db *sql.DB
}

func (s *adminUserStore) Get(ctx context.Context, username string) (*storage.AdminUser, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, id, password_hash, created_at, updated_at, last_login
		FROM admin_users WHERE username = ?
	`, username)
	return scanAdminUser(row)
}

func (s *adminUserStore) List(ctx context.Context) ([]storage.AdminUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, id, password_hash, created_at, updated_at, last_login
		FROM admin_users ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("query admin users: %w", err)
	}
	defer rows.Close()

	var users []storage.AdminUser
	for rows.Next() {
		user, err := scanAdminUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *adminUserStore) Upsert(ctx context.Context, user storage.AdminUser) error {
	now := time.Now()
	existing, err := s.Get(ctx, user.Username)
	switch {
	case err == nil:
		user.CreatedAt = existing.CreatedAt
	case errors.Is(err, storage.ErrNotFound):
		user.CreatedAt = now
	default:
		return err
	}
	user.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO admin_users (username, id, password_hash, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			id = excluded.id,
			password_hash = excluded.password_hash,
			updated_at = excluded.updated_at,
			last_login = excluded.last_login
	`, user.Username, user.ID, user.PasswordHash,
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt), nullableTime(user.LastLogin))
	if err != nil {
		return fmt.Errorf("upsert admin user: %w", err)
	}
	return nil
}

func (s *adminUserStore) Delete(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM admin_users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("delete admin user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete admin user: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *adminUserStore) UpdateLastLogin(ctx context.Context, username string, when time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE admin_users SET last_login = ?, updated_at = ? WHERE username = ?
	`, formatTime(when), formatTime(time.Now()), username)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanAdminUser(row rowScanner) (*storage.AdminUser, error) {
	var user storage.AdminUser
	var createdAt, updatedAt string
	var lastLogin sql.NullString

	err := row.Scan(&user.Username, &user.ID, &user.PasswordHash, &createdAt, &updatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan admin user: %w", err)
	}

	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid && lastLogin.String != "" {
		t, err := parseTime(lastLogin.String)
		if err != nil {
			return nil, err
		}
		user.LastLogin = &t
	}
	return &user, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
