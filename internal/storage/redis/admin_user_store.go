package redis

import (
	"context"
	"errors"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/redis/go-redis/v9"
)

type adminUserStore struct {
	client *redis.Client
}

// Get retrieves an admin user by username
func (s *adminUserStore) Get(ctx context.Context, username string) (*storage.AdminUser, error) {
	data, err := s.client.HGetAll(ctx, adminKey(username)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseAdminUser(data)
}

// List retrieves all admin users
func (s *adminUserStore) List(ctx context.Context) ([]storage.AdminUser, error) {
	usernames, err := s.client.SMembers(ctx, adminsSetKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(usernames) == 0 {
		return []storage.AdminUser{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(usernames))
	for i, username := range usernames {
		cmds[i] = pipe.HGetAll(ctx, adminKey(username))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	users := make([]storage.AdminUser, 0, len(usernames))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		user, err := parseAdminUser(data)
		if err == nil {
			users = append(users, *user)
		}
	}

	return users, nil
}

// Upsert creates or updates an admin user
func (s *adminUserStore) Upsert(ctx context.Context, user storage.AdminUser) error {
	existing, err := s.Get(ctx, user.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	now := time.Now()
	if existing != nil {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	return s.save(ctx, user)
}

func (s *adminUserStore) save(ctx context.Context, user storage.AdminUser) error {
	lastLogin := ""
	if user.LastLogin != nil {
		lastLogin = user.LastLogin.Format(time.RFC3339Nano)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, adminKey(user.Username),
		"id", user.ID,
		"username", user.Username,
		"password_hash", user.PasswordHash,
		"created_at", user.CreatedAt.Format(time.RFC3339Nano),
		"updated_at", user.UpdatedAt.Format(time.RFC3339Nano),
		"last_login", lastLogin,
	)
	pipe.SAdd(ctx, adminsSetKey(), user.Username)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes an admin user by username
func (s *adminUserStore) Delete(ctx context.Context, username string) error {
	deleted, err := s.client.Del(ctx, adminKey(username)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return s.client.SRem(ctx, adminsSetKey(), username).Err()
}

// UpdateLastLogin updates the last login timestamp for a user
func (s *adminUserStore) UpdateLastLogin(ctx context.Context, username string, loginTime time.Time) error {
	user, err := s.Get(ctx, username)
	if err != nil {
		return err
	}

	user.LastLogin = &loginTime
	user.UpdatedAt = time.Now()
	return s.save(ctx, *user)
}
