package api

import (
	"context"
	"errors"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/rs/zerolog"
)

// EnsureInitialAdminUser creates the initial admin user if no users exist.
func EnsureInitialAdminUser(ctx context.Context, store storage.AdminUserStore, username, password string, logger zerolog.Logger) error {
	users, err := store.List(ctx)
	if err != nil {
		return err
	}

	if len(users) > 0 {
		logger.Debug().Int("count", len(users)).Msg("Admin users already exist")
		return nil
	}

	if username == "" {
		username = "admin"
	}

	if password == "" {
		return errors.New("initial admin password cannot be empty")
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return err
	}

	user := storage.AdminUser{
		ID:           "admin-1",
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := store.Upsert(ctx, user); err != nil {
		return err
	}

	logger.Info().
		Str("username", username).
		Msg("Created initial admin user")

	if password == "changeme" || password == "admin" || password == "password" {
		logger.Warn().
			Msg("Using default admin password, change it with /api/v1/auth/change-password")
	}

	return nil
}
