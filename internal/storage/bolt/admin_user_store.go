package bolt

import (
	"context"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"go.etcd.io/bbolt"
)

type adminUserStore struct {
	db *bbolt.DB
}

// Get retrieves an admin user by username.
func (s *adminUserStore) Get(ctx context.Context, username string) (*storage.AdminUser, error) {
	return getBucketValue[storage.AdminUser](ctx, s.db, bucketAdminUsers, username)
}

// List retrieves all admin users.
func (s *adminUserStore) List(ctx context.Context) ([]storage.AdminUser, error) {
	return listBucket[storage.AdminUser](ctx, s.db, bucketAdminUsers)
}

// Upsert creates or updates an admin user.
func (s *adminUserStore) Upsert(ctx context.Context, user storage.AdminUser) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	return putBucketValue(ctx, s.db, bucketAdminUsers, user.Username, user)
}

// Delete removes an admin user by username.
func (s *adminUserStore) Delete(ctx context.Context, username string) error {
	return deleteBucketValue(ctx, s.db, bucketAdminUsers, username)
}

// UpdateLastLogin updates the last login timestamp for a user.
func (s *adminUserStore) UpdateLastLogin(ctx context.Context, username string, loginTime time.Time) error {
	user, err := s.Get(ctx, username)
	if err != nil {
		return err
	}

	user.LastLogin = &loginTime
	user.UpdatedAt = time.Now()
	return putBucketValue(ctx, s.db, bucketAdminUsers, username, *user)
}
