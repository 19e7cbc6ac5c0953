package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Rules() RuleStore
	Usage() UsageStore
	Notes() NoteStore
	Blocks() BlockStore
	AdminUsers() AdminUserStore
}

// RuleStore manages the site registry.
type RuleStore interface {
	Get(ctx context.Context, id string) (*SiteRule, error)
	List(ctx context.Context) ([]SiteRule, error)
	Create(ctx context.Context, rule SiteRule) error
	Update(ctx context.Context, rule SiteRule) error
	Delete(ctx context.Context, id string) error
}

// UsageStore manages the per-day usage ledger. Writes are additive merges:
// IncrementDailyUsage creates the entry lazily and never overwrites totals.
type UsageStore interface {
	GetDailyUsage(ctx context.Context, date string, siteID string) (*UsageEntry, error)
	ListDailyUsage(ctx context.Context, date string) ([]UsageEntry, error)
	IncrementDailyUsage(ctx context.Context, date string, siteID string, seconds int64, opens int64) error
	DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error)
}

// NoteStore manages motivational notes.
type NoteStore interface {
	Get(ctx context.Context, id string) (*Note, error)
	List(ctx context.Context) ([]Note, error)
	Create(ctx context.Context, note Note) error
	Update(ctx context.Context, note Note) error
	Delete(ctx context.Context, id string) error
}

// BlockStore manages the block event log.
type BlockStore interface {
	Add(ctx context.Context, event BlockEvent) error
	Query(ctx context.Context, filter BlockEventFilter) ([]BlockEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// BlockEventFilter defines criteria for querying block events.
type BlockEventFilter struct {
	SiteID    string
	LimitType LimitType
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// AdminUserStore manages admin user accounts.
type AdminUserStore interface {
	Get(ctx context.Context, username string) (*AdminUser, error)
	List(ctx context.Context) ([]AdminUser, error)
	Upsert(ctx context.Context, user AdminUser) error
	Delete(ctx context.Context, username string) error
	UpdateLastLogin(ctx context.Context, username string, loginTime time.Time) error
}
