package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/config"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "timelimitd"

// Store implements the storage.Store interface using Redis
type Store struct {
	client *redis.Client
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Rules returns the RuleStore implementation
func (s *Store) Rules() storage.RuleStore {
	return &ruleStore{client: s.client}
}

// Usage returns the UsageStore implementation
func (s *Store) Usage() storage.UsageStore {
	return &usageStore{client: s.client}
}

// Notes returns the NoteStore implementation
func (s *Store) Notes() storage.NoteStore {
	return &noteStore{client: s.client}
}

// Blocks returns the BlockStore implementation
func (s *Store) Blocks() storage.BlockStore {
	return &blockStore{client: s.client}
}

// AdminUsers returns the AdminUserStore implementation
func (s *Store) AdminUsers() storage.AdminUserStore {
	return &adminUserStore{client: s.client}
}

func ruleKey(id string) string        { return fmt.Sprintf("%s:rule:%s", keyPrefix, id) }
func rulesSetKey() string             { return fmt.Sprintf("%s:rules", keyPrefix) }
func usageKey(date, siteID string) string {
	return fmt.Sprintf("%s:usage:daily:%s:%s", keyPrefix, date, siteID)
}
func usageIndexKey(date string) string { return fmt.Sprintf("%s:usage:daily:index:%s", keyPrefix, date) }
func noteKey(id string) string         { return fmt.Sprintf("%s:note:%s", keyPrefix, id) }
func notesSetKey() string              { return fmt.Sprintf("%s:notes", keyPrefix) }
func blockKey(id string) string        { return fmt.Sprintf("%s:block:%s", keyPrefix, id) }
func blockTimelineKey() string         { return fmt.Sprintf("%s:blocks:timeline", keyPrefix) }
func adminKey(username string) string  { return fmt.Sprintf("%s:admin:%s", keyPrefix, username) }
func adminsSetKey() string             { return fmt.Sprintf("%s:admins", keyPrefix) }
