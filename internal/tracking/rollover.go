package tracking

import (
	"context"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/metrics"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/rs/zerolog"
)

// RolloverScheduler forces a checkpoint at the daily rollover so the engine
// starts a fresh accumulation window, and prunes ledger entries and block
// events older than the retention period. Old-day usage buckets need no
// erasing; they simply stop being read.
type RolloverScheduler struct {
	engine        *Engine
	usage         storage.UsageStore
	blocks        storage.BlockStore
	hour          int
	minute        int
	retentionDays int
	clock         Clock
	logger        zerolog.Logger
	stopChan      chan struct{}
}

// NewRolloverScheduler creates a rollover scheduler firing daily at the
// given local wall-clock time.
func NewRolloverScheduler(engine *Engine, usage storage.UsageStore, blocks storage.BlockStore, hour, minute, retentionDays int, clock Clock, logger zerolog.Logger) *RolloverScheduler {
	return &RolloverScheduler{
		engine:        engine,
		usage:         usage,
		blocks:        blocks,
		hour:          hour,
		minute:        minute,
		retentionDays: retentionDays,
		clock:         clock,
		logger:        logger.With().Str("component", "rollover").Logger(),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the rollover scheduler.
func (rs *RolloverScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Int("hour", rs.hour).
		Int("minute", rs.minute).
		Int("retention_days", rs.retentionDays).
		Msg("Daily rollover scheduler started")
}

// Stop stops the rollover scheduler.
func (rs *RolloverScheduler) Stop() {
	close(rs.stopChan)
	rs.logger.Info().Msg("Daily rollover scheduler stopped")
}

// run is the main scheduler loop.
func (rs *RolloverScheduler) run() {
	for {
		next := rs.nextRollover()
		wait := time.Until(next)

		rs.logger.Info().
			Time("next_rollover", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next daily rollover")

		select {
		case <-time.After(wait):
			rs.performRollover()
		case <-rs.stopChan:
			return
		}
	}
}

// nextRollover calculates the next rollover time.
func (rs *RolloverScheduler) nextRollover() time.Time {
	now := rs.clock.Now()

	todayRollover := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.hour, rs.minute, 0, 0,
		now.Location(),
	)

	if !now.Before(todayRollover) {
		return todayRollover.AddDate(0, 0, 1)
	}
	return todayRollover
}

// performRollover forces a checkpoint and prunes data past retention.
func (rs *RolloverScheduler) performRollover() {
	rs.logger.Info().Msg("Performing daily rollover")

	// Flush the live session so its elapsed time lands before the boundary
	// and a fresh accumulation window begins.
	rs.engine.ForceCheckpoint()
	metrics.RolloversTotal.Inc()

	if rs.retentionDays <= 0 {
		return
	}

	ctx := context.Background()
	cutoff := rs.clock.Now().AddDate(0, 0, -rs.retentionDays)
	cutoffDate := storage.DateKey(cutoff)

	deleted, err := rs.usage.DeleteDailyUsageBefore(ctx, cutoffDate)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to prune old usage entries")
	} else {
		rs.logger.Info().
			Int("entries_deleted", deleted).
			Str("cutoff_date", cutoffDate).
			Msg("Pruned old usage entries")
	}

	eventsDeleted, err := rs.blocks.DeleteBefore(ctx, cutoff)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to prune old block events")
	} else {
		rs.logger.Info().
			Int("events_deleted", eventsDeleted).
			Msg("Pruned old block events")
	}
}
