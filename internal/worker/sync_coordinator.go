package worker

import (
	"context"
	"log/slog"
	"time"

	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
)

// Syncer runs one reconciliation cycle for a user.
type Syncer interface {
	PerformFullSync(ctx context.Context, userID string) (*senseisync.SyncStats, error)
}

// OnlineChecker reports whether the hosted store is reachable.
type OnlineChecker interface {
	IsOnline() bool
}

// SyncCoordinator triggers a reconciliation cycle for the current user on
// a fixed interval while the device is online.
type SyncCoordinator struct {
	syncer   Syncer
	userID   func() string
	online   OnlineChecker
	interval time.Duration
	logger   *slog.Logger
}

// NewSyncCoordinator creates a sync coordinator. online may be nil, in
// which case every tick attempts a cycle.
func NewSyncCoordinator(syncer Syncer, userID func() string, online OnlineChecker, interval time.Duration, logger *slog.Logger) *SyncCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncCoordinator{
		syncer:   syncer,
		userID:   userID,
		online:   online,
		interval: interval,
		logger:   logger.With("component", "worker", "worker", "sync-coordinator"),
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
func (c *SyncCoordinator) Run(ctx context.Context) {
	c.logger.Info("sync coordinator started", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sync coordinator stopped", "reason", "context_cancelled")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *SyncCoordinator) tick(ctx context.Context) {
	if c.online != nil && !c.online.IsOnline() {
		c.logger.Debug("offline, sync skipped")
		return
	}
	userID := c.userID()
	if userID == "" {
		return
	}

	stats, err := c.syncer.PerformFullSync(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("periodic sync failed", "error", err)
		return
	}
	if stats.Skipped {
		c.logger.Debug("periodic sync skipped, cycle already running")
	}
}
