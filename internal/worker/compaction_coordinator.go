package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chukwu07/savings-sensei/internal/local"
	"github.com/chukwu07/savings-sensei/internal/reconcile"
)

// Compactor compacts the local mutation queue.
type Compactor interface {
	Compact(ctx context.Context) (*local.CompactResult, error)
}

// CompactionCoordinator compacts the mutation queue on a fixed interval so a
// long offline period does not leave a long replay behind.
type CompactionCoordinator struct {
	compactor Compactor
	interval  time.Duration
	logger    *slog.Logger
}

// NewCompactionCoordinator creates a compaction coordinator.
func NewCompactionCoordinator(compactor Compactor, interval time.Duration, logger *slog.Logger) *CompactionCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompactionCoordinator{
		compactor: compactor,
		interval:  interval,
		logger:    logger.With("component", "worker", "worker", "compaction-coordinator"),
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
//
// The first compaction waits one interval; startup already runs a sync.
func (c *CompactionCoordinator) Run(ctx context.Context) {
	c.logger.Info("compaction coordinator started", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("compaction coordinator stopped", "reason", "context_cancelled")
			return
		case <-ticker.C:
			c.compact(ctx)
		}
	}
}

func (c *CompactionCoordinator) compact(ctx context.Context) {
	res, err := c.compactor.Compact(ctx)
	switch {
	case errors.Is(err, reconcile.ErrBusy):
		c.logger.Debug("compaction skipped, sync in progress")
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("compaction failed", "error", err)
	case res.Removed == 0:
		c.logger.Debug("nothing to compact", "queued", res.Before)
	}
}
