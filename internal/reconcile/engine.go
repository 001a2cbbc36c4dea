// Package reconcile brings the local store and the hosted store into
// agreement: pull remote state, then replay queued local mutations.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chukwu07/savings-sensei/internal/local"
	"github.com/chukwu07/savings-sensei/internal/remote"
	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/types"
	"golang.org/x/sync/errgroup"
)

// ErrBusy is returned by Compact while a cycle is running.
var ErrBusy = errors.New("reconciliation in progress")

// LocalStore is the part of the local store the engine writes to.
type LocalStore interface {
	MergeRemote(ctx context.Context, table types.Table, rec types.Record) (local.MergeOutcome, error)
	CompleteMutation(ctx context.Context, m senseisync.Mutation, remote *types.Record) error
	PruneMissing(ctx context.Context, table types.Table, userID string, keep map[string]bool) (int, error)
	SetWatermark(ctx context.Context, table types.Table, at time.Time) error
}

// MutationQueue is the part of the queue the engine replays.
type MutationQueue interface {
	DrainUser(ctx context.Context, userID string) ([]senseisync.Mutation, error)
	BeginAttempt(ctx context.Context, seq int64) error
	MarkFailed(ctx context.Context, seq int64, cause error) error
	OverCapacity(ctx context.Context) (bool, error)
	Compact(ctx context.Context) (*local.CompactResult, error)
}

// Options configures an Engine.
type Options struct {
	// PruneRemoteDeletes removes synced local records that a complete pull
	// no longer returns.
	PruneRemoteDeletes bool
	// OnTransition is called after every state change.
	OnTransition func(from, to State)
	Logger       *slog.Logger
}

// Engine runs reconciliation cycles.
type Engine struct {
	local  LocalStore
	queue  MutationQueue
	remote remote.Remote
	opts   Options
	logger *slog.Logger
	cycle  *cycle
}

// New creates an Engine.
func New(store LocalStore, queue MutationQueue, r remote.Remote, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		local:  store,
		queue:  queue,
		remote: r,
		opts:   opts,
		logger: logger.With("component", "reconcile"),
		cycle:  &cycle{onTransition: opts.OnTransition},
	}
}

// State returns the current phase.
func (e *Engine) State() State {
	return e.cycle.current()
}

// PerformFullSync pulls every table for userID and then replays the user's
// queued mutations in order. A request made while a cycle is running is
// dropped and reported with Skipped set. Remote failures are logged and
// counted in the stats; the returned error is reserved for local storage
// failures and cancellation.
func (e *Engine) PerformFullSync(ctx context.Context, userID string) (*senseisync.SyncStats, error) {
	stats := &senseisync.SyncStats{}
	if userID == "" {
		return stats, nil
	}
	if !e.cycle.begin(StatePulling) {
		e.logger.Debug("sync already running, request dropped", "action", "sync_skipped")
		stats.Skipped = true
		return stats, nil
	}
	defer e.cycle.advance(StateIdle)

	start := time.Now()
	e.pull(ctx, userID, stats)

	e.cycle.advance(StatePushing)
	err := e.push(ctx, userID, stats)

	stats.Duration = time.Since(start)
	e.logger.Info("sync cycle complete",
		"action", "sync",
		"pulled", stats.Pulled,
		"pull_skipped", stats.PullSkipped,
		"pull_errors", stats.PullErrors,
		"pruned", stats.Pruned,
		"compacted", stats.Compacted,
		"pushed", stats.Pushed,
		"push_failed", stats.PushFailed,
		"deferred", stats.Deferred,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, err
}

// Compact compacts the mutation queue while no cycle is running.
func (e *Engine) Compact(ctx context.Context) (*local.CompactResult, error) {
	if !e.cycle.begin(StatePushing) {
		return nil, ErrBusy
	}
	defer e.cycle.advance(StateIdle)
	return e.queue.Compact(ctx)
}

type pullResult struct {
	records []types.Record
	err     error
}

func (e *Engine) pull(ctx context.Context, userID string, stats *senseisync.SyncStats) {
	results := make([]pullResult, len(types.Tables))

	// Fetch concurrently; one table failing must not cancel the others.
	var g errgroup.Group
	for i, table := range types.Tables {
		i, table := i, table
		g.Go(func() error {
			recs, err := e.remote.Select(ctx, table, userID)
			results[i] = pullResult{records: recs, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, table := range types.Tables {
		res := results[i]
		if res.err != nil {
			stats.PullErrors++
			e.logger.Warn("pull failed",
				"action", "pull_failed",
				"table", table,
				"error", res.err,
			)
			continue
		}
		if err := e.mergeTable(ctx, table, userID, res.records, stats); err != nil {
			stats.PullErrors++
			e.logger.Error("merge failed",
				"action", "merge_failed",
				"table", table,
				"error", err,
			)
		}
	}
}

func (e *Engine) mergeTable(ctx context.Context, table types.Table, userID string, records []types.Record, stats *senseisync.SyncStats) error {
	keep := make(map[string]bool, len(records))
	for _, rec := range records {
		keep[rec.ID] = true
		if rec.UserID != userID {
			continue
		}
		outcome, err := e.local.MergeRemote(ctx, table, rec)
		if err != nil {
			return err
		}
		if outcome == local.MergeApplied {
			stats.Pulled++
		} else {
			stats.PullSkipped++
		}
	}

	if e.opts.PruneRemoteDeletes {
		n, err := e.local.PruneMissing(ctx, table, userID, keep)
		if err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
		stats.Pruned += n
	}

	return e.local.SetWatermark(ctx, table, types.Now())
}

func (e *Engine) push(ctx context.Context, userID string, stats *senseisync.SyncStats) error {
	over, err := e.queue.OverCapacity(ctx)
	if err != nil {
		return fmt.Errorf("check queue capacity: %w", err)
	}
	if over {
		res, err := e.queue.Compact(ctx)
		if err != nil {
			e.logger.Error("compaction failed", "action", "compact_failed", "error", err)
		} else {
			stats.Compacted = res.Removed
		}
	}

	entries, err := e.queue.DrainUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}

	// Once an entry fails, later entries for the same record wait for the
	// next cycle so a record's mutations never apply out of order.
	blocked := make(map[string]bool)
	for _, m := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if blocked[m.Key()] {
			stats.Deferred++
			continue
		}

		if err := e.queue.BeginAttempt(ctx, m.Sequence); err != nil {
			return err
		}

		stored, err := e.replay(ctx, m)
		if err != nil {
			blocked[m.Key()] = true
			stats.PushFailed++
			e.logger.Warn("push failed",
				"action", "push_failed",
				"sequence", m.Sequence,
				"table", m.Table,
				"entity_id", m.EntityID,
				"operation", m.Operation,
				"attempts", m.Attempts+1,
				"error", err,
			)
			if markErr := e.queue.MarkFailed(ctx, m.Sequence, err); markErr != nil {
				return markErr
			}
			continue
		}

		if err := e.local.CompleteMutation(ctx, m, stored); err != nil {
			return fmt.Errorf("complete mutation %d: %w", m.Sequence, err)
		}
		stats.Pushed++
	}
	return nil
}

// replay sends one mutation to the remote.
func (e *Engine) replay(ctx context.Context, m senseisync.Mutation) (*types.Record, error) {
	switch m.Operation {
	case senseisync.OperationInsert:
		rec, err := m.Record()
		if err != nil {
			return nil, err
		}
		return e.remote.Insert(ctx, m.Table, *rec)
	case senseisync.OperationUpdate:
		rec, err := m.Record()
		if err != nil {
			return nil, err
		}
		return e.remote.Update(ctx, m.Table, m.EntityID, *rec)
	case senseisync.OperationDelete:
		return nil, e.remote.Delete(ctx, m.Table, m.EntityID)
	}
	return nil, fmt.Errorf("unknown operation %q", m.Operation)
}
