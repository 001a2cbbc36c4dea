package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/types"
)

// CompactionPlan lists the queue rewrites that shrink a queue without
// changing what the remote store ends up holding.
type CompactionPlan struct {
	// Remove holds sequences to delete.
	Remove []int64
	// Rewrite maps a kept sequence to its new payload.
	Rewrite map[int64]json.RawMessage
}

// CompactResult summarizes one compaction pass.
type CompactResult struct {
	Before    int           `json:"before"`
	After     int           `json:"after"`
	Removed   int           `json:"removed"`
	Rewritten int           `json:"rewritten"`
	Duration  time.Duration `json:"duration"`
}

type plannedEntry struct {
	m       senseisync.Mutation
	payload json.RawMessage
	dirty   bool
}

// PlanCompaction computes a compaction plan for entries in sequence order.
// Per record:
//   - adjacent UPDATEs merge into the earliest one carrying the latest payload;
//   - UPDATEs following a never-attempted INSERT fold into that INSERT;
//   - a never-attempted INSERT followed by a DELETE drops both.
//
// An INSERT that was attempted may already exist remotely, so it is never
// folded away.
func PlanCompaction(entries []senseisync.Mutation) CompactionPlan {
	plan := CompactionPlan{Rewrite: map[int64]json.RawMessage{}}
	stacks := map[string][]*plannedEntry{}
	var order []string

	for _, m := range entries {
		key := m.Key()
		stack, seen := stacks[key]
		if !seen {
			order = append(order, key)
		}

		if n := len(stack); n > 0 {
			last := stack[n-1]
			switch {
			case m.Operation == senseisync.OperationUpdate && last.m.Operation == senseisync.OperationUpdate,
				m.Operation == senseisync.OperationUpdate && last.m.Operation == senseisync.OperationInsert && last.m.Attempts == 0:
				last.payload = m.Payload
				last.dirty = true
				plan.Remove = append(plan.Remove, m.Sequence)
				continue
			case m.Operation == senseisync.OperationDelete && last.m.Operation == senseisync.OperationInsert && last.m.Attempts == 0:
				plan.Remove = append(plan.Remove, last.m.Sequence, m.Sequence)
				stacks[key] = stack[:n-1]
				continue
			}
		}
		stacks[key] = append(stack, &plannedEntry{m: m, payload: m.Payload})
	}

	for _, key := range order {
		for _, e := range stacks[key] {
			if e.dirty {
				plan.Rewrite[e.m.Sequence] = e.payload
			}
		}
	}
	return plan
}

// Compact rewrites the queue according to PlanCompaction in one transaction.
// Callers must not replay the queue concurrently.
func (q *Queue) Compact(ctx context.Context) (*CompactResult, error) {
	start := time.Now()
	result := &CompactResult{}

	err := withTx(ctx, q.db, func(tx *sql.Tx) error {
		entries, err := listMutations(ctx, tx, "SELECT "+mutationColumns+" FROM sync_queue ORDER BY sequence")
		if err != nil {
			return err
		}
		result.Before = len(entries)

		plan := PlanCompaction(entries)
		for _, seq := range plan.Remove {
			if _, err := tx.ExecContext(ctx, "DELETE FROM sync_queue WHERE sequence = ?", seq); err != nil {
				return fmt.Errorf("compact remove %d: %w", seq, err)
			}
		}
		for seq, payload := range plan.Rewrite {
			if _, err := tx.ExecContext(ctx, "UPDATE sync_queue SET payload = ? WHERE sequence = ?", string(payload), seq); err != nil {
				return fmt.Errorf("compact rewrite %d: %w", seq, err)
			}
		}
		if err := setMeta(ctx, tx, senseisync.SyncMetaLastCompactedAt, types.FormatTime(types.Now())); err != nil {
			return err
		}

		result.Removed = len(plan.Remove)
		result.Rewritten = len(plan.Rewrite)
		result.After = result.Before - result.Removed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("compact sync queue: %w", err)
	}

	result.Duration = time.Since(start)
	q.logger.Info("sync queue compacted",
		"action", "compact",
		"before", result.Before,
		"after", result.After,
		"removed", result.Removed,
		"rewritten", result.Rewritten,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}
