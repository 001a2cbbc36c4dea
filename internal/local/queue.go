package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/types"
)

const mutationColumns = "sequence, table_name, entity_id, user_id, operation, payload, queued_at, attempts, last_error"

// Queue is the durable, ordered log of local edits awaiting replay against
// the remote store. It lives in the same database as the record tables.
type Queue struct {
	db       *sql.DB
	capacity int
	logger   *slog.Logger
}

// Capacity returns the configured soft bound (0 = unbounded).
func (q *Queue) Capacity() int {
	return q.capacity
}

// Enqueue appends a mutation. It never rejects an entry: exceeding the
// configured capacity only logs a warning.
func (q *Queue) Enqueue(ctx context.Context, table types.Table, op senseisync.Operation, entityID, userID string, payload json.RawMessage) (senseisync.Mutation, error) {
	if err := checkTable(table); err != nil {
		return senseisync.Mutation{}, err
	}
	if !op.Valid() {
		return senseisync.Mutation{}, fmt.Errorf("enqueue: unknown operation %q", op)
	}

	m, err := q.insert(ctx, q.db, senseisync.Mutation{
		Table:     table,
		EntityID:  entityID,
		UserID:    userID,
		Operation: op,
		Payload:   payload,
	})
	if err != nil {
		return m, err
	}
	q.warnIfOverCapacity(ctx)
	return m, nil
}

func (q *Queue) insert(ctx context.Context, ex execer, m senseisync.Mutation) (senseisync.Mutation, error) {
	m.EnqueuedAt = types.Now()
	res, err := ex.ExecContext(ctx, `
		INSERT INTO sync_queue (table_name, entity_id, user_id, operation, payload, queued_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(m.Table), m.EntityID, m.UserID, string(m.Operation), string(m.Payload), types.FormatTime(m.EnqueuedAt))
	if err != nil {
		return m, fmt.Errorf("enqueue %s %s: %w", m.Operation, m.Key(), err)
	}
	if m.Sequence, err = res.LastInsertId(); err != nil {
		return m, fmt.Errorf("enqueue sequence: %w", err)
	}
	return m, nil
}

func (q *Queue) warnIfOverCapacity(ctx context.Context) {
	if q.capacity <= 0 {
		return
	}
	n, err := q.Len(ctx)
	if err != nil || n <= q.capacity {
		return
	}
	q.logger.Warn("mutation queue over capacity",
		"action", "enqueue",
		"queued", n,
		"capacity", q.capacity,
	)
}

// Drain returns every queued mutation in sequence order without removing them.
func (q *Queue) Drain(ctx context.Context) ([]senseisync.Mutation, error) {
	return listMutations(ctx, q.db, "SELECT "+mutationColumns+" FROM sync_queue ORDER BY sequence")
}

// DrainUser returns the user's queued mutations in sequence order.
func (q *Queue) DrainUser(ctx context.Context, userID string) ([]senseisync.Mutation, error) {
	return listMutations(ctx, q.db,
		"SELECT "+mutationColumns+" FROM sync_queue WHERE user_id = ? ORDER BY sequence", userID)
}

func listMutations(ctx context.Context, ex execer, query string, args ...any) ([]senseisync.Mutation, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync queue: %w", err)
	}
	defer rows.Close()

	mutations := []senseisync.Mutation{}
	for rows.Next() {
		var (
			m                senseisync.Mutation
			table, op        string
			payload, lastErr sql.NullString
			queuedAt         string
		)
		if err := rows.Scan(&m.Sequence, &table, &m.EntityID, &m.UserID, &op, &payload, &queuedAt, &m.Attempts, &lastErr); err != nil {
			return nil, fmt.Errorf("scan sync queue: %w", err)
		}
		m.Table = types.Table(table)
		m.Operation = senseisync.Operation(op)
		if payload.Valid {
			m.Payload = json.RawMessage(payload.String)
		}
		m.LastError = lastErr.String
		if m.EnqueuedAt, err = types.ParseTime(queuedAt); err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	return mutations, rows.Err()
}

// Remove deletes one entry. Removing an absent entry is not an error.
func (q *Queue) Remove(ctx context.Context, seq int64) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE sequence = ?", seq); err != nil {
		return fmt.Errorf("remove mutation %d: %w", seq, err)
	}
	return nil
}

// Clear drops every queued mutation and returns how many were dropped.
// Administrative only: dropped edits are never replayed. Records lose their
// pending flag in the same transaction; their content is kept.
func (q *Queue) Clear(ctx context.Context) (int64, error) {
	var n int64
	err := withTx(ctx, q.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM sync_queue")
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		for _, table := range types.Tables {
			if _, err := tx.ExecContext(ctx, "UPDATE "+string(table)+" SET pending_sync = 0 WHERE pending_sync = 1"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear sync queue: %w", err)
	}
	q.logger.Warn("sync queue cleared", "action", "clear", "dropped", n)
	return n, nil
}

// Len returns the number of queued mutations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return n, nil
}

// LenUser returns the number of mutations queued for one user.
func (q *Queue) LenUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue WHERE user_id = ?", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return n, nil
}

// BeginAttempt records that a replay of the entry is about to be sent.
// Counting before the call means an entry with zero attempts has certainly
// never reached the remote.
func (q *Queue) BeginAttempt(ctx context.Context, seq int64) error {
	if _, err := q.db.ExecContext(ctx, "UPDATE sync_queue SET attempts = attempts + 1 WHERE sequence = ?", seq); err != nil {
		return fmt.Errorf("begin attempt %d: %w", seq, err)
	}
	return nil
}

// MarkFailed stores the failure text of the latest replay attempt.
func (q *Queue) MarkFailed(ctx context.Context, seq int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := q.db.ExecContext(ctx, "UPDATE sync_queue SET last_error = ? WHERE sequence = ?", msg, seq); err != nil {
		return fmt.Errorf("mark mutation %d failed: %w", seq, err)
	}
	return nil
}

// PendingDeletes returns the ids with a queued DELETE in the table.
func (q *Queue) PendingDeletes(ctx context.Context, table types.Table) (map[string]bool, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT entity_id FROM sync_queue WHERE table_name = ? AND operation = 'DELETE'", string(table))
	if err != nil {
		return nil, fmt.Errorf("query pending deletes: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// OverCapacity reports whether the queue holds more entries than its capacity.
func (q *Queue) OverCapacity(ctx context.Context) (bool, error) {
	if q.capacity <= 0 {
		return false, nil
	}
	n, err := q.Len(ctx)
	if err != nil {
		return false, err
	}
	return n > q.capacity, nil
}
