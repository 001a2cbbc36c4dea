package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/types"
)

const recordColumns = "id, user_id, data, created_at, updated_at, synced, pending_sync"

// listOrder is each table's natural display order. Table names and order
// clauses are fixed here and never derived from input.
var listOrder = map[types.Table]string{
	types.TableTransactions: "json_extract(data, '$.date') DESC, created_at DESC, id",
	types.TableBudgets:      "json_extract(data, '$.category') ASC, id",
	types.TableSavingsGoals: "json_extract(data, '$.deadline') IS NULL, json_extract(data, '$.deadline') ASC, id",
}

// MergeOutcome reports what MergeRemote did with a pulled record.
type MergeOutcome int

const (
	MergeApplied MergeOutcome = iota
	MergeSkippedDeleted
	MergeSkippedPending
	MergeSkippedStale
)

func (o MergeOutcome) String() string {
	switch o {
	case MergeApplied:
		return "applied"
	case MergeSkippedDeleted:
		return "skipped_deleted"
	case MergeSkippedPending:
		return "skipped_pending"
	case MergeSkippedStale:
		return "skipped_stale"
	}
	return "unknown"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc rowScanner) (types.Record, error) {
	var (
		rec                  types.Record
		data                 string
		createdAt, updatedAt string
		synced, pending      int
	)
	if err := sc.Scan(&rec.ID, &rec.UserID, &data, &createdAt, &updatedAt, &synced, &pending); err != nil {
		return rec, err
	}
	var err error
	if rec.CreatedAt, err = types.ParseTime(createdAt); err != nil {
		return rec, err
	}
	if rec.UpdatedAt, err = types.ParseTime(updatedAt); err != nil {
		return rec, err
	}
	rec.Data = json.RawMessage(data)
	rec.Synced = synced == 1
	rec.PendingSync = pending == 1
	return rec, nil
}

func checkTable(table types.Table) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownTable, table)
	}
	return nil
}

// Get returns all records of the table owned by userID in the table's
// natural order.
func (s *Store) Get(ctx context.Context, table types.Table, userID string) ([]types.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE user_id = ? ORDER BY %s",
		recordColumns, table, listOrder[table])
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	records := []types.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByID returns one record owned by userID.
func (s *Store) GetByID(ctx context.Context, table types.Table, userID, id string) (*types.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rec, err := getRecord(ctx, s.db, table, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrNotFound
	}
	return rec, nil
}

func getRecord(ctx context.Context, ex execer, table types.Table, id string) (*types.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", recordColumns, table)
	rec, err := scanRecord(ex.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", table, id, err)
	}
	return &rec, nil
}

// Put inserts or wholly replaces a record.
func (s *Store) Put(ctx context.Context, table types.Table, rec types.Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	return putRecord(ctx, s.db, table, rec)
}

func putRecord(ctx context.Context, ex execer, table types.Table, rec types.Record) error {
	return writeRecord(ctx, ex, table, rec, `
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			data = excluded.data,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			synced = excluded.synced,
			pending_sync = excluded.pending_sync`)
}

// insertRecord adds a record that must not exist yet, whoever owns it.
func insertRecord(ctx context.Context, ex execer, table types.Table, rec types.Record) error {
	if _, err := getRecord(ctx, ex, table, rec.ID); err == nil {
		return fmt.Errorf("insert %s %s: %w", table, rec.ID, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return writeRecord(ctx, ex, table, rec, "")
}

func writeRecord(ctx context.Context, ex execer, table types.Table, rec types.Record, onConflict string) error {
	data := rec.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)%s", table, recordColumns, onConflict)
	_, err := ex.ExecContext(ctx, query,
		rec.ID, rec.UserID, string(data),
		types.FormatTime(rec.CreatedAt), types.FormatTime(rec.UpdatedAt),
		boolInt(rec.Synced), boolInt(rec.PendingSync),
	)
	if err != nil {
		return fmt.Errorf("put %s %s: %w", table, rec.ID, err)
	}
	return nil
}

// Delete removes a record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, table types.Table, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	return deleteRecord(ctx, s.db, table, id)
}

func deleteRecord(ctx context.Context, ex execer, table types.Table, id string) error {
	if _, err := ex.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// Stage applies a user edit to the local copy and appends the matching
// mutation in one transaction. INSERT adds rec and fails with ErrExists when
// the id is taken; UPDATE writes rec as given; DELETE removes rec.ID. Either
// both effects persist or neither does.
func (s *Store) Stage(ctx context.Context, table types.Table, op senseisync.Operation, rec types.Record) (senseisync.Mutation, error) {
	if err := checkTable(table); err != nil {
		return senseisync.Mutation{}, err
	}

	m := senseisync.Mutation{
		Table:     table,
		EntityID:  rec.ID,
		UserID:    rec.UserID,
		Operation: op,
	}

	var payload []byte
	var err error
	switch op {
	case senseisync.OperationInsert, senseisync.OperationUpdate:
		payload, err = json.Marshal(rec)
	case senseisync.OperationDelete:
		payload, err = json.Marshal(senseisync.DeletePayload{ID: rec.ID})
	default:
		return m, fmt.Errorf("stage %s: unknown operation %q", table, op)
	}
	if err != nil {
		return m, fmt.Errorf("encode payload: %w", err)
	}
	m.Payload = payload

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		switch op {
		case senseisync.OperationInsert:
			err = insertRecord(ctx, tx, table, rec)
		case senseisync.OperationUpdate:
			err = putRecord(ctx, tx, table, rec)
		case senseisync.OperationDelete:
			err = deleteRecord(ctx, tx, table, rec.ID)
		}
		if err != nil {
			return err
		}
		m, err = s.queue.insert(ctx, tx, m)
		return err
	})
	if err != nil {
		return senseisync.Mutation{}, err
	}

	s.queue.warnIfOverCapacity(ctx)
	return m, nil
}

// MergeRemote folds one pulled record into the local store. A record with a
// queued DELETE is never resurrected, a record with queued edits is never
// overwritten, and only a strictly newer remote copy replaces the local one.
func (s *Store) MergeRemote(ctx context.Context, table types.Table, rec types.Record) (MergeOutcome, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}

	outcome := MergeApplied
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		ops, err := queuedOperations(ctx, tx, table, rec.ID)
		if err != nil {
			return err
		}
		for _, op := range ops {
			if op == senseisync.OperationDelete {
				outcome = MergeSkippedDeleted
				return nil
			}
		}
		if len(ops) > 0 {
			outcome = MergeSkippedPending
			return nil
		}

		existing, err := getRecord(ctx, tx, table, rec.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case existing.PendingSync:
			outcome = MergeSkippedPending
			return nil
		case !existing.UpdatedAt.Before(rec.UpdatedAt):
			outcome = MergeSkippedStale
			return nil
		}

		rec.Synced = true
		rec.PendingSync = false
		return putRecord(ctx, tx, table, rec)
	})
	if err != nil {
		return 0, fmt.Errorf("merge %s %s: %w", table, rec.ID, err)
	}
	return outcome, nil
}

// CompleteMutation removes a successfully replayed mutation. When it was the
// last queued mutation for its record, the local copy is marked synced and
// takes the content and timestamps of the record the remote returned, if any.
func (s *Store) CompleteMutation(ctx context.Context, m senseisync.Mutation, remote *types.Record) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sync_queue WHERE sequence = ?", m.Sequence); err != nil {
			return fmt.Errorf("remove mutation %d: %w", m.Sequence, err)
		}
		if m.Operation == senseisync.OperationDelete {
			return nil
		}

		var remaining int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sync_queue WHERE table_name = ? AND entity_id = ?",
			string(m.Table), m.EntityID,
		).Scan(&remaining)
		if err != nil {
			return fmt.Errorf("count mutations for %s: %w", m.Key(), err)
		}
		if remaining > 0 {
			return nil
		}

		query := fmt.Sprintf("UPDATE %s SET synced = 1, pending_sync = 0 WHERE id = ?", m.Table)
		args := []any{m.EntityID}
		switch {
		case remote == nil || remote.UpdatedAt.IsZero():
		case len(remote.Data) > 0:
			// An insert replayed after another device edited the row
			// returns that edit; the local copy must match it.
			query = fmt.Sprintf(`UPDATE %s SET data = ?, created_at = ?, updated_at = ?,
				synced = 1, pending_sync = 0 WHERE id = ?`, m.Table)
			createdAt := remote.CreatedAt
			if createdAt.IsZero() {
				createdAt = remote.UpdatedAt
			}
			args = []any{string(remote.Data), types.FormatTime(createdAt), types.FormatTime(remote.UpdatedAt), m.EntityID}
		default:
			query = fmt.Sprintf("UPDATE %s SET synced = 1, pending_sync = 0, updated_at = ? WHERE id = ?", m.Table)
			args = []any{types.FormatTime(remote.UpdatedAt), m.EntityID}
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("mark %s synced: %w", m.Key(), err)
		}
		return nil
	})
}

// PruneMissing deletes the user's synced, non-pending records whose ids are
// not in keep. keep must be the complete remote id set for the table.
func (s *Store) PruneMissing(ctx context.Context, table types.Table, userID string, keep map[string]bool) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}

	pruned := 0
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`
			SELECT id FROM %s
			WHERE user_id = ? AND synced = 1 AND pending_sync = 0
			  AND id NOT IN (SELECT entity_id FROM sync_queue WHERE table_name = ?)
		`, table)
		rows, err := tx.QueryContext(ctx, query, userID, string(table))
		if err != nil {
			return fmt.Errorf("list prunable %s: %w", table, err)
		}
		var stale []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			if !keep[id] {
				stale = append(stale, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range stale {
			if err := deleteRecord(ctx, tx, table, id); err != nil {
				return err
			}
		}
		pruned = len(stale)
		return nil
	})
	return pruned, err
}

func queuedOperations(ctx context.Context, ex execer, table types.Table, id string) ([]senseisync.Operation, error) {
	rows, err := ex.QueryContext(ctx,
		"SELECT operation FROM sync_queue WHERE table_name = ? AND entity_id = ? ORDER BY sequence",
		string(table), id,
	)
	if err != nil {
		return nil, fmt.Errorf("query queued operations: %w", err)
	}
	defer rows.Close()

	var ops []senseisync.Operation
	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return nil, err
		}
		ops = append(ops, senseisync.Operation(op))
	}
	return ops, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
