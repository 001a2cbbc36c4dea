package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chukwu07/savings-sensei/internal/types"
)

// Dialect selects the SQL flavour of an SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const recordColumns = "id, user_id, data, created_at, updated_at"

// SQLStore implements Store on database/sql. Queries are written with ?
// placeholders and rebound for PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: types.Now}
}

// Dialect returns the store's SQL dialect.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// List returns up to limit of the user's records with id greater than
// after, in id order. The bool reports whether more records follow.
func (s *SQLStore) List(ctx context.Context, table types.Table, userID, after string, limit int) ([]types.Record, bool, error) {
	if err := checkTable(table); err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		return nil, false, fmt.Errorf("list %s: limit must be positive", table)
	}

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = ? AND id > ? ORDER BY id LIMIT ?`, recordColumns, table)
	rows, err := s.db.QueryContext(ctx, s.rebind(q), userID, after, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var recs []types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, false, fmt.Errorf("list %s: %w", table, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("list %s: %w", table, err)
	}

	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}
	return recs, hasMore, nil
}

// Get returns one of the user's records. A record owned by someone else is
// reported as not found.
func (s *SQLStore) Get(ctx context.Context, table types.Table, userID, id string) (*types.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rec, err := s.get(ctx, s.db, table, id, false)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Insert stores rec under its client-generated id. When the id already
// exists for the same user the stored row is returned unchanged, so a
// replayed insert never duplicates.
func (s *SQLStore) Insert(ctx context.Context, table types.Table, rec types.Record) (*types.Record, error) {
	if err := checkRecord(table, rec); err != nil {
		return nil, err
	}

	now := s.now()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}

	var out *types.Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`, table, recordColumns)
		if _, err := tx.ExecContext(ctx, s.rebind(q),
			rec.ID, rec.UserID, dataString(rec), types.FormatTime(created), types.FormatTime(now),
		); err != nil {
			return err
		}

		got, err := s.get(ctx, tx, table, rec.ID, true)
		if err != nil {
			return err
		}
		if got.UserID != rec.UserID {
			return ErrForbidden
		}
		out = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert %s %s: %w", table, rec.ID, err)
	}
	return out, nil
}

// Update overwrites the record's data, creating it when absent. The stored
// updated_at strictly increases on every write.
func (s *SQLStore) Update(ctx context.Context, table types.Table, rec types.Record) (*types.Record, error) {
	if err := checkRecord(table, rec); err != nil {
		return nil, err
	}

	now := s.now()

	var out *types.Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.get(ctx, tx, table, rec.ID, true)
		switch {
		case errors.Is(err, ErrNotFound):
			created := rec.CreatedAt
			if created.IsZero() {
				created = now
			}
			q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?)`, table, recordColumns)
			if _, err := tx.ExecContext(ctx, s.rebind(q),
				rec.ID, rec.UserID, dataString(rec), types.FormatTime(created), types.FormatTime(now),
			); err != nil {
				return err
			}
		case err != nil:
			return err
		case cur.UserID != rec.UserID:
			return ErrForbidden
		default:
			updated := now
			if !updated.After(cur.UpdatedAt) {
				updated = cur.UpdatedAt.Add(types.TimePrecision)
			}
			q := fmt.Sprintf(`UPDATE %s SET data = ?, updated_at = ? WHERE id = ?`, table)
			if _, err := tx.ExecContext(ctx, s.rebind(q),
				dataString(rec), types.FormatTime(updated), rec.ID,
			); err != nil {
				return err
			}
		}

		out, err = s.get(ctx, tx, table, rec.ID, false)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", table, rec.ID, err)
	}
	return out, nil
}

// Delete removes one of the user's records. Deleting a missing record
// succeeds.
func (s *SQLStore) Delete(ctx context.Context, table types.Table, userID, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.get(ctx, tx, table, id, true)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.UserID != userID {
			return ErrForbidden
		}
		q := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table)
		_, err = tx.ExecContext(ctx, s.rebind(q), id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// GetStats returns the record count of every table.
func (s *SQLStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	stats := &types.StoreStats{RecordCounts: make(map[types.Table]int64, len(types.Tables))}
	for _, table := range types.Tables {
		var n int64
		q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)
		if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats.RecordCounts[table] = n
	}
	return stats, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) get(ctx context.Context, q queryer, table types.Table, id string, lock bool) (*types.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns, table)
	if lock && s.dialect == DialectPostgres {
		query += " FOR UPDATE"
	}
	rec, err := scanRecord(q.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc rowScanner) (types.Record, error) {
	var (
		rec              types.Record
		data             string
		created, updated string
	)
	if err := sc.Scan(&rec.ID, &rec.UserID, &data, &created, &updated); err != nil {
		return types.Record{}, err
	}
	var err error
	if rec.CreatedAt, err = types.ParseTime(created); err != nil {
		return types.Record{}, err
	}
	if rec.UpdatedAt, err = types.ParseTime(updated); err != nil {
		return types.Record{}, err
	}
	rec.Data = []byte(data)
	rec.Synced = true
	return rec, nil
}

func checkTable(table types.Table) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownTable, table)
	}
	return nil
}

func checkRecord(table types.Table, rec types.Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("%s: record id and user id are required", table)
	}
	return nil
}

func dataString(rec types.Record) string {
	if len(rec.Data) == 0 {
		return "{}"
	}
	return string(rec.Data)
}
