package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/chukwu07/savings-sensei/internal/types"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewSQLStore(db, DialectPostgres)
	fixedClock(s, baseTime.Add(time.Minute), 0)
	return s, mock
}

var recordRowColumns = []string{"id", "user_id", "data", "created_at", "updated_at"}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{DialectSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DialectPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DialectPostgres, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		s := &SQLStore{dialect: tt.dialect}
		if got := s.rebind(tt.in); got != tt.want {
			t.Errorf("rebind(%s, %q) = %q, want %q", tt.dialect, tt.in, got, tt.want)
		}
	}
}

func TestPostgres_ListUsesNumberedPlaceholders(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, user_id, data, created_at, updated_at FROM budgets WHERE user_id = $1 AND id > $2 ORDER BY id LIMIT $3`,
	)).
		WithArgs("u1", "", 3).
		WillReturnRows(sqlmock.NewRows(recordRowColumns).
			AddRow("b1", "u1", `{"allocated":"150"}`, types.FormatTime(baseTime), types.FormatTime(baseTime)).
			AddRow("b2", "u1", `{}`, types.FormatTime(baseTime), types.FormatTime(baseTime)).
			AddRow("b3", "u1", `{}`, types.FormatTime(baseTime), types.FormatTime(baseTime)))

	recs, hasMore, err := s.List(context.Background(), types.TableBudgets, "u1", "", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 || !hasMore {
		t.Errorf("List = %d records, hasMore=%v; want 2, true", len(recs), hasMore)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgres_InsertLocksReadBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO transactions (id, user_id, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
	)).
		WithArgs("t1", "u1", `{}`, types.FormatTime(baseTime), types.FormatTime(baseTime.Add(time.Minute))).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, user_id, data, created_at, updated_at FROM transactions WHERE id = $1 FOR UPDATE`,
	)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(recordRowColumns).
			AddRow("t1", "u1", `{}`, types.FormatTime(baseTime), types.FormatTime(baseTime.Add(time.Minute))))
	mock.ExpectCommit()

	got, err := s.Insert(context.Background(), types.TableTransactions, testRecord("t1", "u1", `{}`))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got.ID != "t1" {
		t.Errorf("ID = %q, want t1", got.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgres_DeleteForeignRowRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, user_id, data, created_at, updated_at FROM savings_goals WHERE id = $1 FOR UPDATE`,
	)).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(recordRowColumns).
			AddRow("g1", "u2", `{}`, types.FormatTime(baseTime), types.FormatTime(baseTime)))
	mock.ExpectRollback()

	err := s.Delete(context.Background(), types.TableSavingsGoals, "u1", "g1")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Delete = %v, want ErrForbidden", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgres_DeleteMissingCommits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, user_id, data, created_at, updated_at FROM transactions WHERE id = $1 FOR UPDATE`,
	)).
		WithArgs("t1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	if err := s.Delete(context.Background(), types.TableTransactions, "u1", "t1"); err != nil {
		t.Errorf("Delete missing = %v, want nil", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
