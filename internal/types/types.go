package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Table identifies one of the synchronized record collections.
type Table string

const (
	TableTransactions Table = "transactions"
	TableBudgets      Table = "budgets"
	TableSavingsGoals Table = "savings_goals"
)

// Tables lists every synchronized table in pull order.
var Tables = []Table{TableTransactions, TableBudgets, TableSavingsGoals}

// ErrUnknownTable is returned when a table name is not one of Tables.
var ErrUnknownTable = errors.New("unknown table")

// Valid reports whether t names a synchronized table.
func (t Table) Valid() bool {
	switch t {
	case TableTransactions, TableBudgets, TableSavingsGoals:
		return true
	}
	return false
}

// ParseTable converts a raw name (path segment, CLI flag) into a Table.
func ParseTable(name string) (Table, error) {
	t := Table(name)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

// TimeLayout is the fixed-width UTC layout used for every persisted
// timestamp. Fixed width keeps lexical and chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// TimePrecision is the smallest step between two stored timestamps.
const TimePrecision = time.Microsecond

// Now returns the current UTC time at the precision timestamps are stored with.
func Now() time.Time {
	return time.Now().UTC().Truncate(TimePrecision)
}

// FormatTime formats t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(TimePrecision).Format(TimeLayout)
}

// ParseTime parses a stored timestamp. RFC 3339 values written by other
// tools are accepted as well.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

// Record is the table-agnostic representation of a financial record as it is
// cached locally and exchanged with the remote store. Data carries the
// entity-specific fields as a JSON object.
type Record struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Synced      bool            `json:"synced"`
	PendingSync bool            `json:"pending_sync"`
}

// ListResponse is one page of records returned by the remote store.
type ListResponse struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor,omitempty"`
	HasMore    bool     `json:"has_more"`
}

// DeleteResponse acknowledges a remote delete.
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// HealthResponse represents the remote store health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	RecordCount int64  `json:"record_count"`
}

// StoreStats contains aggregate statistics about a hosted store.
type StoreStats struct {
	RecordCounts map[Table]int64 `json:"record_counts"`
}

// Total returns the number of records across all tables.
func (s *StoreStats) Total() int64 {
	var n int64
	for _, c := range s.RecordCounts {
		n += c
	}
	return n
}
