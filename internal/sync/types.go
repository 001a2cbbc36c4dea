package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chukwu07/savings-sensei/internal/types"
)

// Operation is the kind of change carried by a queued mutation.
type Operation string

// Operation constants
const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Mutation is one durable entry of the local mutation queue.
type Mutation struct {
	Sequence   int64           `json:"sequence"`
	Table      types.Table     `json:"table"`
	EntityID   string          `json:"entity_id"`
	UserID     string          `json:"user_id"`
	Operation  Operation       `json:"operation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
}

// Key identifies the record a mutation targets.
func (m Mutation) Key() string {
	return string(m.Table) + "/" + m.EntityID
}

// Record decodes the payload of an INSERT or UPDATE into a record.
func (m Mutation) Record() (*types.Record, error) {
	if m.Operation == OperationDelete {
		return nil, fmt.Errorf("mutation %d is a delete", m.Sequence)
	}
	var rec types.Record
	if err := json.Unmarshal(m.Payload, &rec); err != nil {
		return nil, fmt.Errorf("decode mutation %d payload: %w", m.Sequence, err)
	}
	return &rec, nil
}

// DeletePayload is the payload stored for DELETE mutations.
type DeletePayload struct {
	ID string `json:"id"`
}

// Watermark records when a table last completed a successful pull.
// It is advisory only and never used to filter what is pulled.
type Watermark struct {
	Table    types.Table `json:"table"`
	LastSync time.Time   `json:"last_sync"`
}

// SyncStats summarizes one reconciliation cycle.
type SyncStats struct {
	Skipped     bool          `json:"skipped"`
	Pulled      int           `json:"pulled"`
	PullSkipped int           `json:"pull_skipped"`
	PullErrors  int           `json:"pull_errors"`
	Pruned      int           `json:"pruned"`
	Compacted   int           `json:"compacted"`
	Pushed      int           `json:"pushed"`
	PushFailed  int           `json:"push_failed"`
	Deferred    int           `json:"deferred"`
	Duration    time.Duration `json:"duration"`
}

// Errors returns the number of failed table pulls and mutation pushes.
func (s *SyncStats) Errors() int {
	return s.PullErrors + s.PushFailed
}

// SyncMeta keys
const (
	SyncMetaWatermarkPrefix = "last_sync:"
	SyncMetaLastCompactedAt = "last_compacted_at"
)

// Remote listing limits
const (
	DefaultPageSize = 500
	MaxPageSize     = 1000
)
