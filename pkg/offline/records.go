package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/types"
	"github.com/chukwu07/savings-sensei/internal/validation"
	"github.com/oklog/ulid/v2"
)

// entity is implemented by *Transaction, *Budget and *SavingsGoal.
type entity[T any] interface {
	*T
	meta() *Meta
	table() types.Table
}

// Records reads and writes one cached table for the signed-in user. Every
// write lands in the local store and the mutation queue before it returns;
// the hosted store sees it on the next reconciliation cycle.
type Records[T any, P entity[T]] struct {
	c *Client
}

// List returns the user's records, newest first. With no user signed in it
// returns an empty list.
func (r *Records[T, P]) List(ctx context.Context) ([]T, error) {
	c := r.c
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	userID := c.userID()
	if userID == "" {
		return []T{}, nil
	}

	recs, err := c.store.Get(ctx, P(new(T)).table(), userID)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := decode[T, P](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns one of the user's records.
func (r *Records[T, P]) Get(ctx context.Context, id string) (T, error) {
	c := r.c
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		var zero T
		return zero, ErrClosed
	}
	return r.get(ctx, id)
}

func (r *Records[T, P]) get(ctx context.Context, id string) (T, error) {
	var zero T
	userID := r.c.userID()
	if userID == "" {
		return zero, ErrNoUser
	}
	rec, err := r.c.store.GetByID(ctx, P(new(T)).table(), userID, id)
	if err != nil {
		return zero, err
	}
	return decode[T, P](*rec)
}

// Create stores v as a new record and queues its INSERT. The id is
// generated when v has none; a caller id already present on the device,
// for any user, fails with ErrExists.
func (r *Records[T, P]) Create(ctx context.Context, v T) (T, error) {
	c := r.c
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	if c.closed {
		return zero, ErrClosed
	}
	userID := c.userID()
	if userID == "" {
		return zero, ErrNoUser
	}

	m := P(&v).meta()
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	now := types.Now()
	m.UserID = userID
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Synced = false
	m.PendingSync = true

	if err := r.stage(ctx, senseisync.OperationInsert, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Update loads the record, applies fn and queues the UPDATE. fn may change
// any field except the bookkeeping in Meta.
func (r *Records[T, P]) Update(ctx context.Context, id string, fn func(*T)) (T, error) {
	c := r.c
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	if c.closed {
		return zero, ErrClosed
	}

	v, err := r.get(ctx, id)
	if err != nil {
		return zero, err
	}
	before := *P(&v).meta()

	fn(&v)

	m := P(&v).meta()
	m.ID = before.ID
	m.UserID = before.UserID
	m.CreatedAt = before.CreatedAt
	m.UpdatedAt = types.Now()
	if !m.UpdatedAt.After(before.UpdatedAt) {
		m.UpdatedAt = before.UpdatedAt.Add(types.TimePrecision)
	}
	m.Synced = false
	m.PendingSync = true

	if err := r.stage(ctx, senseisync.OperationUpdate, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Remove deletes the record locally and queues the DELETE. Removing a
// record that is already gone is a no-op.
func (r *Records[T, P]) Remove(ctx context.Context, id string) error {
	c := r.c
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}

	v, err := r.get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return r.stage(ctx, senseisync.OperationDelete, &v)
}

func (r *Records[T, P]) stage(ctx context.Context, op senseisync.Operation, v *T) error {
	table := P(v).table()
	rec, err := encode[T, P](v)
	if err != nil {
		return err
	}
	if op != senseisync.OperationDelete {
		if err := validation.ValidateRecord(table, rec); err != nil {
			return err
		}
	}
	if _, err := r.c.store.Stage(ctx, table, op, rec); err != nil {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	return nil
}

// encode splits v into the stored record: Meta becomes the columns and
// everything else the data document.
func encode[T any, P entity[T]](v *T) (types.Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return types.Record{}, fmt.Errorf("encode record: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return types.Record{}, fmt.Errorf("encode record: %w", err)
	}
	for _, k := range metaKeys {
		delete(fields, k)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return types.Record{}, fmt.Errorf("encode record: %w", err)
	}

	m := P(v).meta()
	return types.Record{
		ID:          m.ID,
		UserID:      m.UserID,
		Data:        data,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		Synced:      m.Synced,
		PendingSync: m.PendingSync,
	}, nil
}

func decode[T any, P entity[T]](rec types.Record) (T, error) {
	var v T
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			return v, fmt.Errorf("decode %s: %w", rec.ID, err)
		}
	}
	m := P(&v).meta()
	m.ID = rec.ID
	m.UserID = rec.UserID
	m.CreatedAt = rec.CreatedAt
	m.UpdatedAt = rec.UpdatedAt
	m.Synced = rec.Synced
	m.PendingSync = rec.PendingSync
	return v, nil
}
