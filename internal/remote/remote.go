// Package remote talks to the hosted store that records are reconciled with.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/chukwu07/savings-sensei/internal/types"
)

// Remote is the hosted store as seen by the reconciliation engine.
type Remote interface {
	// Select returns every record of the table owned by userID.
	Select(ctx context.Context, table types.Table, userID string) ([]types.Record, error)
	// Insert creates rec. Replaying an insert for an existing id returns
	// the stored record instead of creating a duplicate.
	Insert(ctx context.Context, table types.Table, rec types.Record) (*types.Record, error)
	// Update overwrites the record with id.
	Update(ctx context.Context, table types.Table, id string, rec types.Record) (*types.Record, error)
	// Delete removes the record with id. Deleting an absent record succeeds.
	Delete(ctx context.Context, table types.Table, id string) error
}

// Pinger reports whether the hosted store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	ErrUnauthorized  = errors.New("remote rejected credentials")
	ErrNotConfigured = errors.New("remote URL not configured")
)

// StatusError is a non-success response from the hosted store.
type StatusError struct {
	Status int
	Title  string
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("remote returned %d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("remote returned %d %s", e.Status, e.Title)
}

func (e *StatusError) Unwrap() error {
	if e.Status == 401 {
		return ErrUnauthorized
	}
	return nil
}
