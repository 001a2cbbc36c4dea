// Package store is the hosted record store behind the sync API. One
// database/sql implementation serves both the SQLite and the PostgreSQL
// backends.
package store

import (
	"context"

	"github.com/chukwu07/savings-sensei/internal/types"
)

// Store defines the interface contract for hosted record storage. Every
// operation is scoped to the owning user.
type Store interface {
	List(ctx context.Context, table types.Table, userID, after string, limit int) ([]types.Record, bool, error)
	Get(ctx context.Context, table types.Table, userID, id string) (*types.Record, error)
	Insert(ctx context.Context, table types.Table, rec types.Record) (*types.Record, error)
	Update(ctx context.Context, table types.Table, rec types.Record) (*types.Record, error)
	Delete(ctx context.Context, table types.Table, userID, id string) error
	GetStats(ctx context.Context) (*types.StoreStats, error)
	Ping(ctx context.Context) error
	Close() error
}
