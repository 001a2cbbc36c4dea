package api

import (
	"context"

	"github.com/chukwu07/savings-sensei/internal/types"
)

// userIDContextKey is the context key for the authenticated user.
type userIDContextKey struct{}

// tableContextKey is the context key for the resolved record table.
type tableContextKey struct{}

// WithUserID returns a new context with the authenticated user attached.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext extracts the authenticated user. Returns "" if absent.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDContextKey{}).(string)
	return id
}

// WithTable returns a new context with the record table attached.
func WithTable(ctx context.Context, table types.Table) context.Context {
	return context.WithValue(ctx, tableContextKey{}, table)
}

// TableFromContext extracts the record table.
func TableFromContext(ctx context.Context) (types.Table, bool) {
	t, ok := ctx.Value(tableContextKey{}).(types.Table)
	return t, ok && t != ""
}

// MustTableFromContext extracts the table or panics.
// Use only when middleware guarantees table presence.
func MustTableFromContext(ctx context.Context) types.Table {
	t, ok := TableFromContext(ctx)
	if !ok {
		panic("table not in context: middleware misconfiguration")
	}
	return t
}
