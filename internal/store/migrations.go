package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/chukwu07/savings-sensei/migrations"
	"github.com/pressly/goose/v3"
)

// RunMigrations applies all pending hosted-store migrations using goose.
// Both dialects share the embedded remote migration set.
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	fsys, err := migrations.Sub(migrations.Remote)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	gooseDialect := goose.DialectSQLite3
	if dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(gooseDialect, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	for _, r := range results {
		slog.Debug("applied migration",
			"component", "store",
			"action", "migrate",
			"dialect", string(dialect),
			"source", r.Source.Path,
			"duration_ms", r.Duration.Milliseconds(),
		)
	}
	return nil
}
