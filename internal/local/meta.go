package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/types"
)

func setMeta(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set sync meta %s: %w", key, err)
	}
	return nil
}

func getMeta(ctx context.Context, ex execer, key string) (string, bool, error) {
	var value string
	err := ex.QueryRowContext(ctx, "SELECT value FROM sync_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get sync meta %s: %w", key, err)
	}
	return value, true, nil
}

// SetWatermark records the time of the table's last successful pull.
func (s *Store) SetWatermark(ctx context.Context, table types.Table, at time.Time) error {
	if err := checkTable(table); err != nil {
		return err
	}
	return setMeta(ctx, s.db, senseisync.SyncMetaWatermarkPrefix+string(table), types.FormatTime(at))
}

// Watermarks returns the recorded watermark of every table that has one.
func (s *Store) Watermarks(ctx context.Context) ([]senseisync.Watermark, error) {
	var marks []senseisync.Watermark
	for _, table := range types.Tables {
		value, ok, err := getMeta(ctx, s.db, senseisync.SyncMetaWatermarkPrefix+string(table))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		at, err := types.ParseTime(value)
		if err != nil {
			return nil, err
		}
		marks = append(marks, senseisync.Watermark{Table: table, LastSync: at})
	}
	return marks, nil
}

// LastCompactedAt returns when the queue was last compacted.
func (s *Store) LastCompactedAt(ctx context.Context) (time.Time, bool, error) {
	value, ok, err := getMeta(ctx, s.db, senseisync.SyncMetaLastCompactedAt)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	at, err := types.ParseTime(value)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}
