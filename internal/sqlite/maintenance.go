package sqlite

import (
	"context"
	"github.com/myrjola/vera/internal/errors"
	"log/slog"
	"time"
)

// maintenanceStatements keep query plans fresh and stop the WAL from growing between checkpoints. See
// https://www.sqlite.org/pragma.html#pragma_optimize and https://www.sqlite.org/pragma.html#pragma_wal_checkpoint.
var maintenanceStatements = []string{
	"PRAGMA optimize;",
	"PRAGMA wal_checkpoint(TRUNCATE);",
}

// RunMaintenance maintains the database right away and then every interval until ctx is done.
func (db *Database) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		db.maintain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (db *Database) maintain(ctx context.Context) {
	start := time.Now()
	for _, stmt := range maintenanceStatements {
		if _, err := db.ReadWrite.ExecContext(ctx, stmt); err != nil {
			if ctx.Err() != nil {
				return
			}
			err = errors.Wrap(err, "maintain database", slog.String("statement", stmt))
			db.logger.LogAttrs(ctx, slog.LevelError, "database maintenance failed", errors.SlogError(err))
			return
		}
	}
	db.logger.LogAttrs(ctx, slog.LevelDebug, "database maintained", slog.Duration("duration", time.Since(start)))
}
