package main

import (
	"context"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/sqlite"
	"github.com/myrjola/vera/internal/testhelpers"
	"log/slog"
	"os"
	"time"
)

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("VERA_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "VERA_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Count the investigations and their stage results on a copy of the production database after migrating it.
	var investigations, stageResults int
	if err = db.ReadWrite.GetContext(ctx, &investigations, `SELECT COUNT(*) FROM investigations`); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error fetching investigation count", errors.SlogError(err))
		os.Exit(1)
	}
	if investigations == 0 {
		logger.LogAttrs(ctx, slog.LevelError, "no investigations found, something is likely wrong")
		os.Exit(1)
	}
	if err = db.ReadWrite.GetContext(ctx, &stageResults, `SELECT COUNT(*) FROM stage_results`); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error fetching stage result count", errors.SlogError(err))
		os.Exit(1)
	}
	// Table rebuilds run with foreign keys off.
	var violations []string
	if err = db.ReadWrite.SelectContext(ctx, &violations, `SELECT "table" FROM pragma_foreign_key_check`); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error checking foreign keys", errors.SlogError(err))
		os.Exit(1)
	}
	if len(violations) > 0 {
		logger.LogAttrs(ctx, slog.LevelError, "foreign key violations after migration",
			slog.Int("count", len(violations)), slog.String("table", violations[0]))
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "investigation count",
		slog.Int("investigations", investigations), slog.Int("stage_results", stageResults))

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
