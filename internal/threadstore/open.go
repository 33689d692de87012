package threadstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/JefferySJones/pullrequestpeon/internal/retry"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

// Open connects to the configured database, waiting for it with backoff,
// and applies the schema.
func Open(ctx context.Context, driver, url string, cfg retry.Config) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, fmt.Errorf("database url is required for driver %s", d.name)
	}

	db, err := sql.Open(d.name, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if d.name == "sqlite3" {
		// one connection so in-memory databases keep their tables
		db.SetMaxOpenConns(1)
	}

	result := retry.Do(ctx, cfg, func() error {
		return db.PingContext(ctx)
	})
	if !result.Success {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping db after %d attempts: %v", ErrUnavailable, result.Attempts, result.LastError)
	}

	store, err := NewSQLStore(db, d.name)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", d.name).Int("attempts", result.Attempts).Msg("thread store ready")
	return store, nil
}
