// Package threadstore persists the branch to chat thread mapping.
//
// Records are append-only. Superseding a thread means inserting a newer row
// for the same branch; Latest always returns the newest row by creation order.
package threadstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrUnavailable wraps any failure talking to the backing database.
var ErrUnavailable = errors.New("thread store unavailable")

// Record maps a branch to the chat message timestamp of its thread.
type Record struct {
	ID        int64     `json:"id"`
	Branch    string    `json:"branch"`
	Timestamp string    `json:"ts"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence surface the reconciler depends on.
type Store interface {
	Insert(ctx context.Context, branch, ts string) (Record, error)
	// Latest returns nil, nil when the branch has no record.
	Latest(ctx context.Context, branch string) (*Record, error)
	Ping(ctx context.Context) error
	Close() error
}

type dialect struct {
	name        string
	schema      string
	insertQuery string
	latestQuery string
	// returning is true when insertQuery yields the new id via RETURNING.
	returning bool
}

var postgresDialect = dialect{
	name:        "postgres",
	schema:      postgresSchema,
	insertQuery: `INSERT INTO threads (branch, ts, created_at) VALUES ($1, $2, $3) RETURNING id`,
	latestQuery: `SELECT id, branch, ts, created_at FROM threads WHERE branch = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
	returning:   true,
}

var sqliteDialect = dialect{
	name:        "sqlite3",
	schema:      sqliteSchema,
	insertQuery: `INSERT INTO threads (branch, ts, created_at) VALUES (?, ?, ?)`,
	latestQuery: `SELECT id, branch, ts, created_at FROM threads WHERE branch = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
}

// SQLStore is a Store over database/sql. Every statement runs in autocommit.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewSQLStore wraps an open database handle. driver is "postgres" or "sqlite3".
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &SQLStore{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres":
		return postgresDialect, nil
	case "sqlite3", "sqlite":
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("%w: failed to apply schema: %v", ErrUnavailable, err)
	}
	log.Debug().Str("driver", s.dialect.name).Msg("thread store schema applied")
	return nil
}

// Insert appends a new record for branch.
func (s *SQLStore) Insert(ctx context.Context, branch, ts string) (Record, error) {
	rec := Record{
		Branch:    branch,
		Timestamp: ts,
		CreatedAt: s.now(),
	}

	if s.dialect.returning {
		err := s.db.QueryRowContext(ctx, s.dialect.insertQuery, branch, ts, rec.CreatedAt).Scan(&rec.ID)
		if err != nil {
			return Record{}, fmt.Errorf("%w: failed to insert thread: %v", ErrUnavailable, err)
		}
	} else {
		res, err := s.db.ExecContext(ctx, s.dialect.insertQuery, branch, ts, rec.CreatedAt)
		if err != nil {
			return Record{}, fmt.Errorf("%w: failed to insert thread: %v", ErrUnavailable, err)
		}
		if rec.ID, err = res.LastInsertId(); err != nil {
			return Record{}, fmt.Errorf("%w: failed to read thread id: %v", ErrUnavailable, err)
		}
	}

	log.Debug().
		Int64("id", rec.ID).
		Str("branch", branch).
		Str("ts", ts).
		Msg("Inserted thread record")

	return rec, nil
}

// Latest returns the newest record for branch.
func (s *SQLStore) Latest(ctx context.Context, branch string) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, s.dialect.latestQuery, branch).
		Scan(&rec.ID, &rec.Branch, &rec.Timestamp, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load thread: %v", ErrUnavailable, err)
	}
	return &rec, nil
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
