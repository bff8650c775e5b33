// Package pg stores every collection as JSONB documents in Postgres.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"horizon.shop/internal/store"
)

const defaultTimeout = 5 * time.Second

// Backend is a store.Backend over a shared *sql.DB pool.
type Backend struct {
	db      *sql.DB
	timeout time.Duration
}

var _ store.Backend = (*Backend)(nil)

// Open connects with the pgx driver and tunes the pool.
func Open(dsn string, timeout time.Duration) (*Backend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewBackend(db, timeout), nil
}

// NewBackend wraps an existing pool. Every operation is bounded by timeout.
func NewBackend(db *sql.DB, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Backend{db: db, timeout: timeout}
}

func (b *Backend) DB() *sql.DB { return b.db }

func (b *Backend) Collection(name string) store.Collection {
	return &Collection{db: b.db, name: name, timeout: b.timeout}
}

func (b *Backend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.db.PingContext(ctx)
}

func (b *Backend) Close() error { return b.db.Close() }

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrConflict
	}
	return err
}
