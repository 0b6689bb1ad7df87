package storage

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a row does not exist or is not visible to the
// requesting tenant.
var ErrNotFound = errors.New("not found")

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// DB exposes the underlying pool for collaborators that need their own SQL,
// such as the ingest job queue.
func (s *Postgres) DB() *sql.DB {
	return s.db
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
