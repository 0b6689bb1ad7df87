package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sitewise-ai/sitewise/pkg/resource"
)

func (s *Postgres) GetPage(ctx context.Context, url string) (*resource.CachedPage, error) {
	var p resource.CachedPage
	err := s.db.QueryRowContext(ctx, `
		SELECT url, body, fetched_at, expires_at FROM page_cache WHERE url = $1`,
		url,
	).Scan(&p.URL, &p.Body, &p.FetchedAt, &p.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PutPage upserts a cached body. Last write wins; concurrent writers for the
// same URL need no further coordination.
func (s *Postgres) PutPage(ctx context.Context, p *resource.CachedPage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_cache (url, body, fetched_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO UPDATE
		SET body = EXCLUDED.body, fetched_at = EXCLUDED.fetched_at, expires_at = EXCLUDED.expires_at`,
		p.URL, p.Body, p.FetchedAt, p.ExpiresAt,
	)
	return err
}

func (s *Postgres) DeletePage(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM page_cache WHERE url = $1`, url)
	return err
}

// PurgeExpiredPages drops every row past its expiry. Called by the worker's
// housekeeping loop; correctness never depends on it since readers treat
// expired rows as misses.
func (s *Postgres) PurgeExpiredPages(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM page_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
