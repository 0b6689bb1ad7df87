package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/sitewise-ai/sitewise/pkg/resource"
)

func (s *Postgres) CreateResource(ctx context.Context, r *resource.Resource) error {
	keywords, err := json.Marshal(r.Keywords)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, tenant_id, kind, source, status, keywords, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		r.ID, r.TenantID, r.Kind, r.Source, r.Status, keywords, r.CreatedAt,
	)
	return err
}

func (s *Postgres) GetResource(ctx context.Context, tenantID, id string) (*resource.Resource, error) {
	return s.scanResource(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, kind, source, status, COALESCE(error, ''),
		       pages_crawled, content_size, keywords, COALESCE(site_index_id::text, ''),
		       created_at, updated_at
		FROM resources WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	))
}

// GetResourceAny looks a resource up without tenant scoping. Worker-side
// only; the HTTP surface always goes through GetResource.
func (s *Postgres) GetResourceAny(ctx context.Context, id string) (*resource.Resource, error) {
	return s.scanResource(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, kind, source, status, COALESCE(error, ''),
		       pages_crawled, content_size, keywords, COALESCE(site_index_id::text, ''),
		       created_at, updated_at
		FROM resources WHERE id = $1`,
		id,
	))
}

func (s *Postgres) ListResources(ctx context.Context, tenantID string) ([]*resource.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, kind, source, status, COALESCE(error, ''),
		       pages_crawled, content_size, keywords, COALESCE(site_index_id::text, ''),
		       created_at, updated_at
		FROM resources WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*resource.Resource
	for rows.Next() {
		r, err := s.scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompareAndSwapResourceStatus transitions a resource's status only if the
// current status is one of from. Concurrent callers race on the row update,
// not on any process-local state, so transitions stay linearizable across
// server and worker processes.
func (s *Postgres) CompareAndSwapResourceStatus(ctx context.Context, id string, from []resource.Status, to resource.Status, errMsg string) (bool, error) {
	prior := make([]string, len(from))
	for i, st := range from {
		prior[i] = string(st)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE resources
		SET status = $2, error = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND status = ANY($4)`,
		id, to, errMsg, pq.Array(prior),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Postgres) SetResourceCrawlStats(ctx context.Context, id string, pagesCrawled int, contentSize int64, keywords []string) error {
	kw, err := json.Marshal(keywords)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE resources
		SET pages_crawled = $2, content_size = $3, keywords = $4, updated_at = now()
		WHERE id = $1`,
		id, pagesCrawled, contentSize, kw,
	)
	return err
}

func (s *Postgres) SetResourceSiteIndex(ctx context.Context, id, siteIndexID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE resources SET site_index_id = $2, updated_at = now() WHERE id = $1`,
		id, siteIndexID,
	)
	return err
}

// DeleteResource removes the resource row; the site index and its entries go
// with it via ON DELETE CASCADE. Shared page cache rows are left alone.
func (s *Postgres) DeleteResource(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM resources WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanResource(row rowScanner) (*resource.Resource, error) {
	var r resource.Resource
	var keywords []byte
	err := row.Scan(&r.ID, &r.TenantID, &r.Kind, &r.Source, &r.Status, &r.Error,
		&r.PagesCrawled, &r.ContentSize, &keywords, &r.SiteIndexID,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(keywords, &r.Keywords); err != nil {
		return nil, err
	}
	return &r, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
