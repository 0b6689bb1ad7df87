package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/sitewise-ai/sitewise/pkg/resource"
)

func (s *Postgres) CreateSiteIndex(ctx context.Context, idx *resource.SiteIndex) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_indexes (id, resource_id, base_url, status, robots_honored, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (resource_id) DO UPDATE
		SET base_url = EXCLUDED.base_url, status = EXCLUDED.status, updated_at = now()`,
		idx.ID, idx.ResourceID, idx.BaseURL, idx.Status, idx.RobotsHonored, idx.CreatedAt,
	)
	return err
}

func (s *Postgres) GetSiteIndexByResource(ctx context.Context, resourceID string) (*resource.SiteIndex, error) {
	var idx resource.SiteIndex
	err := s.db.QueryRowContext(ctx, `
		SELECT id, resource_id, base_url, status, pages_crawled, robots_honored, COALESCE(last_error, ''), created_at, updated_at
		FROM site_indexes WHERE resource_id = $1`,
		resourceID,
	).Scan(&idx.ID, &idx.ResourceID, &idx.BaseURL, &idx.Status, &idx.PagesCrawled,
		&idx.RobotsHonored, &idx.LastError, &idx.CreatedAt, &idx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

func (s *Postgres) UpdateSiteIndexStatus(ctx context.Context, id string, status resource.Status, pagesCrawled int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE site_indexes
		SET status = $2, pages_crawled = $3, last_error = NULLIF($4, ''), updated_at = now()
		WHERE id = $1`,
		id, status, pagesCrawled, lastError,
	)
	return err
}

// UpsertEntry replaces any prior entry for the same URL within the index.
// Entries are only ever written by a crawl pass.
func (s *Postgres) UpsertEntry(ctx context.Context, e *resource.Entry) error {
	keywords, err := json.Marshal(e.Keywords)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO site_index_entries (id, site_index_id, url, title, description, keywords, crawled_at, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (site_index_id, url) DO UPDATE
		SET title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    keywords = EXCLUDED.keywords,
		    crawled_at = EXCLUDED.crawled_at,
		    last_modified = EXCLUDED.last_modified`,
		e.ID, e.SiteIndexID, e.URL, e.Title, e.Description, keywords, e.CrawledAt, nullableTime(e.LastModified),
	)
	return err
}

func (s *Postgres) ListEntries(ctx context.Context, siteIndexID string) ([]*resource.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site_index_id, url, title, description, keywords, crawled_at, last_modified
		FROM site_index_entries WHERE site_index_id = $1 ORDER BY crawled_at, id`,
		siteIndexID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListTenantEntries returns every site index entry reachable from the
// tenant's resources; the retrieval engine scores these.
func (s *Postgres) ListTenantEntries(ctx context.Context, tenantID string) ([]*resource.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.site_index_id, e.url, e.title, e.description, e.keywords, e.crawled_at, e.last_modified
		FROM site_index_entries e
		JOIN site_indexes si ON si.id = e.site_index_id
		JOIN resources r ON r.id = si.resource_id
		WHERE r.tenant_id = $1
		ORDER BY e.crawled_at, e.id`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*resource.Entry, error) {
	var out []*resource.Entry
	for rows.Next() {
		var e resource.Entry
		var keywords []byte
		var lastMod sql.NullTime
		if err := rows.Scan(&e.ID, &e.SiteIndexID, &e.URL, &e.Title, &e.Description,
			&keywords, &e.CrawledAt, &lastMod); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(keywords, &e.Keywords); err != nil {
			return nil, err
		}
		if lastMod.Valid {
			t := lastMod.Time
			e.LastModified = &t
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
