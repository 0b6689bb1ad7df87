package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"github.com/sitewise-ai/sitewise/pkg/resource"
)

func (s *Postgres) CreateDocument(ctx context.Context, d *resource.Document) error {
	keywords, err := json.Marshal(d.Keywords)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, name, blob_key, media_type, keywords, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		d.ID, d.TenantID, d.Name, d.BlobKey, d.MediaType, keywords, d.Status, d.CreatedAt,
	)
	return err
}

func (s *Postgres) GetDocument(ctx context.Context, tenantID, id string) (*resource.Document, error) {
	return s.scanDocument(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, blob_key, media_type, text, keywords, status, COALESCE(error, ''), created_at, updated_at
		FROM documents WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	))
}

func (s *Postgres) GetDocumentAny(ctx context.Context, id string) (*resource.Document, error) {
	return s.scanDocument(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, blob_key, media_type, text, keywords, status, COALESCE(error, ''), created_at, updated_at
		FROM documents WHERE id = $1`,
		id,
	))
}

func (s *Postgres) ListDocuments(ctx context.Context, tenantID string) ([]*resource.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, blob_key, media_type, text, keywords, status, COALESCE(error, ''), created_at, updated_at
		FROM documents WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*resource.Document
	for rows.Next() {
		d, err := s.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) CompareAndSwapDocumentStatus(ctx context.Context, id string, from []resource.Status, to resource.Status, errMsg string) (bool, error) {
	prior := make([]string, len(from))
	for i, st := range from {
		prior[i] = string(st)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
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

func (s *Postgres) SetDocumentText(ctx context.Context, id, text string, keywords []string) error {
	kw, err := json.Marshal(keywords)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE documents SET text = $2, keywords = $3, updated_at = now() WHERE id = $1`,
		id, text, kw,
	)
	return err
}

func (s *Postgres) DeleteDocument(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE id = $1 AND tenant_id = $2`,
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

func (s *Postgres) scanDocument(row rowScanner) (*resource.Document, error) {
	var d resource.Document
	var keywords []byte
	var text sql.NullString
	err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.BlobKey, &d.MediaType, &text,
		&keywords, &d.Status, &d.Error, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if text.Valid {
		d.Text = &text.String
	}
	if err := json.Unmarshal(keywords, &d.Keywords); err != nil {
		return nil, err
	}
	return &d, nil
}
