package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ConversationMessage is one turn of a tenant conversation. History is
// persisted before generation so a failed chat turn loses nothing.
type ConversationMessage struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Postgres) CreateConversation(ctx context.Context, id, tenantID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, tenant_id) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`,
		id, tenantID,
	)
	return err
}

func (s *Postgres) GetConversationTenant(ctx context.Context, id string) (string, error) {
	var tenantID string
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id FROM conversations WHERE id = $1`,
		id,
	).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return tenantID, err
}

func (s *Postgres) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (conversation_id, role, content)
		VALUES ($1, $2, $3)`,
		conversationID, role, content,
	)
	return err
}

func (s *Postgres) ListMessages(ctx context.Context, conversationID string) ([]ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM conversation_messages WHERE conversation_id = $1 ORDER BY id`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
