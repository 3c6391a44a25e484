package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/jackc/pgx/v5"
)

// AddMessage appends an immutable message to a chat.
func (s *Store) AddMessage(ctx context.Context, m *models.Message) error {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal message metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, role, content, agent_name, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ChatID, string(m.Role), m.Content, m.AgentName, meta, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: add message: %w", err)
	}
	return nil
}

// ListMessages returns a chat's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]*models.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, agent_name, metadata, created_at
		 FROM messages WHERE chat_id = $1 ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var role string
	var meta []byte
	err := row.Scan(&m.ID, &m.ChatID, &role, &m.Content, &m.AgentName, &meta, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan message: %w", err)
	}
	m.Role = models.MessageRole(role)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal message metadata: %w", err)
		}
	}
	return &m, nil
}
