package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/jackc/pgx/v5"
)

// CreateChat inserts a new chat scoped to a project.
func (s *Store) CreateChat(ctx context.Context, c *models.Chat) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, project_id, title, yolo_mode, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		c.ID, c.ProjectID, c.Title, c.YoloMode, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create chat: %w", err)
	}
	return nil
}

// GetChat fetches a chat by id.
func (s *Store) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, title, yolo_mode, created_at, updated_at FROM chats WHERE id = $1`, id)
	return scanChat(row)
}

// ListChatsByProject returns every chat for a project, newest first.
func (s *Store) ListChatsByProject(ctx context.Context, projectID string) ([]*models.Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, title, yolo_mode, created_at, updated_at
		 FROM chats WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list chats: %w", err)
	}
	defer rows.Close()

	var out []*models.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RenameChat updates a chat's title.
func (s *Store) RenameChat(ctx context.Context, id, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET title = $1, updated_at = $2 WHERE id = $3`, title, time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: rename chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetYoloMode toggles whether a chat's checkpoints are auto-skipped.
func (s *Store) SetYoloMode(ctx context.Context, id string, yolo bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET yolo_mode = $1, updated_at = $2 WHERE id = $3`, yolo, time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: set yolo mode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat removes a chat and its cascade (messages, executions, runs,
// snapshots).
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var c models.Chat
	err := row.Scan(&c.ID, &c.ProjectID, &c.Title, &c.YoloMode, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan chat: %w", err)
	}
	return &c, nil
}
