package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/jackc/pgx/v5"
)

// CreateProject inserts a new project row.
func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	brief, err := marshalVibeBrief(p.VibeBrief)
	if err != nil {
		return fmt.Errorf("store: marshal vibe brief: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, path, vibe_brief, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		p.ID, p.Name, p.Path, brief, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create project: %w", err)
	}
	return nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, path, vibe_brief, created_at, updated_at FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// ListProjects returns all projects, most recently created first.
func (s *Store) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, path, vibe_brief, created_at, updated_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RenameProject updates a project's name.
func (s *Store) RenameProject(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name = $1, updated_at = $2 WHERE id = $3`, name, time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: rename project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVibeBrief attaches or replaces a project's vibe brief.
func (s *Store) SetVibeBrief(ctx context.Context, id string, brief *models.VibeBrief) error {
	b, err := marshalVibeBrief(brief)
	if err != nil {
		return fmt.Errorf("store: marshal vibe brief: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET vibe_brief = $1, updated_at = $2 WHERE id = $3`, b, time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: set vibe brief: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes a project and, via ON DELETE CASCADE, every chat,
// execution, run, and snapshot beneath it (§3: "destroyed with cascade").
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalVibeBrief(b *models.VibeBrief) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	return scanProjectCommon(row)
}

func scanProjectRows(rows pgx.Rows) (*models.Project, error) {
	return scanProjectCommon(rows)
}

func scanProjectCommon(row rowScanner) (*models.Project, error) {
	var p models.Project
	var brief []byte
	err := row.Scan(&p.ID, &p.Name, &p.Path, &brief, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan project: %w", err)
	}
	if len(brief) > 0 {
		p.VibeBrief = &models.VibeBrief{}
		if err := json.Unmarshal(brief, p.VibeBrief); err != nil {
			return nil, fmt.Errorf("store: unmarshal vibe brief: %w", err)
		}
	}
	return &p, nil
}
