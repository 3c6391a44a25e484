package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/jackc/pgx/v5"
)

// CreateSnapshot records a labeled file manifest, produced synchronously by
// a version node (§4.H).
func (s *Store) CreateSnapshot(ctx context.Context, snap *models.Snapshot) error {
	manifest, err := json.Marshal(snap.FileManifest)
	if err != nil {
		return fmt.Errorf("store: marshal file manifest: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, project_id, chat_id, label, file_manifest, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.ProjectID, snap.ChatID, snap.Label, manifest, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create snapshot: %w", err)
	}
	return nil
}

// ListSnapshotsByProject returns a project's snapshots, newest first.
func (s *Store) ListSnapshotsByProject(ctx context.Context, projectID string) ([]*models.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, chat_id, label, file_manifest, created_at
		 FROM snapshots WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var snap models.Snapshot
	var manifest []byte
	err := row.Scan(&snap.ID, &snap.ProjectID, &snap.ChatID, &snap.Label, &manifest, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan snapshot: %w", err)
	}
	if len(manifest) > 0 {
		if err := json.Unmarshal(manifest, &snap.FileManifest); err != nil {
			return nil, fmt.Errorf("store: unmarshal file manifest: %w", err)
		}
	}
	return &snap, nil
}
