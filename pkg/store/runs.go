package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CreateRun inserts a pipeline_runs row with status=running. The table's
// partial unique index on (chat_id) WHERE status='running' enforces §4.D's
// "at most one running pipeline per chat" invariant at the database layer,
// so a concurrent second POST /agents/run for the same chat loses the race
// here rather than corrupting in-memory state.
func (s *Store) CreateRun(ctx context.Context, r *models.PipelineRun) error {
	agents, err := json.Marshal(r.PlannedAgents)
	if err != nil {
		return fmt.Errorf("store: marshal planned agents: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, chat_id, intent, scope, user_message, needs_backend, has_files, planned_agents, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.ChatID, r.Intent, r.Scope, r.UserMessage, r.NeedsBackend, r.HasFiles, agents, string(r.Status), r.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// GetRun fetches a pipeline_runs row by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, chat_id, intent, scope, user_message, needs_backend, has_files, planned_agents, status, started_at, completed_at
		 FROM pipeline_runs WHERE id = $1`, id)
	return scanRun(row)
}

// GetRunningRun returns the running pipeline_runs row for a chat, if any.
func (s *Store) GetRunningRun(ctx context.Context, chatID string) (*models.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, chat_id, intent, scope, user_message, needs_backend, has_files, planned_agents, status, started_at, completed_at
		 FROM pipeline_runs WHERE chat_id = $1 AND status = 'running'`, chatID)
	run, err := scanRun(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return run, err
}

// GetLatestInterruptedRun returns the most recently started interrupted run
// for a chat, or nil if none exists — the basis for §4.G's resume protocol
// step 1 ("find the most recent status=interrupted run for the chat").
func (s *Store) GetLatestInterruptedRun(ctx context.Context, chatID string) (*models.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, chat_id, intent, scope, user_message, needs_backend, has_files, planned_agents, status, started_at, completed_at
		 FROM pipeline_runs WHERE chat_id = $1 AND status = 'interrupted'
		 ORDER BY started_at DESC LIMIT 1`, chatID)
	run, err := scanRun(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return run, err
}

// ResumeRun transitions an interrupted run back to running in place, rather
// than creating a new row — preserving the run id a resume's executions and
// events are keyed against (§4.G resume protocol).
func (s *Store) ResumeRun(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = 'running', completed_at = NULL WHERE id = $1 AND status = 'interrupted'`, id)
	if err != nil {
		return fmt.Errorf("store: resume run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishRun transitions a run to a terminal status (§4.D: completed, failed,
// or interrupted — never back to running).
func (s *Store) FinishRun(ctx context.Context, id string, status models.RunStatus) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, completed_at = $2 WHERE id = $3`, string(status), now, id)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InterruptAllRunning marks every running pipeline_runs row interrupted.
// Called once at server startup (§4.G resume protocol: a process crash
// leaves stale "running" rows behind that can never complete on their own).
func (s *Store) InterruptAllRunning(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = 'interrupted', completed_at = $1 WHERE status = 'running'`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("store: interrupt all running: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row rowScanner) (*models.PipelineRun, error) {
	var r models.PipelineRun
	var status string
	var agents []byte
	err := row.Scan(&r.ID, &r.ChatID, &r.Intent, &r.Scope, &r.UserMessage, &r.NeedsBackend, &r.HasFiles, &agents, &status, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan run: %w", err)
	}
	r.Status = models.RunStatus(status)
	if len(agents) > 0 {
		if err := json.Unmarshal(agents, &r.PlannedAgents); err != nil {
			return nil, fmt.Errorf("store: unmarshal planned agents: %w", err)
		}
	}
	return &r, nil
}
