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

// CreateExecution inserts an agent_executions row, typically status=running
// (§4.G: "record AgentExecution(status=running)" at step dispatch).
func (s *Store) CreateExecution(ctx context.Context, runID string, e *models.AgentExecution) error {
	input, err := json.Marshal(e.Input)
	if err != nil {
		return fmt.Errorf("store: marshal execution input: %w", err)
	}
	output, err := json.Marshal(e.Output)
	if err != nil {
		return fmt.Errorf("store: marshal execution output: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_executions
		   (id, chat_id, run_id, step_key, agent_name, status, input, output, error, retry_count, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.ChatID, runID, e.StepKey, e.AgentName, string(e.Status), input, output, e.Error, e.RetryCount, e.StartedAt)
	if err != nil {
		return fmt.Errorf("store: create execution: %w", err)
	}
	return nil
}

// UpdateExecutionStatus transitions an execution's status and, on a terminal
// status, stamps completed_at. Used for running->retrying->running cycles
// and for the final running->completed/failed/stopped transition.
func (s *Store) UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus, retryCount int) error {
	var completedAt *time.Time
	if status == models.ExecutionComplete || status == models.ExecutionFailed || status == models.ExecutionStopped {
		now := time.Now()
		completedAt = &now
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_executions SET status = $1, retry_count = $2, completed_at = $3 WHERE id = $4`,
		string(status), retryCount, completedAt, id)
	if err != nil {
		return fmt.Errorf("store: update execution status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteExecution writes the final output/error and marks an execution
// completed or failed.
func (s *Store) CompleteExecution(ctx context.Context, id string, output models.ExecutionOutput, execErr string, status models.ExecutionStatus) error {
	out, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("store: marshal execution output: %w", err)
	}
	now := time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_executions SET status = $1, output = $2, error = $3, completed_at = $4 WHERE id = $5`,
		string(status), out, execErr, now, id)
	if err != nil {
		return fmt.Errorf("store: complete execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExecutionsByRun returns every execution recorded for a run, in
// started_at order — the basis for the §4.G resume rebuild of agentResults.
func (s *Store) ListExecutionsByRun(ctx context.Context, runID string) ([]*models.AgentExecution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, step_key, agent_name, status, input, output, error, retry_count, started_at, completed_at
		 FROM agent_executions WHERE run_id = $1 ORDER BY started_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list executions: %w", err)
	}
	defer rows.Close()

	var out []*models.AgentExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(row rowScanner) (*models.AgentExecution, error) {
	var e models.AgentExecution
	var status string
	var input, output []byte
	err := row.Scan(&e.ID, &e.ChatID, &e.StepKey, &e.AgentName, &status, &input, &output, &e.Error, &e.RetryCount, &e.StartedAt, &e.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan execution: %w", err)
	}
	e.Status = models.ExecutionStatus(status)
	if len(input) > 0 {
		if err := json.Unmarshal(input, &e.Input); err != nil {
			return nil, fmt.Errorf("store: unmarshal execution input: %w", err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &e.Output); err != nil {
			return nil, fmt.Errorf("store: unmarshal execution output: %w", err)
		}
	}
	return &e, nil
}
