package store

import (
	"context"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/models"
)

// RecordTokenUsage inserts one per-call accounting row. Budget enforcement
// (§4.G) reads back cumulative cost right after this insert.
func (s *Store) RecordTokenUsage(ctx context.Context, u *models.TokenUsage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO token_usage
		   (id, execution_id, chat_id, agent_name, provider, model, api_key_hash,
		    input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
		    total_tokens, cost_estimate, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.ExecutionID, u.ChatID, u.AgentName, u.Provider, u.Model, u.APIKeyHash,
		u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheWriteTokens,
		u.TotalTokens, u.CostEstimate, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: record token usage: %w", err)
	}
	return nil
}

// ChatCostTotal returns the cumulative cost_estimate for a chat, for the
// per-chat budget check.
func (s *Store) ChatCostTotal(ctx context.Context, chatID string) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_estimate), 0) FROM token_usage WHERE chat_id = $1`, chatID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: chat cost total: %w", err)
	}
	return total, nil
}

// ProjectCostTotal returns the cumulative cost_estimate across every chat
// belonging to a project, for the per-project budget check.
func (s *Store) ProjectCostTotal(ctx context.Context, projectID string) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(tu.cost_estimate), 0)
		 FROM token_usage tu
		 JOIN chats c ON c.id = tu.chat_id
		 WHERE c.project_id = $1`, projectID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: project cost total: %w", err)
	}
	return total, nil
}
