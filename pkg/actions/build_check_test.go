package actions_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/actions"
	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
)

func newTestContext(t *testing.T) (*actions.Context, string) {
	t.Helper()
	dir := t.TempDir()
	return &actions.Context{
		ChatID:       "chat-1",
		ProjectRoot:  dir,
		Bus:          events.NewBus(nil),
		Defaults:     config.PipelineDefaults{MaxBuildFixAttempts: 2, MaxUniqueErrors: 5},
		AgentResults: map[string]string{},
	}, dir
}

func TestBuildCheck_SucceedsOnFirstAttempt(t *testing.T) {
	ac, _ := newTestContext(t)
	step := &resolver.ActionStep{Kind: flow.ActionBuildCheck, Command: "true"}

	result, err := actions.Execute(context.Background(), ac, "build-1", step)

	require.NoError(t, err)
	require.Equal(t, "build succeeded", result.Content)
}

func TestBuildCheck_RetriesThenFixes(t *testing.T) {
	ac, _ := newTestContext(t)
	var calls int
	ac.RunAgent = func(ctx context.Context, req actions.AgentCallRequest) (string, error) {
		calls++
		require.Equal(t, "build-fix", req.AgentName)
		return "patched", nil
	}
	step := &resolver.ActionStep{Kind: flow.ActionBuildCheck, Command: "echo boom >&2; exit 1"}

	result, err := actions.Execute(context.Background(), ac, "build-1", step)

	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Contains(t, result.Content, "build failed after 2 attempt(s)")
}

func TestBuildCheck_NoAgentStopsAfterFirstFailure(t *testing.T) {
	ac, _ := newTestContext(t)
	step := &resolver.ActionStep{Kind: flow.ActionBuildCheck, Command: "echo boom >&2; exit 1"}

	result, err := actions.Execute(context.Background(), ac, "build-1", step)

	require.NoError(t, err)
	require.Contains(t, result.Content, "build failed")
}
