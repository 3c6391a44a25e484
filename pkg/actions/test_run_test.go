package actions_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/actions"
	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
)

func TestTestRun_AllPass(t *testing.T) {
	ac, _ := newTestContext(t)
	step := &resolver.ActionStep{
		Kind:    flow.ActionTestRun,
		Command: `echo '{"name":"a","passed":true}'; echo '{"name":"b","passed":true}'`,
	}

	result, err := actions.Execute(context.Background(), ac, "test-1", step)

	require.NoError(t, err)
	require.Equal(t, "2/2 tests passed", result.Content)
}

func TestTestRun_FailureInvokesFixAgentThenRetries(t *testing.T) {
	ac, _ := newTestContext(t)
	ac.Defaults.MaxBuildFixAttempts = 2
	ac.Defaults.MaxTestFailures = 5

	var calls int
	ac.RunAgent = func(ctx context.Context, req actions.AgentCallRequest) (string, error) {
		calls++
		require.Equal(t, "test-fix", req.AgentName)
		return "patched", nil
	}

	step := &resolver.ActionStep{
		Kind:    flow.ActionTestRun,
		Command: `echo '{"name":"a","passed":false}' >&1; echo "boom" >&2`,
	}

	result, err := actions.Execute(context.Background(), ac, "test-1", step)

	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Contains(t, result.Content, "1 failing")
}

func TestTestRun_StopsAtMaxTestFailures(t *testing.T) {
	ac, _ := newTestContext(t)
	ac.Defaults.MaxBuildFixAttempts = 5
	ac.Defaults.MaxTestFailures = 1
	ac.RunAgent = func(ctx context.Context, req actions.AgentCallRequest) (string, error) {
		t.Fatal("fix agent should not be invoked once MaxTestFailures is reached")
		return "", nil
	}

	step := &resolver.ActionStep{
		Kind:    flow.ActionTestRun,
		Command: `echo '{"name":"a","passed":false}'`,
	}

	result, err := actions.Execute(context.Background(), ac, "test-1", step)

	require.NoError(t, err)
	require.Contains(t, result.Content, "1 failing")
}
