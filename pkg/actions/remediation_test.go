package actions_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/actions"
	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
)

func TestRemediation_CleanWhenNoReviewerIssues(t *testing.T) {
	ac, _ := newTestContext(t)
	step := &resolver.ActionStep{Kind: flow.ActionRemediation, RemediationKeys: []string{"reviewer"}}

	result, err := actions.Execute(context.Background(), ac, "rem-1", step)

	require.NoError(t, err)
	require.Equal(t, "reviews clean", result.Content)
}

func TestRemediation_InvokesFixAgentOnIssues(t *testing.T) {
	ac, _ := newTestContext(t)
	ac.Defaults.MaxRemediationCycles = 2
	ac.AgentResults["reviewer"] = "missing nil check"

	var calls int
	ac.RunAgent = func(ctx context.Context, req actions.AgentCallRequest) (string, error) {
		calls++
		require.Equal(t, "remediation-fix", req.AgentName)
		require.Contains(t, req.Prompt, "missing nil check")
		return "fixed", nil
	}

	step := &resolver.ActionStep{Kind: flow.ActionRemediation, RemediationKeys: []string{"reviewer"}}

	result, err := actions.Execute(context.Background(), ac, "rem-1", step)

	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Contains(t, result.Content, "outstanding issues")
}

func TestRemediation_UsesConfiguredFixAgents(t *testing.T) {
	ac, _ := newTestContext(t)
	ac.Defaults.MaxRemediationCycles = 2
	ac.AgentResults["reviewer"] = "style nit"

	var names []string
	ac.RunAgent = func(ctx context.Context, req actions.AgentCallRequest) (string, error) {
		names = append(names, req.AgentName)
		return "", nil
	}

	step := &resolver.ActionStep{
		Kind:            flow.ActionRemediation,
		RemediationKeys: []string{"reviewer"},
		FixAgents:       []string{"style-fix", "logic-fix"},
	}

	_, err := actions.Execute(context.Background(), ac, "rem-1", step)

	require.NoError(t, err)
	require.Equal(t, []string{"style-fix", "logic-fix"}, names)
}
