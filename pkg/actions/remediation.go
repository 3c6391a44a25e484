package actions

import (
	"context"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/flow/resolver"
)

const defaultRemediationFixAgent = "remediation-fix"

// runRemediation implements the remediation executor (§4.H): read the
// configured reviewer outputs out of AgentResults, and if any carry issues,
// invoke the configured (or default) fix agents with the consolidated
// issue set, then loop until clean or MaxAttempts is reached. "Clean" means
// every configured reviewer key's output in AgentResults is empty/absent.
// AgentResults is filled once by the orchestrator before this step runs;
// neither this executor nor the orchestrator re-runs the reviewer steps
// between cycles, so every cycle sees the same issue set, and a non-empty
// set ends in the "remediation exhausted" result after MaxAttempts fix
// calls.
func runRemediation(ctx context.Context, ac *Context, step *resolver.ActionStep) (*Result, error) {
	maxAttempts := step.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = ac.Defaults.MaxRemediationCycles
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	fixAgents := step.FixAgents
	if len(fixAgents) == 0 {
		fixAgents = []string{defaultRemediationFixAgent}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		issues := collectReviewerIssues(ac, step.RemediationKeys)
		if issues == "" {
			return &Result{Content: "reviews clean"}, nil
		}
		if attempt == maxAttempts || ac.RunAgent == nil {
			return &Result{Content: fmt.Sprintf("remediation exhausted after %d attempt(s); outstanding issues:\n%s", attempt, issues)}, nil
		}

		for _, agentName := range fixAgents {
			prompt := fmt.Sprintf("Reviewers raised these issues:\n%s\n\nAddress them.", issues)
			if _, err := ac.RunAgent(ctx, AgentCallRequest{AgentName: agentName, Prompt: prompt}); err != nil {
				return nil, fmt.Errorf("actions: remediation fix agent %q: %w", agentName, err)
			}
		}
	}

	return &Result{Content: "reviews clean"}, nil
}

func collectReviewerIssues(ac *Context, reviewerKeys []string) string {
	var out string
	for _, key := range reviewerKeys {
		if v, ok := ac.AgentResults[key]; ok && v != "" {
			out += fmt.Sprintf("### %s\n%s\n\n", key, v)
		}
	}
	return out
}
