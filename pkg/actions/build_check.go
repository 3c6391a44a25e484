package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
)

// runBuildCheck implements the build-check executor (§4.H): run the build
// command; on failure, extract deduplicated error signatures, invoke a
// scoped fix agent, and retry up to MaxAttempts.
func runBuildCheck(ctx context.Context, ac *Context, step *resolver.ActionStep) (*Result, error) {
	timeout := time.Duration(step.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = ac.Defaults.BuildTimeout
	}
	maxAttempts := step.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = ac.Defaults.MaxBuildFixAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	maxUnique := step.MaxUniqueErr
	if maxUnique <= 0 {
		maxUnique = ac.Defaults.MaxUniqueErrors
	}

	var lastResult *artifact.CommandResult
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		result, err := artifact.RunCommand(ctx, ac.ProjectRoot, step.Command, timeout)
		if err != nil {
			return nil, fmt.Errorf("actions: build-check run: %w", err)
		}
		lastResult = result

		if result.ExitCode == 0 {
			ac.publishPreviewReady()
			return &Result{Content: "build succeeded"}, nil
		}

		if attempt == maxAttempts {
			break
		}

		signatures := dedupeErrorSignatures(result.Stderr, maxUnique)
		if len(signatures) == 0 {
			break
		}

		if ac.RunAgent == nil {
			break
		}
		prompt := fmt.Sprintf("The build failed with these errors:\n%s\n\nFix them.", joinLines(signatures))
		if _, err := ac.RunAgent(ctx, AgentCallRequest{AgentName: fixAgentForBuild, Prompt: prompt}); err != nil {
			return nil, fmt.Errorf("actions: build-check fix agent: %w", err)
		}
	}

	return &Result{Content: fmt.Sprintf("build failed after %d attempt(s): %s", attempts, truncate(lastResult.Stderr, 2000))}, nil
}

// fixAgentForBuild is the built-in agent name build-check invokes; the
// node's FixAgents list is not consulted.
const fixAgentForBuild = "build-fix"

func (ac *Context) publishPreviewReady() {
	if ac.Bus == nil {
		return
	}
	ac.Bus.PublishPreviewReady(events.PreviewReadyPayload{ChatID: ac.ChatID})
}
