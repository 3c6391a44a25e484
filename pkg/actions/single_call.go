package actions

import (
	"context"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
)

// defaultSummaryMaxTokens is §4.H's "summary caps tokens to maxOutputTokens
// (default 1024)".
const defaultSummaryMaxTokens = 1024

// singleCallAgentName is the built-in agent each single-LLM-call action
// kind invokes, whether or not the node carries a systemPrompt override —
// the agent name is the kind name.
var singleCallAgentName = map[flow.ActionKind]string{
	flow.ActionSummary:      "summary",
	flow.ActionVibeIntake:   "vibe-intake",
	flow.ActionMoodAnalysis: "mood-analysis",
	flow.ActionAnswer:       "answer",
}

// chatMessageType maps a single-call action kind to the metadata.type a
// chat_message carries, so the client can route rendering (§4.H).
var chatMessageType = map[flow.ActionKind]string{
	flow.ActionVibeIntake:   "vibe-brief",
	flow.ActionMoodAnalysis: "mood-analysis",
}

// runSingleCall implements summary/vibe-intake/mood-analysis/answer (§4.H):
// one LLM call through the agent-step path (RunAgent), with a kind-specific
// built-in agent identity unless the node overrides SystemPrompt, in which
// case RunAgent still receives the built-in name but the orchestrator's
// agent-step invocation is expected to apply the node's SystemPrompt
// override the same way any agent node's SystemPrompt override works (§3).
func runSingleCall(ctx context.Context, ac *Context, step *resolver.ActionStep) (*Result, error) {
	agentName, ok := singleCallAgentName[step.Kind]
	if !ok {
		return nil, fmt.Errorf("actions: %q is not a single-call action kind", step.Kind)
	}
	if ac.RunAgent == nil {
		return nil, fmt.Errorf("actions: no agent invoker configured for %q", step.Kind)
	}

	prompt := upstreamBlock(ac, step.UpstreamSources)

	maxTokens := step.MaxOutputTokens
	if maxTokens <= 0 && step.Kind == flow.ActionSummary {
		maxTokens = defaultSummaryMaxTokens
	}

	content, err := ac.RunAgent(ctx, AgentCallRequest{
		AgentName:       agentName,
		Prompt:          prompt,
		SystemPrompt:    step.SystemPrompt,
		MaxOutputTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("actions: %s call: %w", step.Kind, err)
	}

	result := &Result{Content: content}
	if msgType, ok := chatMessageType[step.Kind]; ok {
		result.Metadata = map[string]any{"type": msgType}
	}
	return result, nil
}
