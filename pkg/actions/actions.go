// Package actions implements the seven Action Executors (§4.H): pure step
// runners whose inputs come from a resolved ActionStep plus agentResults,
// and whose outputs are written back into agentResults and persisted as an
// AgentExecution. Grounded in the teacher's queue executor shape
// (pkg/queue/executor.go's RealSessionExecutor) — one Execute entry point
// per step kind, status/progress published through the same event bus the
// agent-step path uses, so a chat's WebSocket subscriber can't tell an
// action step from an agent step.
package actions

import (
	"context"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
	"github.com/flowforge/orchestrator/pkg/store"
)

// AgentCallRequest is one ad hoc agent invocation an action executor makes
// outside the normal resolved-plan dispatch — a fix-agent call or a
// single-LLM-call action kind (§4.H).
type AgentCallRequest struct {
	AgentName       string
	Prompt          string
	SystemPrompt    string // "" = agent's built-in default
	MaxOutputTokens int    // 0 = pipeline default
}

// AgentInvoker runs req and returns the agent's final text content. The
// orchestrator supplies this — it owns the agent-step path (LLM Gateway
// wiring, tool registry, prompt templates) that build-check/test-run/
// remediation/single-call actions reuse, so pkg/actions never imports
// pkg/llmgateway directly.
type AgentInvoker func(ctx context.Context, req AgentCallRequest) (string, error)

// Context carries everything an executor needs that isn't already in the
// resolved ActionStep: identity, shared outputs, and the services it may
// call out to.
type Context struct {
	ChatID      string
	ProjectID   string
	ProjectRoot string

	Store    *store.Store
	Artifact *artifact.Store
	Bus      *events.Bus
	Defaults config.PipelineDefaults

	// AgentResults holds upstream step outputs keyed by InstanceID (§4.F,
	// §4.G). The orchestrator builds a fresh copy for each action step,
	// holding only the step's declared upstream sources and remediation
	// reviewer keys; the executor's own output is returned in Result.
	AgentResults map[string]string

	RunAgent AgentInvoker
}

// Result is what one action step produced.
type Result struct {
	Content  string         // the text written to AgentResults[instanceId]
	Metadata map[string]any // chat_message metadata, e.g. {"type": "vibe-brief"}
}

// Execute dispatches step to its executor by Kind.
func Execute(ctx context.Context, ac *Context, instanceID string, step *resolver.ActionStep) (*Result, error) {
	switch step.Kind {
	case flow.ActionBuildCheck:
		return runBuildCheck(ctx, ac, step)
	case flow.ActionTestRun:
		return runTestRun(ctx, ac, step)
	case flow.ActionRemediation:
		return runRemediation(ctx, ac, step)
	case flow.ActionSummary, flow.ActionVibeIntake, flow.ActionMoodAnalysis, flow.ActionAnswer:
		return runSingleCall(ctx, ac, step)
	case flow.ActionVersion:
		return runVersion(ctx, ac, step)
	default:
		return nil, fmt.Errorf("actions: unknown action kind %q", step.Kind)
	}
}

// upstreamBlock assembles the "Previous Agent Outputs" block (§4.G) for
// action steps that take upstream context — a smaller version of the
// agent-step prompt assembly the orchestrator does, since action executors
// only need the raw transform (upstream reviewer/agent text), never
// design-system or file-manifest scraping.
func upstreamBlock(ac *Context, sources []flow.UpstreamSource) string {
	var out string
	for _, s := range sources {
		if v, ok := ac.AgentResults[s.SourceKey]; ok {
			out += fmt.Sprintf("### %s\n%s\n\n", s.Label(), v)
		}
	}
	return out
}
