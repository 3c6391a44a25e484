// Package llmgateway is the LLM Gateway (Component D, §4.G): a
// provider-agnostic streaming completion API with an embedded tool-call
// loop, token accounting, and cost estimation, grounded in the teacher's
// pkg/agent.LLMClient channel-based streaming interface (pkg/agent/llm_client.go)
// — generalized from a single gRPC-backed Gemini provider to a small Provider
// interface any in-process client can implement.
package llmgateway

import (
	"context"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/config"
)

// Role mirrors the teacher's conversation message roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation sent to a Provider.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string // set on RoleTool messages, echoes the call that produced it
	ToolName   string
}

// ToolDefinition describes one tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// CompletionRequest is one Generate call.
type CompletionRequest struct {
	Provider        string // "openai" | "mock", keys into config.Pricing
	Model           string
	Messages        []Message
	Tools           []ToolDefinition
	MaxOutputTokens int
	Temperature     float32
}

// ChunkKind discriminates the streaming chunk union (§9 — tagged variants).
type ChunkKind string

const (
	ChunkText     ChunkKind = "text"
	ChunkToolCall ChunkKind = "tool_call"
	ChunkUsage    ChunkKind = "usage"
	ChunkError    ChunkKind = "error"
)

// Chunk is one element of a Generate stream. Exactly one payload field is
// populated, matching Kind — the teacher's Chunk is an interface with a
// private chunkType() method and one struct per kind; this gateway collapses
// that into a single tagged struct since the kind set here is smaller and
// every consumer already switches on Kind rather than type-asserting.
type Chunk struct {
	Kind ChunkKind

	Text string // ChunkText

	ToolCallID   string // ChunkToolCall
	ToolName     string
	ToolArgsJSON string

	Usage Usage // ChunkUsage

	Err error // ChunkError
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Total returns the sum of input and output tokens (cache tokens are priced
// separately and excluded, matching §6's token_usage columns).
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Provider is the interface a concrete LLM backend implements. The gateway
// never talks to a provider's wire protocol directly — that's each
// implementation's job (see openai.go, mock.go).
type Provider interface {
	// Stream sends req and returns a channel of Chunks, closed when the
	// stream ends. A final ChunkUsage chunk is always emitted before close
	// on success; a ChunkError chunk (not a channel close) signals failure.
	Stream(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}

// Gateway dispatches completion requests to a registry of named providers
// and estimates cost from the configured pricing table.
type Gateway struct {
	providers map[string]Provider
	pricing   map[string]config.ProviderPricing
}

// New builds a Gateway backed by the given provider registry (keyed by the
// name CompletionRequest.Provider selects) and pricing table.
func New(providers map[string]Provider, pricing map[string]config.ProviderPricing) *Gateway {
	return &Gateway{providers: providers, pricing: pricing}
}

// Stream resolves req.Provider and delegates to it.
func (g *Gateway) Stream(ctx context.Context, req CompletionRequest) (<-chan Chunk, error) {
	p, ok := g.providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("llmgateway: unknown provider %q", req.Provider)
	}
	return p.Stream(ctx, req)
}

// EstimateCost prices usage against the provider/model pricing table
// (§6's token_usage.cost_estimate), returning 0 if no entry is configured —
// callers still get an honest (if zero) number rather than an error, since a
// missing price table entry shouldn't fail a pipeline.
func (g *Gateway) EstimateCost(provider, model string, usage Usage) float64 {
	price, ok := g.pricing[provider+"/"+model]
	if !ok {
		return 0
	}
	cost := float64(usage.InputTokens) / 1_000_000 * price.InputPerMillion
	cost += float64(usage.OutputTokens) / 1_000_000 * price.OutputPerMillion
	cost += float64(usage.CacheReadTokens) / 1_000_000 * price.CacheReadPerMillion
	cost += float64(usage.CacheWriteTokens) / 1_000_000 * price.CacheWritePerMillion
	return cost
}
