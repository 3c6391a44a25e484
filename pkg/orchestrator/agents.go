package orchestrator

import (
	"fmt"
	"sync"
)

// AgentDefinition is the static configuration behind an agent name: which
// provider/model the LLM Gateway routes to, the agent's built-in system
// prompt, and its default limits when a node doesn't override them.
// Grounded on the teacher's pkg/config.AgentConfig/AgentRegistry shape,
// generalized from "controller + wrapper selection" to "provider + model
// selection" since this system's agents are all one controller kind (the
// streaming tool-calling loop in pkg/llmgateway.Run).
type AgentDefinition struct {
	Name            string
	Provider        string
	Model           string
	SystemPrompt    string
	MaxOutputTokens int // 0 = pipeline default
	MaxToolSteps    int // 0 = pipeline default
	Tools           []string
}

// AgentRegistry stores agent definitions in memory with thread-safe access,
// mirroring the teacher's pkg/config.AgentRegistry.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*AgentDefinition
}

// NewAgentRegistry builds a registry from defs, keyed by Name. A defensive
// copy keeps later external mutation of defs from leaking into the registry.
func NewAgentRegistry(defs []*AgentDefinition) *AgentRegistry {
	agents := make(map[string]*AgentDefinition, len(defs))
	for _, d := range defs {
		c := *d
		agents[c.Name] = &c
	}
	return &AgentRegistry{agents: agents}
}

// Get returns the named agent's definition.
func (r *AgentRegistry) Get(name string) (*AgentDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("orchestrator: unknown agent %q", name)
	}
	return d, nil
}

// Put registers or replaces an agent definition (used by settings endpoints
// that let operators add custom agents without a process restart).
func (r *AgentRegistry) Put(d *AgentDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[d.Name] = d
}

// Names returns the set of registered agent names, for validating a flow
// template's agent nodes before it's persisted (pkg/api).
func (r *AgentRegistry) Names() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make(map[string]bool, len(r.agents))
	for name := range r.agents {
		names[name] = true
	}
	return names
}

// Built-in agents invoked by fixed name rather than from a flow node: the
// intent classifier (Scheduler) and the build, test and remediation fix
// agents (pkg/actions).
const (
	AgentIntentClassifier = "intent-classifier"
	AgentBuildFix         = "build-fix"
	AgentTestFix          = "test-fix"
	AgentRemediationFix   = "remediation-fix"
)

// DefaultAgents returns the built-in catalog grounding every agent name the
// default templates (pkg/flow/templates) and the single-call/fix-agent
// action paths reference. Operators can add more via AgentRegistry.Put;
// this is the seed, not a closed set.
func DefaultAgents() []*AgentDefinition {
	return []*AgentDefinition{
		{
			Name:            AgentIntentClassifier,
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			SystemPrompt:    classifierSystemPrompt,
			MaxOutputTokens: 256,
		},
		{
			Name:            "vibe-intake-agent",
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			SystemPrompt:    "You take a brief, conversational read on what the user wants to build and produce a short vibe brief: tone, audience, and any explicit constraints they mentioned.",
			MaxOutputTokens: 512,
		},
		{
			Name:            "mood-analysis-agent",
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			SystemPrompt:    "You read the user's message for emotional tone (excited, frustrated, neutral, urgent) and produce a one-paragraph mood-analysis note for downstream agents.",
			MaxOutputTokens: 256,
		},
		{
			Name:            "researcher",
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "You research the request: identify the kind of application, likely tech choices, and prior art. Produce findings an architect can act on.",
			MaxOutputTokens: 2048,
		},
		{
			Name:            "architect",
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "You turn research findings into a concrete design: a design_system (colors, typography, layout) and a component/page breakdown. Emit your design as a JSON object with a top-level design_system field.",
			MaxOutputTokens: 2048,
		},
		{
			Name:            "frontend-dev",
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "You implement the frontend per the supplied design system, writing files via the write_file/write_files tools.",
			MaxOutputTokens: 4096,
			MaxToolSteps:    20,
			Tools:           []string{"write_file", "write_files", "read_file", "list_files"},
		},
		{
			Name:            "backend-dev",
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "You implement the backend per the supplied design system, writing files via the write_file/write_files tools.",
			MaxOutputTokens: 4096,
			MaxToolSteps:    20,
			Tools:           []string{"write_file", "write_files", "read_file", "list_files"},
		},
		{
			Name:            "styling-agent",
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			SystemPrompt:    "You polish visual styling across the files the frontend developer just wrote, using write_file to apply changes.",
			MaxOutputTokens: 2048,
			MaxToolSteps:    10,
			Tools:           []string{"write_file", "write_files", "read_file", "list_files"},
		},
		{
			Name:            "code-reviewer",
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "You review the project source for correctness and maintainability issues. List concrete issues, one per line, or say \"no issues\" if clean.",
			MaxOutputTokens: 2048,
		},
		{
			Name:            "security-reviewer",
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "You review the project source for security issues. List concrete issues, one per line, or say \"no issues\" if clean.",
			MaxOutputTokens: 2048,
		},
		{
			Name:            "qa-reviewer",
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "You review the project source for functional gaps and missing edge-case handling. List concrete issues, one per line, or say \"no issues\" if clean.",
			MaxOutputTokens: 2048,
		},
		{
			Name:            "question",
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			SystemPrompt:    "You answer the user's question about the project, grounded in the supplied project source.",
			MaxOutputTokens: 2048,
		},
		{
			Name:            "summary",
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			SystemPrompt:    "Summarize the work completed this pipeline run in a few sentences for the user.",
			MaxOutputTokens: 1024,
		},
		{
			Name:            "vibe-intake",
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			SystemPrompt:    "You take a brief, conversational read on what the user wants to build and produce a short vibe brief.",
			MaxOutputTokens: 512,
		},
		{
			Name:            "mood-analysis",
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			SystemPrompt:    "You read the user's message for emotional tone and produce a one-paragraph mood-analysis note.",
			MaxOutputTokens: 256,
		},
		{
			Name:            "answer",
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			SystemPrompt:    "Answer the user's question directly, grounded in the supplied project source.",
			MaxOutputTokens: 1024,
		},
		{
			Name:            AgentBuildFix,
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "The project fails to build. Fix the reported errors by editing files with write_file/write_files.",
			MaxOutputTokens: 4096,
			MaxToolSteps:    15,
			Tools:           []string{"write_file", "write_files", "read_file", "list_files"},
		},
		{
			Name:            AgentTestFix,
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "The project has failing tests. Fix the failures by editing files with write_file/write_files.",
			MaxOutputTokens: 4096,
			MaxToolSteps:    15,
			Tools:           []string{"write_file", "write_files", "read_file", "list_files"},
		},
		{
			Name:            AgentRemediationFix,
			Provider:        "openai",
			Model:           "gpt-4o",
			SystemPrompt:    "Reviewers raised issues against the project source. Address every one by editing files with write_file/write_files.",
			MaxOutputTokens: 4096,
			MaxToolSteps:    15,
			Tools:           []string{"write_file", "write_files", "read_file", "list_files"},
		},
	}
}

const classifierSystemPrompt = `You classify a user's request for a pipeline orchestrator.
Respond with a single JSON object and nothing else, of the shape:
{"intent": "build"|"fix"|"question", "scope": "frontend"|"backend"|"styling"|"full", "needsBackend": true|false, "reasoning": "..."}`
