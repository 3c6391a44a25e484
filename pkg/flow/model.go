// Package flow defines the flow template DAG model (§3, §4.E): typed nodes
// and edges, the well-known upstream source vocabulary, and the validator
// that checks a template is well-formed before it is ever resolved.
package flow

// Intent is the classifier's output and the key a FlowTemplate is bound to.
type Intent string

const (
	IntentBuild    Intent = "build"
	IntentFix      Intent = "fix"
	IntentQuestion Intent = "question"
)

// Scope is the coarse classification used by condition predicates.
type Scope string

const (
	ScopeFrontend Scope = "frontend"
	ScopeBackend  Scope = "backend"
	ScopeStyling  Scope = "styling"
	ScopeFull     Scope = "full"
)

// NodeKind is the discriminant of the FlowNode tagged union (§9 — tagged
// variants over inheritance: switch on Kind, never a type hierarchy).
type NodeKind string

const (
	NodeAgent      NodeKind = "agent"
	NodeCondition  NodeKind = "condition"
	NodeCheckpoint NodeKind = "checkpoint"
	NodeAction     NodeKind = "action"
	NodeVersion    NodeKind = "version"
	NodeConfig     NodeKind = "config"
)

// Template is a versioned DAG describing one pipeline shape, selected at
// runtime by Intent.
type Template struct {
	ID        string
	Name      string
	Intent    Intent
	Enabled   bool
	IsDefault bool
	Version   int
	Nodes     []Node
	Edges     []Edge
}

// NodeByID returns the node with the given id, or false if absent.
func (t *Template) NodeByID(id string) (Node, bool) {
	for _, n := range t.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Node is the tagged-union node record. Exactly one of the *Spec fields is
// populated, matching Kind.
type Node struct {
	ID   string
	Kind NodeKind

	Agent      *AgentSpec
	Condition  *ConditionSpec
	Checkpoint *CheckpointSpec
	Action     *ActionSpec
	Version    *VersionSpec
	Config     *ConfigSpec
}

// AgentSpec configures an LLM-agent node.
type AgentSpec struct {
	AgentName       string
	InputTemplate   string // contains the {{userMessage}} placeholder
	MaxOutputTokens int    // 0 = use pipeline default
	MaxToolSteps    int    // 0 = use pipeline default
	SystemPrompt    string // "" = agent's built-in default
	ToolOverrides   []string
	UpstreamSources []UpstreamSource
}

// ConditionMode selects how a condition node is evaluated.
type ConditionMode string

const (
	ConditionPredefined ConditionMode = "predefined"
	ConditionExpression ConditionMode = "expression"
)

// Predefined condition ids (§3 closed vocabulary).
const (
	PredefinedNeedsBackend       = "needsBackend"
	PredefinedHasFiles           = "hasFiles"
	PredefinedScopeFrontend      = "scopeIncludes:frontend"
	PredefinedScopeBackend       = "scopeIncludes:backend"
	PredefinedScopeStyling       = "scopeIncludes:styling"
)

// ConditionSpec configures a condition (branch) node.
type ConditionSpec struct {
	Mode       ConditionMode
	Predefined string // set when Mode == ConditionPredefined
	Expression string // set when Mode == ConditionExpression
}

// CheckpointType discriminates a human-in-the-loop pause's UI affordance.
type CheckpointType string

const (
	CheckpointApprove        CheckpointType = "approve"
	CheckpointDesignDirection CheckpointType = "design_direction"
)

// CheckpointSpec configures a checkpoint (pause) node.
type CheckpointSpec struct {
	SkipInYolo     bool
	TimeoutMs      int
	CheckpointType CheckpointType
	Message        string
}

// ActionKind is the closed vocabulary of action-node kinds (§3, §4.H).
type ActionKind string

const (
	ActionBuildCheck   ActionKind = "build-check"
	ActionTestRun      ActionKind = "test-run"
	ActionRemediation  ActionKind = "remediation"
	ActionSummary      ActionKind = "summary"
	ActionVibeIntake   ActionKind = "vibe-intake"
	ActionMoodAnalysis ActionKind = "mood-analysis"
	ActionAnswer       ActionKind = "answer"
	ActionShell        ActionKind = "shell"
	ActionLLMCall      ActionKind = "llm-call"

	// ActionVersion is not part of the node-kind closed vocabulary (a
	// version node is its own NodeKind, §3) but the resolver emits it under
	// this ActionKind so a version point shows up as a dependency-walk
	// stopping point — see pkg/flow/resolver's doc comment on NodeVersion.
	ActionVersion ActionKind = "version"
)

// ActionSpec configures an action node. Only the fields relevant to Kind are
// meaningful; the executor for that Kind is responsible for defaulting.
type ActionSpec struct {
	Kind ActionKind

	// build-check / test-run
	Command       string
	TimeoutMs     int
	MaxAttempts   int
	MaxUniqueErr  int
	MaxTestFail   int

	// remediation
	RemediationReviewerKeys []string
	RemediationFixAgents    []string

	// summary / vibe-intake / mood-analysis / answer / llm-call
	SystemPrompt    string
	MaxOutputTokens int

	// version (handled via NodeVersion, not here, but a version-kind action
	// node is also accepted as an alias some templates use)
	SnapshotLabel string

	UpstreamSources []UpstreamSource
}

// VersionSpec marks an automatic snapshot point.
type VersionSpec struct {
	Label string
}

// ConfigSpec carries static data shared to downstream agents.
type ConfigSpec struct {
	BaseSystemPrompt string
}

// Transform selects how an UpstreamSource's value is massaged before being
// labeled and concatenated into the "Previous Agent Outputs" block.
type Transform string

const (
	TransformRaw          Transform = "raw"
	TransformDesignSystem Transform = "design-system"
	TransformFileManifest Transform = "file-manifest"
	TransformProjectSrc   Transform = "project-source"
)

// Well-known upstream source keys, resolved by the orchestrator rather than
// by node-id lookup.
const (
	SourceVibeBrief     = "vibe-brief"
	SourceMoodAnalysis  = "mood-analysis"
	SourceProjectSource = "project-source"
)

// UpstreamSource is a declarative reference to a prior step's output.
type UpstreamSource struct {
	SourceKey string // ancestor node id, or a well-known key above
	Alias     string // "" = use SourceKey as the label
	Transform Transform
}

// Label returns Alias if set, else SourceKey (§4.G: "labeled by alias ?? sourceKey").
func (u UpstreamSource) Label() string {
	if u.Alias != "" {
		return u.Alias
	}
	return u.SourceKey
}

// Edge is a directed edge, optionally gated by a condition branch.
type Edge struct {
	From         string
	To           string
	SourceHandle string // "" | "true" | "false"
	Label        string
}

func isWellKnownSource(key string) bool {
	switch key {
	case SourceVibeBrief, SourceMoodAnalysis, SourceProjectSource:
		return true
	default:
		return false
	}
}
