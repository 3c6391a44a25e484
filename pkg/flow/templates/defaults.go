// Package templates is the Default Templates factory (Component I): it
// produces the stock Build/Fix/Question DAGs at the declared
// config.FlowDefaultsVersion, and the function that returns a regenerated
// copy of a stale default template (preserving id and name) on read.
package templates

import (
	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/flow"
)

// BuildTemplateID, FixTemplateID, and QuestionTemplateID are stable ids used
// so that upgrades preserve identity across FLOW_DEFAULTS_VERSION bumps.
const (
	BuildTemplateID    = "default-build"
	FixTemplateID      = "default-fix"
	QuestionTemplateID = "default-question"
)

// Defaults returns the three stock templates at the current defaults version.
func Defaults() []*flow.Template {
	return []*flow.Template{Build(), Fix(), Question()}
}

// UpgradeIfStale returns a freshly generated template carrying t's id, name
// and enabled flag when t is a default template whose version trails
// config.FlowDefaultsVersion (§6, §8); otherwise it returns t itself. t is
// never modified.
func UpgradeIfStale(t *flow.Template) *flow.Template {
	if !t.IsDefault || t.Version >= config.FlowDefaultsVersion {
		return t
	}

	var fresh *flow.Template
	switch t.Intent {
	case flow.IntentBuild:
		fresh = Build()
	case flow.IntentFix:
		fresh = Fix()
	case flow.IntentQuestion:
		fresh = Question()
	default:
		return t
	}

	fresh.ID = t.ID
	fresh.Name = t.Name
	fresh.Enabled = t.Enabled
	return fresh
}

// Build returns the stock Build-intent DAG: vibe-intake and mood-analysis
// run up front, then research → architect → design checkpoint, frontend-dev
// plus a backend condition gating backend-dev, post-dev/post-test
// snapshots, build-check, test-run, a three-reviewer remediation loop, a
// final snapshot, and a summary (scenario 1).
func Build() *flow.Template {
	return &flow.Template{
		ID:        BuildTemplateID,
		Name:      "Default Build",
		Intent:    flow.IntentBuild,
		Enabled:   true,
		IsDefault: true,
		Version:   config.FlowDefaultsVersion,
		Nodes: []flow.Node{
			agentNode("vibe-intake", "vibe-intake-agent", nil),
			agentNode("mood-analysis", "mood-analysis-agent", nil),
			agentNode("research", "researcher", nil),
			agentNode("architect", "architect", []flow.UpstreamSource{
				{SourceKey: "research", Transform: flow.TransformRaw},
			}),
			checkpointNode("design-checkpoint", flow.CheckpointDesignDirection, "Review the proposed design before implementation begins.", true, 10*60*1000),
			conditionNode("cond-backend", flow.PredefinedNeedsBackend),
			agentNode("frontend-dev", "frontend-dev", []flow.UpstreamSource{
				{SourceKey: "architect", Alias: "design", Transform: flow.TransformDesignSystem},
			}),
			agentNode("backend-dev", "backend-dev", []flow.UpstreamSource{
				{SourceKey: "architect", Alias: "design", Transform: flow.TransformDesignSystem},
			}),
			versionNode("version-post-dev", "post-dev"),
			agentNode("styling", "styling-agent", []flow.UpstreamSource{
				{SourceKey: "frontend-dev", Transform: flow.TransformFileManifest},
			}),
			actionNode("build-check", flow.ActionBuildCheck, func(a *flow.ActionSpec) {
				a.Command = "npm run build"
				a.TimeoutMs = 180000
				a.MaxAttempts = 3
				a.MaxUniqueErr = 8
			}),
			actionNode("test-run", flow.ActionTestRun, func(a *flow.ActionSpec) {
				a.Command = "npm test"
				a.TimeoutMs = 300000
				a.MaxAttempts = 3
				a.MaxTestFail = 10
			}),
			versionNode("version-post-test", "post-test"),
			agentNode("code-review", "code-reviewer", []flow.UpstreamSource{
				{SourceKey: flow.SourceProjectSource, Transform: flow.TransformProjectSrc},
			}),
			agentNode("security", "security-reviewer", []flow.UpstreamSource{
				{SourceKey: flow.SourceProjectSource, Transform: flow.TransformProjectSrc},
			}),
			agentNode("qa", "qa-reviewer", []flow.UpstreamSource{
				{SourceKey: flow.SourceProjectSource, Transform: flow.TransformProjectSrc},
			}),
			actionNode("remediation", flow.ActionRemediation, func(a *flow.ActionSpec) {
				a.RemediationReviewerKeys = []string{"code-review", "security", "qa"}
				a.MaxAttempts = 2
			}),
			versionNode("version-build", "build-complete"),
			actionNode("summary", flow.ActionSummary, func(a *flow.ActionSpec) {
				a.MaxOutputTokens = 1024
			}),
		},
		Edges: []flow.Edge{
			{From: "vibe-intake", To: "mood-analysis"},
			{From: "mood-analysis", To: "research"},
			{From: "research", To: "architect"},
			{From: "architect", To: "design-checkpoint"},
			{From: "design-checkpoint", To: "cond-backend"},
			{From: "design-checkpoint", To: "frontend-dev"},
			{From: "cond-backend", To: "backend-dev", SourceHandle: "true"},
			{From: "backend-dev", To: "version-post-dev"},
			{From: "frontend-dev", To: "version-post-dev"},
			{From: "version-post-dev", To: "styling"},
			{From: "styling", To: "build-check"},
			{From: "build-check", To: "test-run"},
			{From: "test-run", To: "version-post-test"},
			{From: "version-post-test", To: "code-review"},
			{From: "version-post-test", To: "security"},
			{From: "version-post-test", To: "qa"},
			{From: "code-review", To: "remediation"},
			{From: "security", To: "remediation"},
			{From: "qa", To: "remediation"},
			{From: "remediation", To: "version-build"},
			{From: "version-build", To: "summary"},
		},
	}
}

// Fix returns the stock Fix-intent DAG: a backend/frontend condition gates
// which fix agent runs, a styling-only fast path bypasses review entirely
// (scenario 3), and the common path runs build-check-fix before a summary.
func Fix() *flow.Template {
	return &flow.Template{
		ID:        FixTemplateID,
		Name:      "Default Fix",
		Intent:    flow.IntentFix,
		Enabled:   true,
		IsDefault: true,
		Version:   config.FlowDefaultsVersion,
		Nodes: []flow.Node{
			conditionNode("cond-styling", flow.PredefinedScopeStyling),
			conditionNode("cond-backend-fix", flow.PredefinedNeedsBackend),
			agentNode("styling-quick", "styling-agent", nil),
			agentNode("backend-fix", "backend-dev", nil),
			agentNode("frontend-fix", "frontend-dev", nil),
			actionNode("build-check-fix", flow.ActionBuildCheck, func(a *flow.ActionSpec) {
				a.Command = "npm run build"
				a.TimeoutMs = 120000
				a.MaxAttempts = 2
				a.MaxUniqueErr = 8
			}),
			versionNode("version-quick", "styling-fix"),
			actionNode("summary-fix", flow.ActionSummary, func(a *flow.ActionSpec) {
				a.MaxOutputTokens = 512
			}),
		},
		Edges: []flow.Edge{
			{From: "cond-styling", To: "styling-quick", SourceHandle: "true"},
			{From: "cond-styling", To: "cond-backend-fix", SourceHandle: "false"},
			{From: "cond-backend-fix", To: "backend-fix", SourceHandle: "true"},
			{From: "cond-backend-fix", To: "frontend-fix", SourceHandle: "false"},
			{From: "backend-fix", To: "build-check-fix"},
			{From: "frontend-fix", To: "build-check-fix"},
			{From: "build-check-fix", To: "version-quick"},
			{From: "styling-quick", To: "version-quick"},
			{From: "version-quick", To: "summary-fix"},
		},
	}
}

// Question returns the stock Question-intent DAG: a single "question"
// agent step followed by an answer action. Per §9's Open Question, this
// keeps the scheduler uniform rather than special-casing question intent.
func Question() *flow.Template {
	return &flow.Template{
		ID:        QuestionTemplateID,
		Name:      "Default Question",
		Intent:    flow.IntentQuestion,
		Enabled:   true,
		IsDefault: true,
		Version:   config.FlowDefaultsVersion,
		Nodes: []flow.Node{
			agentNode("question", "question", []flow.UpstreamSource{
				{SourceKey: flow.SourceProjectSource, Transform: flow.TransformProjectSrc},
			}),
			actionNode("answer", flow.ActionAnswer, func(a *flow.ActionSpec) {
				a.MaxOutputTokens = 1024
			}),
		},
		Edges: []flow.Edge{
			{From: "question", To: "answer"},
		},
	}
}

func agentNode(id, agentName string, upstream []flow.UpstreamSource) flow.Node {
	return flow.Node{
		ID:   id,
		Kind: flow.NodeAgent,
		Agent: &flow.AgentSpec{
			AgentName:       agentName,
			InputTemplate:   "{{userMessage}}",
			UpstreamSources: upstream,
		},
	}
}

func conditionNode(id, predefined string) flow.Node {
	return flow.Node{
		ID:   id,
		Kind: flow.NodeCondition,
		Condition: &flow.ConditionSpec{
			Mode:       flow.ConditionPredefined,
			Predefined: predefined,
		},
	}
}

func checkpointNode(id string, kind flow.CheckpointType, message string, skipInYolo bool, timeoutMs int) flow.Node {
	return flow.Node{
		ID:   id,
		Kind: flow.NodeCheckpoint,
		Checkpoint: &flow.CheckpointSpec{
			SkipInYolo:     skipInYolo,
			TimeoutMs:      timeoutMs,
			CheckpointType: kind,
			Message:        message,
		},
	}
}

func versionNode(id, label string) flow.Node {
	return flow.Node{
		ID:      id,
		Kind:    flow.NodeVersion,
		Version: &flow.VersionSpec{Label: label},
	}
}

func actionNode(id string, kind flow.ActionKind, configure func(*flow.ActionSpec)) flow.Node {
	spec := &flow.ActionSpec{Kind: kind}
	if configure != nil {
		configure(spec)
	}
	return flow.Node{ID: id, Kind: flow.NodeAction, Action: spec}
}
