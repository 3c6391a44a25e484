package resolver_test

import (
	"testing"

	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
	"github.com/flowforge/orchestrator/pkg/flow/templates"
	"github.com/stretchr/testify/require"
)

func stepKeys(plan *resolver.ExecutionPlan) []string {
	var keys []string
	for _, s := range plan.Steps {
		keys = append(keys, s.StepKey())
	}
	return keys
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Scenario 1 — Build, full scope, needsBackend=false: frontend-dev runs,
// backend-dev does not.
func TestResolve_BuildFullScope(t *testing.T) {
	plan := resolver.Resolve(templates.Build(), resolver.ResolutionContext{
		Intent:       flow.IntentBuild,
		Scope:        flow.ScopeFull,
		NeedsBackend: false,
		HasFiles:     false,
		UserMessage:  "Build a landing page",
	}, nil)

	keys := stepKeys(plan)
	require.True(t, containsKey(keys, "frontend-dev"))
	require.False(t, containsKey(keys, "backend-dev"))
	require.True(t, containsKey(keys, "styling"))
	require.True(t, containsKey(keys, "build-check"))
	require.True(t, containsKey(keys, "test-run"))
	require.True(t, containsKey(keys, "summary"))

	summary, ok := plan.StepByKey("summary")
	require.True(t, ok)
	require.Contains(t, summary.DependsOn, "version-build")
}

// Scenario 2 — Fix, backend scope: backend-fix runs, frontend-fix doesn't,
// and build-check-fix depends on the node id backend-fix, never the agent
// name backend-dev.
func TestResolve_FixBackendScope(t *testing.T) {
	plan := resolver.Resolve(templates.Fix(), resolver.ResolutionContext{
		Intent:       flow.IntentFix,
		Scope:        flow.ScopeBackend,
		NeedsBackend: true,
		HasFiles:     true,
	}, nil)

	keys := stepKeys(plan)
	require.True(t, containsKey(keys, "backend-fix"))
	require.False(t, containsKey(keys, "frontend-fix"))

	buildCheck, ok := plan.StepByKey("build-check-fix")
	require.True(t, ok)
	require.Contains(t, buildCheck.DependsOn, "backend-fix")
	require.NotContains(t, buildCheck.DependsOn, "backend-dev")
}

// Scenario 3 — Fix, styling scope: only the styling-quick agent emitted, plan ends at
// version-quick -> summary-fix, no reviewers or remediation (the Fix
// template has none to begin with, but this locks the shape down).
func TestResolve_FixStylingScope(t *testing.T) {
	plan := resolver.Resolve(templates.Fix(), resolver.ResolutionContext{
		Intent: flow.IntentFix,
		Scope:  flow.ScopeStyling,
	}, nil)

	keys := stepKeys(plan)
	require.Equal(t, []string{"styling-quick", "version-quick", "summary-fix"}, keys)

	summary, ok := plan.StepByKey("summary-fix")
	require.True(t, ok)
	require.Contains(t, summary.DependsOn, "version-quick")
}

// Scenario 6 — condition pruning with rejoin.
func TestResolve_ConditionPruningRejoin(t *testing.T) {
	tpl := &flow.Template{
		Name: "rejoin",
		Nodes: []flow.Node{
			{ID: "A", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "a"}},
			{ID: "cond", Kind: flow.NodeCondition, Condition: &flow.ConditionSpec{
				Mode: flow.ConditionPredefined, Predefined: flow.PredefinedNeedsBackend,
			}},
			{ID: "B", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "b"}},
			{ID: "C", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "c"}},
			{ID: "D", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "d"}},
		},
		Edges: []flow.Edge{
			{From: "A", To: "cond"},
			{From: "cond", To: "B", SourceHandle: "true"},
			{From: "cond", To: "C", SourceHandle: "false"},
			{From: "B", To: "D"},
			{From: "C", To: "D"},
		},
	}

	planTrue := resolver.Resolve(tpl, resolver.ResolutionContext{NeedsBackend: true}, nil)
	keysTrue := stepKeys(planTrue)
	require.ElementsMatch(t, []string{"A", "B", "D"}, keysTrue)

	planFalse := resolver.Resolve(tpl, resolver.ResolutionContext{NeedsBackend: false}, nil)
	keysFalse := stepKeys(planFalse)
	require.ElementsMatch(t, []string{"A", "C", "D"}, keysFalse)
}

// Property: every dependsOn entry names an emitted step's key, for all
// three stock templates under varied contexts.
func TestResolve_DependsOnAlwaysResolvable(t *testing.T) {
	contexts := []resolver.ResolutionContext{
		{Intent: flow.IntentBuild, Scope: flow.ScopeFull, NeedsBackend: true},
		{Intent: flow.IntentBuild, Scope: flow.ScopeFull, NeedsBackend: false},
		{Intent: flow.IntentFix, Scope: flow.ScopeBackend, NeedsBackend: true},
		{Intent: flow.IntentFix, Scope: flow.ScopeStyling},
		{Intent: flow.IntentQuestion},
	}
	tpls := []*flow.Template{templates.Build(), templates.Fix(), templates.Question()}

	for _, tpl := range tpls {
		for _, ctx := range contexts {
			if tpl.Intent != ctx.Intent {
				continue
			}
			plan := resolver.Resolve(tpl, ctx, nil)
			emitted := map[string]bool{}
			for _, s := range plan.Steps {
				emitted[s.StepKey()] = true
			}
			for _, s := range plan.Steps {
				for _, dep := range s.DependsOn {
					require.Truef(t, emitted[dep], "template %s: step %s depends on unemitted key %s", tpl.ID, s.StepKey(), dep)
				}
			}
		}
	}
}

// Property: stepKey is unique within a plan.
func TestResolve_StepKeysUnique(t *testing.T) {
	plan := resolver.Resolve(templates.Build(), resolver.ResolutionContext{Intent: flow.IntentBuild, Scope: flow.ScopeFull, NeedsBackend: true}, nil)
	seen := map[string]bool{}
	for _, s := range plan.Steps {
		require.False(t, seen[s.StepKey()], "duplicate step key %s", s.StepKey())
		seen[s.StepKey()] = true
	}
}

// checkpoint gates: an active checkpoint gates its nearest downstream
// agent/action/version descendants, staying transparent through an
// intervening condition node.
func TestResolve_CheckpointGatesNearestDescendants(t *testing.T) {
	tpl := &flow.Template{
		Name: "checkpoint-gate",
		Nodes: []flow.Node{
			{ID: "draft", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "draft"}},
			{ID: "gate", Kind: flow.NodeCheckpoint, Checkpoint: &flow.CheckpointSpec{
				CheckpointType: flow.CheckpointApprove, TimeoutMs: 1000,
			}},
			{ID: "cond", Kind: flow.NodeCondition, Condition: &flow.ConditionSpec{
				Mode: flow.ConditionPredefined, Predefined: flow.PredefinedNeedsBackend,
			}},
			{ID: "build", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "build"}},
		},
		Edges: []flow.Edge{
			{From: "draft", To: "gate"},
			{From: "gate", To: "cond"},
			{From: "cond", To: "build", SourceHandle: "true"},
		},
	}

	plan := resolver.Resolve(tpl, resolver.ResolutionContext{NeedsBackend: true}, nil)
	require.Len(t, plan.Checkpoints, 1)
	gate := plan.Checkpoints[0]
	require.Equal(t, "gate", gate.NodeID)
	require.Equal(t, []string{"build"}, gate.GatedSteps)
}

// An inactive checkpoint (its only downstream branch pruned away) emits no
// gate at all — nothing left for the orchestrator to hold.
func TestResolve_PrunedCheckpointEmitsNoGate(t *testing.T) {
	tpl := &flow.Template{
		Name: "checkpoint-pruned",
		Nodes: []flow.Node{
			{ID: "cond", Kind: flow.NodeCondition, Condition: &flow.ConditionSpec{
				Mode: flow.ConditionPredefined, Predefined: flow.PredefinedNeedsBackend,
			}},
			{ID: "gate", Kind: flow.NodeCheckpoint, Checkpoint: &flow.CheckpointSpec{
				CheckpointType: flow.CheckpointApprove,
			}},
			{ID: "build", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "build"}},
		},
		Edges: []flow.Edge{
			{From: "cond", To: "gate", SourceHandle: "true"},
			{From: "gate", To: "build"},
		},
	}

	plan := resolver.Resolve(tpl, resolver.ResolutionContext{NeedsBackend: false}, nil)
	require.Empty(t, plan.Checkpoints)
	require.False(t, containsKey(stepKeys(plan), "build"))
}

// Two checkpoints on the same path each gate their own nearest descendant
// only — gate1's forward walk stops at mid, so gate1 does not also gate
// final.
func TestResolve_SequentialCheckpointsGateIndependently(t *testing.T) {
	tpl := &flow.Template{
		Name: "checkpoint-sequential",
		Nodes: []flow.Node{
			{ID: "gate1", Kind: flow.NodeCheckpoint, Checkpoint: &flow.CheckpointSpec{
				CheckpointType: flow.CheckpointApprove,
			}},
			{ID: "mid", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "mid"}},
			{ID: "gate2", Kind: flow.NodeCheckpoint, Checkpoint: &flow.CheckpointSpec{
				CheckpointType: flow.CheckpointDesignDirection,
			}},
			{ID: "final", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "final"}},
		},
		Edges: []flow.Edge{
			{From: "gate1", To: "mid"},
			{From: "mid", To: "gate2"},
			{From: "gate2", To: "final"},
		},
	}

	plan := resolver.Resolve(tpl, resolver.ResolutionContext{}, nil)
	require.Len(t, plan.Checkpoints, 2)

	byID := map[string]resolver.CheckpointGate{}
	for _, g := range plan.Checkpoints {
		byID[g.NodeID] = g
	}
	require.Equal(t, []string{"mid"}, byID["gate1"].GatedSteps)
	require.Equal(t, []string{"final"}, byID["gate2"].GatedSteps)
}

// Property: removing a node from a template removes exactly that step.
func TestResolve_RemovingNodeRemovesExactlyThatStep(t *testing.T) {
	tpl := templates.Question()
	before := resolver.Resolve(tpl, resolver.ResolutionContext{Intent: flow.IntentQuestion}, nil)
	require.Len(t, before.Steps, 2)

	trimmed := &flow.Template{
		ID: tpl.ID, Name: tpl.Name, Intent: tpl.Intent,
		Nodes: []flow.Node{tpl.Nodes[0]}, // drop the "answer" action node
		Edges: nil,
	}
	after := resolver.Resolve(trimmed, resolver.ResolutionContext{Intent: flow.IntentQuestion}, nil)
	require.Len(t, after.Steps, 1)
	require.Equal(t, "question", after.Steps[0].StepKey())
}
