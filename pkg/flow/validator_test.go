package flow_test

import (
	"testing"

	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/stretchr/testify/require"
)

func knownAgents(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func TestValidate_EmptyTemplate(t *testing.T) {
	issues := flow.Validate(&flow.Template{}, nil)
	require.True(t, flow.HasErrors(issues))
}

func TestValidate_SimpleValidTemplate(t *testing.T) {
	tpl := &flow.Template{
		Name: "t",
		Nodes: []flow.Node{
			{ID: "a", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "researcher"}},
			{ID: "b", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "architect"}},
		},
		Edges: []flow.Edge{{From: "a", To: "b"}},
	}
	issues := flow.Validate(tpl, knownAgents("researcher", "architect"))
	require.False(t, flow.HasErrors(issues))
}

func TestValidate_UnknownAgent(t *testing.T) {
	tpl := &flow.Template{
		Name:  "t",
		Nodes: []flow.Node{{ID: "a", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "ghost"}}},
	}
	issues := flow.Validate(tpl, knownAgents("researcher"))
	require.True(t, flow.HasErrors(issues))
}

func TestValidate_Cycle(t *testing.T) {
	tpl := &flow.Template{
		Name: "t",
		Nodes: []flow.Node{
			{ID: "a", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "x"}},
			{ID: "b", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "x"}},
		},
		Edges: []flow.Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	}
	issues := flow.Validate(tpl, knownAgents("x"))
	require.True(t, flow.HasErrors(issues))

	_, cycle := flow.TopologicalOrder(tpl.Nodes, tpl.Edges)
	require.True(t, cycle)
}

func TestValidate_UnreachableNode(t *testing.T) {
	tpl := &flow.Template{
		Name: "t",
		Nodes: []flow.Node{
			{ID: "a", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "x"}},
			{ID: "b", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "x"}},
			{ID: "orphan", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "x"}},
		},
		Edges: []flow.Edge{{From: "a", To: "b"}, {From: "orphan", To: "orphan"}, {From: "orphan", To: "orphan2"}},
	}
	// The self-loop gives orphan an incoming edge, so it is not a start node
	// and no start node reaches it. orphan2 doesn't exist — also exercises the
	// "edge references unknown node" check.
	issues := flow.Validate(tpl, knownAgents("x"))
	require.True(t, flow.HasErrors(issues))
	require.Contains(t, issues, flow.ValidationIssue{Severity: flow.SeverityError, NodeID: "orphan", Message: "node is unreachable from any start node"})
}

func TestValidate_ExpressionRejectsForbiddenIdentifiers(t *testing.T) {
	tpl := &flow.Template{
		Name: "t",
		Nodes: []flow.Node{
			{ID: "c", Kind: flow.NodeCondition, Condition: &flow.ConditionSpec{
				Mode:       flow.ConditionExpression,
				Expression: `process.exit() || intent === "build"`,
			}},
			{ID: "a", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "x"}},
		},
		Edges: []flow.Edge{{From: "c", To: "a", SourceHandle: "true"}},
	}
	issues := flow.Validate(tpl, knownAgents("x"))
	require.True(t, flow.HasErrors(issues))
}

func TestValidate_ExpressionAllowsFourVariables(t *testing.T) {
	tpl := &flow.Template{
		Name: "t",
		Nodes: []flow.Node{
			{ID: "c", Kind: flow.NodeCondition, Condition: &flow.ConditionSpec{
				Mode:       flow.ConditionExpression,
				Expression: `intent === "build" && hasFiles && !needsBackend`,
			}},
			{ID: "a", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "x"}},
		},
		Edges: []flow.Edge{{From: "c", To: "a", SourceHandle: "true"}},
	}
	issues := flow.Validate(tpl, knownAgents("x"))
	require.False(t, flow.HasErrors(issues))
}

func TestValidate_UpstreamSourceMustBeAncestorOrWellKnown(t *testing.T) {
	tpl := &flow.Template{
		Name: "t",
		Nodes: []flow.Node{
			{ID: "a", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{AgentName: "x"}},
			{ID: "b", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{
				AgentName:       "x",
				UpstreamSources: []flow.UpstreamSource{{SourceKey: "not-an-ancestor"}},
			}},
		},
		Edges: []flow.Edge{{From: "a", To: "b"}},
	}
	issues := flow.Validate(tpl, knownAgents("x"))
	require.True(t, flow.HasErrors(issues))
}

func TestValidate_WellKnownUpstreamSourceAllowed(t *testing.T) {
	tpl := &flow.Template{
		Name: "t",
		Nodes: []flow.Node{
			{ID: "a", Kind: flow.NodeAgent, Agent: &flow.AgentSpec{
				AgentName:       "x",
				UpstreamSources: []flow.UpstreamSource{{SourceKey: flow.SourceProjectSource, Transform: flow.TransformProjectSrc}},
			}},
		},
	}
	issues := flow.Validate(tpl, knownAgents("x"))
	require.False(t, flow.HasErrors(issues))
}

func TestTopologicalOrder_Consistency(t *testing.T) {
	nodes := []flow.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	edges := []flow.Edge{{From: "a", To: "b"}, {From: "b", To: "c"}}

	order, cycle := flow.TopologicalOrder(nodes, edges)
	require.False(t, cycle)
	require.Equal(t, []string{"a", "b", "c"}, order)
}
