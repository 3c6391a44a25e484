// Package resolver implements the §4.F Flow Resolver: it evaluates a
// validated template against a runtime ResolutionContext, prunes
// unreachable branches, and emits an ExecutionPlan of agent and action
// steps carrying dependency keys.
package resolver

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver/expr"
)

// ResolutionContext is the runtime input the resolver evaluates conditions
// against and substitutes into agent input templates.
type ResolutionContext struct {
	Intent       flow.Intent
	Scope        flow.Scope
	NeedsBackend bool
	HasFiles     bool
	UserMessage  string
}

// StepKind discriminates the PlanStep tagged union (§9).
type StepKind string

const (
	StepAgent  StepKind = "agent"
	StepAction StepKind = "action"
)

// PlanStep is one emitted unit of work. Exactly one of Agent/Action is set,
// matching Kind.
type PlanStep struct {
	InstanceID string // the originating node id — this IS the step key
	Kind       StepKind
	DependsOn  []string // other steps' InstanceIDs

	Agent  *AgentStep
	Action *ActionStep
}

// StepKey returns the step's dependency key: its originating node id, never
// the agent name (§4.F — load-bearing when one agent appears on >1 node).
func (s PlanStep) StepKey() string { return s.InstanceID }

// AgentStep is the resolved configuration for an agent plan step.
type AgentStep struct {
	AgentName       string
	RenderedInput   string
	MaxOutputTokens int
	MaxToolSteps    int
	SystemPrompt    string
	ToolOverrides   []string
	UpstreamSources []flow.UpstreamSource
}

// ActionStep is the resolved configuration for an action plan step.
type ActionStep struct {
	Kind            flow.ActionKind
	Command         string
	TimeoutMs       int
	MaxAttempts     int
	MaxUniqueErr    int
	MaxTestFail     int
	RemediationKeys []string
	FixAgents       []string
	SystemPrompt    string
	MaxOutputTokens int
	SnapshotLabel   string
	UpstreamSources []flow.UpstreamSource
}

// ExecutionPlan is the resolver's output.
type ExecutionPlan struct {
	Steps []PlanStep
	// ActionOverrides flattens each action step's resolved config by
	// instance id, for legacy consumers that read overrides out-of-band
	// rather than off the PlanStep itself.
	ActionOverrides map[string]ActionStep
	// Checkpoints lists every active checkpoint node and the steps it gates
	// (§4.F: checkpoint nodes never emit a PlanStep themselves, but the
	// orchestrator still needs to know which steps to hold until a
	// checkpoint resolves).
	Checkpoints []CheckpointGate
}

// CheckpointGate is one active checkpoint node paired with the nearest
// active agent/action/version descendants downstream of it — the step keys
// whose dispatch must wait for this checkpoint to resolve.
type CheckpointGate struct {
	NodeID     string
	Spec       flow.CheckpointSpec
	GatedSteps []string
}

// StepByKey returns the step with the given key, or false if absent.
func (p *ExecutionPlan) StepByKey(key string) (PlanStep, bool) {
	for _, s := range p.Steps {
		if s.StepKey() == key {
			return s, true
		}
	}
	return PlanStep{}, false
}

// AgentNames returns the agent names of steps emitted in planned order —
// used for the pipeline_plan announcement event.
func (p *ExecutionPlan) AgentNames() []string {
	var names []string
	for _, s := range p.Steps {
		if s.Kind == StepAgent {
			names = append(names, s.Agent.AgentName)
		}
	}
	return names
}

// Resolve runs the §4.F algorithm: topological sort, prune, emit.
func Resolve(t *flow.Template, ctx ResolutionContext, log *slog.Logger) *ExecutionPlan {
	if log == nil {
		log = slog.Default()
	}

	order, cycle := flow.TopologicalOrder(t.Nodes, t.Edges)
	if cycle {
		log.Warn("flow resolver: template has a cycle, returning empty plan", "template", t.ID)
		return &ExecutionPlan{ActionOverrides: map[string]ActionStep{}}
	}

	nodesByID := make(map[string]flow.Node, len(t.Nodes))
	for _, n := range t.Nodes {
		nodesByID[n.ID] = n
	}

	forward := map[string][]flow.Edge{}
	backward := map[string][]flow.Edge{}
	for _, e := range t.Edges {
		forward[e.From] = append(forward[e.From], e)
		backward[e.To] = append(backward[e.To], e)
	}

	active := pruneConditions(order, nodesByID, forward, backward, ctx, log)

	plan := emitSteps(order, nodesByID, backward, active, ctx)
	plan.Checkpoints = checkpointGates(order, nodesByID, forward, active)
	return plan
}

// pruneConditions is the resolver's first pass. An edge out of a condition
// node is "live" only when its sourceHandle matches the node's evaluated
// result; every other edge is live iff its source node is active. A node
// with incoming edges is active iff at least one of them is live (start
// nodes, with no incoming edges, are always active). Because a condition
// node's own liveness/result is resolved before any of its descendants are
// visited (topological order), this is a single forward pass — and it is
// exactly what preserves rejoin semantics: a descendant fed by several
// branches survives pruning as long as any one branch into it is live,
// while a branch that disagreed with its condition's result never counts
// as live for anyone fed solely by it.
func pruneConditions(
	order []string,
	nodesByID map[string]flow.Node,
	forward, backward map[string][]flow.Edge,
	ctx ResolutionContext,
	log *slog.Logger,
) map[string]bool {
	active := make(map[string]bool, len(order))
	conditionResult := make(map[string]bool, len(order))

	for _, id := range order {
		n := nodesByID[id]

		if len(backward[id]) == 0 {
			active[id] = true
		} else {
			for _, e := range backward[id] {
				if !active[e.From] {
					continue
				}
				if nodesByID[e.From].Kind == flow.NodeCondition && e.SourceHandle != "" {
					wantHandle := "false"
					if conditionResult[e.From] {
						wantHandle = "true"
					}
					if e.SourceHandle != wantHandle {
						continue // disagrees with the evaluated branch: not live
					}
				}
				active[id] = true
				break
			}
		}

		if n.Kind == flow.NodeCondition && active[id] {
			result, err := evaluateCondition(n, ctx)
			if err != nil {
				log.Warn("flow resolver: condition evaluation failed, treating as false", "node", id, "error", err)
				result = false
			}
			conditionResult[id] = result
		}
	}

	return active
}

// evaluateCondition maps a condition node to a boolean, per §4.F.
func evaluateCondition(n flow.Node, ctx ResolutionContext) (bool, error) {
	if n.Condition == nil {
		return false, fmt.Errorf("condition node %s has no spec", n.ID)
	}

	switch n.Condition.Mode {
	case flow.ConditionPredefined:
		return evaluatePredefined(n.Condition.Predefined, ctx)
	case flow.ConditionExpression:
		return expr.Eval(n.Condition.Expression, expr.Vars{
			Intent:       string(ctx.Intent),
			Scope:        string(ctx.Scope),
			NeedsBackend: ctx.NeedsBackend,
			HasFiles:     ctx.HasFiles,
		})
	default:
		return false, fmt.Errorf("condition node %s has unknown mode %q", n.ID, n.Condition.Mode)
	}
}

func evaluatePredefined(id string, ctx ResolutionContext) (bool, error) {
	switch id {
	case flow.PredefinedNeedsBackend:
		return ctx.NeedsBackend, nil
	case flow.PredefinedHasFiles:
		return ctx.HasFiles, nil
	case flow.PredefinedScopeFrontend:
		return ctx.Scope == flow.ScopeFrontend || ctx.Scope == flow.ScopeFull, nil
	case flow.PredefinedScopeBackend:
		return ctx.Scope == flow.ScopeBackend || ctx.Scope == flow.ScopeFull, nil
	case flow.PredefinedScopeStyling:
		return ctx.Scope == flow.ScopeStyling || ctx.Scope == flow.ScopeFull, nil
	default:
		return false, fmt.Errorf("unknown predefined condition %q", id)
	}
}

// emitSteps is the resolver's second pass: walk in topological order and
// emit a PlanStep for every active agent/action/version node.
func emitSteps(order []string, nodesByID map[string]flow.Node, backward map[string][]flow.Edge, active map[string]bool, ctx ResolutionContext) *ExecutionPlan {
	plan := &ExecutionPlan{ActionOverrides: map[string]ActionStep{}}

	for _, id := range order {
		if !active[id] {
			continue
		}
		n := nodesByID[id]

		switch n.Kind {
		case flow.NodeAgent:
			spec := n.Agent
			step := PlanStep{
				InstanceID: id,
				Kind:       StepAgent,
				DependsOn:  agentAncestors(id, nodesByID, backward, active),
				Agent: &AgentStep{
					AgentName:       spec.AgentName,
					RenderedInput:   renderTemplate(spec.InputTemplate, ctx.UserMessage),
					MaxOutputTokens: spec.MaxOutputTokens,
					MaxToolSteps:    spec.MaxToolSteps,
					SystemPrompt:    spec.SystemPrompt,
					ToolOverrides:   spec.ToolOverrides,
					UpstreamSources: spec.UpstreamSources,
				},
			}
			plan.Steps = append(plan.Steps, step)

		case flow.NodeAction:
			spec := n.Action
			actionStep := ActionStep{
				Kind:            spec.Kind,
				Command:         spec.Command,
				TimeoutMs:       spec.TimeoutMs,
				MaxAttempts:     spec.MaxAttempts,
				MaxUniqueErr:    spec.MaxUniqueErr,
				MaxTestFail:     spec.MaxTestFail,
				RemediationKeys: spec.RemediationReviewerKeys,
				FixAgents:       spec.RemediationFixAgents,
				SystemPrompt:    spec.SystemPrompt,
				MaxOutputTokens: spec.MaxOutputTokens,
				SnapshotLabel:   spec.SnapshotLabel,
				UpstreamSources: spec.UpstreamSources,
			}
			step := PlanStep{
				InstanceID: id,
				Kind:       StepAction,
				DependsOn:  agentAncestors(id, nodesByID, backward, active),
				Action:     &actionStep,
			}
			plan.Steps = append(plan.Steps, step)
			plan.ActionOverrides[id] = actionStep

		case flow.NodeVersion:
			// §4.F lists version among the non-emitting node kinds, but the
			// version action actually executes synchronously (§4.H) and
			// scenario 1 requires summary.dependsOn to contain the version
			// node's own id — so, unlike condition/checkpoint/config, a
			// version node DOES emit a step (and is a dependency-walk
			// stopping point, like any other action).
			label := ""
			if n.Version != nil {
				label = n.Version.Label
			}
			actionStep := ActionStep{Kind: flow.ActionVersion, SnapshotLabel: label}
			step := PlanStep{
				InstanceID: id,
				Kind:       StepAction,
				DependsOn:  agentAncestors(id, nodesByID, backward, active),
				Action:     &actionStep,
			}
			plan.Steps = append(plan.Steps, step)
			plan.ActionOverrides[id] = actionStep

		case flow.NodeCondition, flow.NodeCheckpoint, flow.NodeConfig:
			// Do not emit a step; they still participate in the dependency
			// walk via agentAncestors' traversal through backward edges.

		default:
			// unknown kind — skip, validator should have already errored.
		}
	}

	return plan
}

// agentAncestors walks backward through active nodes, stopping at the
// first agent, action or version node on each path and collecting its
// instanceId. Condition/checkpoint/config nodes are transparent to this walk,
// so an agent whose sole upstream is a condition still depends on the
// agent above that condition.
func agentAncestors(id string, nodesByID map[string]flow.Node, backward map[string][]flow.Edge, active map[string]bool) []string {
	seen := map[string]bool{}
	var deps []string

	var walk func(cur string)
	walk = func(cur string) {
		for _, e := range backward[cur] {
			from := e.From
			if !active[from] {
				continue
			}
			n := nodesByID[from]
			if n.Kind == flow.NodeAgent || n.Kind == flow.NodeAction || n.Kind == flow.NodeVersion {
				if !seen[from] {
					seen[from] = true
					deps = append(deps, from)
				}
				continue // stop walking past an agent/action boundary
			}
			walk(from)
		}
	}
	walk(id)
	return deps
}

// checkpointGates finds every active checkpoint node and, for each, the
// nearest active agent/action/version descendants reached by walking
// forward through transparent nodes (condition/config), stopping at the
// first agent/action/version node on each branch and also stopping at
// (not through) any other checkpoint node, so nested checkpoints each gate
// only their own immediate downstream.
func checkpointGates(order []string, nodesByID map[string]flow.Node, forward map[string][]flow.Edge, active map[string]bool) []CheckpointGate {
	var gates []CheckpointGate
	for _, id := range order {
		if !active[id] || nodesByID[id].Kind != flow.NodeCheckpoint {
			continue
		}
		n := nodesByID[id]

		seen := map[string]bool{}
		var gated []string
		var walk func(cur string)
		walk = func(cur string) {
			for _, e := range forward[cur] {
				to := e.To
				if !active[to] {
					continue
				}
				switch nodesByID[to].Kind {
				case flow.NodeAgent, flow.NodeAction, flow.NodeVersion:
					if !seen[to] {
						seen[to] = true
						gated = append(gated, to)
					}
				case flow.NodeCheckpoint:
					// a different checkpoint's own responsibility; don't walk past it
				default:
					walk(to)
				}
			}
		}
		walk(id)

		gates = append(gates, CheckpointGate{NodeID: id, Spec: *n.Checkpoint, GatedSteps: gated})
	}
	return gates
}

func renderTemplate(tmpl, userMessage string) string {
	return strings.ReplaceAll(tmpl, "{{userMessage}}", userMessage)
}
