package flow

import (
	"fmt"
	"regexp"
)

// Severity distinguishes a hard validation failure from an advisory warning.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one accumulated finding from Validate.
type ValidationIssue struct {
	Severity Severity
	NodeID   string
	Message  string
}

func (i ValidationIssue) String() string {
	if i.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", i.Severity, i.NodeID, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
}

// HasErrors reports whether any issue in issues is a hard error.
func HasErrors(issues []ValidationIssue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// allowedConditionVars is the closed vocabulary condition expressions may
// reference (§3, §4.E, §9).
var allowedConditionVars = map[string]bool{
	"intent":       true,
	"scope":        true,
	"needsBackend": true,
	"hasFiles":     true,
}

// dangerousIdentifiers are rejected outright when an identifier token of an
// expression equals one of them exactly.
var dangerousIdentifiers = []string{
	"eval", "Function", "require", "import", "process", "window", "document", "globalThis", "__proto__",
}

var identifierRe = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// stringLiteralRe matches single- and double-quoted string literals, whose
// contents are not identifiers.
var stringLiteralRe = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)

// Validate runs the §4.E contract in order, accumulating issues rather than
// short-circuiting. knownAgentNames is the set of agent names an agent node
// may reference.
func Validate(t *Template, knownAgentNames map[string]bool) []ValidationIssue {
	var issues []ValidationIssue

	if len(t.Nodes) == 0 {
		return append(issues, ValidationIssue{Severity: SeverityError, Message: "template has no nodes"})
	}
	if t.Name == "" {
		issues = append(issues, ValidationIssue{Severity: SeverityError, Message: "template has no name"})
	}

	nodeIDs := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		nodeIDs[n.ID] = true
	}

	// 2. Every edge endpoint names an existing node.
	for _, e := range t.Edges {
		if !nodeIDs[e.From] {
			issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: e.From, Message: "edge references unknown source node"})
		}
		if !nodeIDs[e.To] {
			issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: e.To, Message: "edge references unknown target node"})
		}
	}

	inDegree := map[string]int{}
	outDegree := map[string]int{}
	forward := map[string][]Edge{}
	backward := map[string][]Edge{}
	for _, n := range t.Nodes {
		inDegree[n.ID] = 0
		outDegree[n.ID] = 0
	}
	for _, e := range t.Edges {
		if !nodeIDs[e.From] || !nodeIDs[e.To] {
			continue
		}
		inDegree[e.To]++
		outDegree[e.From]++
		forward[e.From] = append(forward[e.From], e)
		backward[e.To] = append(backward[e.To], e)
	}

	// 3. At least one start node, one terminal node.
	var starts []string
	hasTerminal := false
	for _, n := range t.Nodes {
		if inDegree[n.ID] == 0 {
			starts = append(starts, n.ID)
		}
		if outDegree[n.ID] == 0 {
			hasTerminal = true
		}
	}
	if len(starts) == 0 {
		issues = append(issues, ValidationIssue{Severity: SeverityError, Message: "no start node (every node has an incoming edge)"})
	}
	if !hasTerminal {
		issues = append(issues, ValidationIssue{Severity: SeverityError, Message: "no terminal node (every node has an outgoing edge)"})
	}

	// 4. Acyclic via Kahn's algorithm.
	order, cycle := TopologicalOrder(t.Nodes, t.Edges)
	if cycle {
		issues = append(issues, ValidationIssue{Severity: SeverityError, Message: "template graph contains a cycle"})
	}

	// 5. Every node reachable from some start node via BFS.
	reachable := map[string]bool{}
	queue := append([]string{}, starts...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		for _, e := range forward[id] {
			queue = append(queue, e.To)
		}
	}
	for _, n := range t.Nodes {
		if !reachable[n.ID] {
			issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: "node is unreachable from any start node"})
		}
	}

	// 6 & 7. Per-node-type checks.
	for _, n := range t.Nodes {
		switch n.Kind {
		case NodeAgent:
			if n.Agent == nil || n.Agent.AgentName == "" {
				issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: "agent node missing agentName"})
			} else if knownAgentNames != nil && !knownAgentNames[n.Agent.AgentName] {
				issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: fmt.Sprintf("unknown agent %q", n.Agent.AgentName)})
			}
			if n.Agent != nil {
				issues = append(issues, validateUpstreamSources(t, n, n.Agent.UpstreamSources, backward)...)
			}
		case NodeCondition:
			if n.Condition == nil {
				issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: "condition node missing spec"})
				break
			}
			switch n.Condition.Mode {
			case ConditionPredefined:
				if n.Condition.Predefined == "" {
					issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: "predefined condition missing id"})
				}
			case ConditionExpression:
				issues = append(issues, validateExpression(n.ID, n.Condition.Expression)...)
			default:
				issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: "condition node has unknown mode"})
			}

			// 7. At least one labeled branch.
			hasTrue, hasFalse := false, false
			for _, e := range forward[n.ID] {
				if e.SourceHandle == "true" {
					hasTrue = true
				}
				if e.SourceHandle == "false" {
					hasFalse = true
				}
			}
			if !hasTrue && !hasFalse {
				issues = append(issues, ValidationIssue{Severity: SeverityWarning, NodeID: n.ID, Message: "condition node has no true/false outgoing branch"})
			}
		case NodeCheckpoint:
			if n.Checkpoint != nil && n.Checkpoint.Message == "" {
				issues = append(issues, ValidationIssue{Severity: SeverityWarning, NodeID: n.ID, Message: "checkpoint has no message"})
			}
		case NodeAction:
			if n.Action == nil || n.Action.Kind == "" {
				issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: "action node missing kind"})
			} else {
				issues = append(issues, validateUpstreamSources(t, n, n.Action.UpstreamSources, backward)...)
			}
		case NodeVersion:
			if n.Version != nil && n.Version.Label == "" {
				issues = append(issues, ValidationIssue{Severity: SeverityWarning, NodeID: n.ID, Message: "version node has no label"})
			}
		case NodeConfig:
			// no required fields
		default:
			issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: fmt.Sprintf("unknown node kind %q", n.Kind)})
		}
	}

	_ = order
	return issues
}

// validateExpression parses identifiers out of expr (skipping the contents of
// string literals) and rejects anything outside the four allowed variables or
// anything matching a dangerous name.
func validateExpression(nodeID, expr string) []ValidationIssue {
	var issues []ValidationIssue
	if expr == "" {
		issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: nodeID, Message: "expression condition has empty expression"})
		return issues
	}
	for _, ident := range identifierRe.FindAllString(stringLiteralRe.ReplaceAllString(expr, `""`), -1) {
		for _, bad := range dangerousIdentifiers {
			if ident == bad {
				issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: nodeID, Message: fmt.Sprintf("expression references forbidden identifier %q", ident)})
			}
		}
		if ident == "true" || ident == "false" {
			continue
		}
		if !allowedConditionVars[ident] {
			issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: nodeID, Message: fmt.Sprintf("expression references identifier %q outside the allowed variable set", ident)})
		}
	}
	return issues
}

// validateUpstreamSources checks §4.E point 8: each sourceKey is an ancestor
// or a well-known key, aliases are unique, and design-system transform warns
// off an architect source.
func validateUpstreamSources(t *Template, n Node, sources []UpstreamSource, backward map[string][]Edge) []ValidationIssue {
	var issues []ValidationIssue

	ancestors := ancestorSet(n.ID, backward)
	seenAlias := map[string]bool{}
	for _, src := range sources {
		if !isWellKnownSource(src.SourceKey) && !ancestors[src.SourceKey] {
			issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: fmt.Sprintf("upstream source %q is neither an ancestor node nor a well-known key", src.SourceKey)})
		}
		label := src.Label()
		if seenAlias[label] {
			issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: n.ID, Message: fmt.Sprintf("duplicate upstream alias %q", label)})
		}
		seenAlias[label] = true

		if src.Transform == TransformDesignSystem {
			srcNode, ok := t.NodeByID(src.SourceKey)
			isArchitect := ok && srcNode.Kind == NodeAgent && srcNode.Agent != nil && srcNode.Agent.AgentName == "architect"
			if !isArchitect {
				issues = append(issues, ValidationIssue{Severity: SeverityWarning, NodeID: n.ID, Message: fmt.Sprintf("design-system transform used on non-architect source %q", src.SourceKey)})
			}
		}
	}
	return issues
}

// ancestorSet walks backward from nodeID through the edge set and returns
// every node id that can reach it.
func ancestorSet(nodeID string, backward map[string][]Edge) map[string]bool {
	seen := map[string]bool{}
	queue := []string{nodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range backward[id] {
			if !seen[e.From] {
				seen[e.From] = true
				queue = append(queue, e.From)
			}
		}
	}
	return seen
}

// TopologicalOrder runs Kahn's algorithm over nodes/edges. The returned
// order is a valid topological ordering of node ids; cycle is true if the
// sorted count came up short (some nodes sit in an unbreakable cycle).
func TopologicalOrder(nodes []Node, edges []Edge) (order []string, cycle bool) {
	inDegree := make(map[string]int, len(nodes))
	forward := map[string][]string{}
	for _, n := range nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range edges {
		if _, ok := inDegree[e.To]; !ok {
			continue
		}
		if _, ok := inDegree[e.From]; !ok {
			continue
		}
		inDegree[e.To]++
		forward[e.From] = append(forward[e.From], e.To)
	}

	var queue []string
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range forward[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	return order, len(order) < len(nodes)
}
