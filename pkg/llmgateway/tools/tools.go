// Package tools dispatches an agent's embedded <tool_call> blocks (§4.G,
// §9): the file-store vocabulary (write_file, write_files, read_file,
// list_files, save_version) plus user-defined custom tools — HTTP, JS
// (sandboxed goja, mirroring pkg/flow/resolver/expr's VM construction), an
// MCP server tool (mark3labs/mcp-go), or a shell command — each counting
// against an agent step's maxToolSteps budget (§4.G, §7).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one dispatchable tool: a file-store builtin or a custom tool kind.
type Tool interface {
	// Name is the identifier an agent's <tool_call> block references.
	Name() string
	// Call executes the tool with its raw JSON arguments and returns its
	// textual result (what gets fed back as a RoleTool message).
	Call(ctx context.Context, argsJSON string) (string, error)
}

// Registry resolves a tool name to its Tool, scoped to one agent step's
// ToolOverrides (§3's AgentSpec.ToolOverrides) — an agent only sees the
// subset of tools its node explicitly allows, plus the always-available
// file-store tools.
type Registry struct {
	byName map[string]Tool
}

// NewRegistry builds a Registry from a flat tool list; later entries with a
// duplicate Name overwrite earlier ones, so callers can layer
// file-store tools first and node-specific custom tools second.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: map[string]Tool{}}
	for _, t := range tools {
		r.byName[t.Name()] = t
	}
	return r
}

// Scoped returns a Registry restricted to names, always including any
// names in always (e.g. the file-store tools, which every agent keeps
// regardless of ToolOverrides).
func (r *Registry) Scoped(names, always []string) *Registry {
	out := &Registry{byName: map[string]Tool{}}
	for _, n := range always {
		if t, ok := r.byName[n]; ok {
			out.byName[n] = t
		}
	}
	for _, n := range names {
		if t, ok := r.byName[n]; ok {
			out.byName[n] = t
		}
	}
	return out
}

// Dispatch looks up name and calls it. A missing tool is a ToolError-class
// failure the caller should report as a tool-step event without aborting
// the agent's stream (§7).
func (r *Registry) Dispatch(ctx context.Context, name, argsJSON string) (string, error) {
	t, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("tools: unknown tool %q", name)
	}
	return t.Call(ctx, argsJSON)
}

// argsInto unmarshals argsJSON into v, wrapping any error for a consistent
// ToolError-friendly message.
func argsInto(argsJSON string, v any) error {
	if argsJSON == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(argsJSON), v); err != nil {
		return fmt.Errorf("tools: invalid arguments: %w", err)
	}
	return nil
}
