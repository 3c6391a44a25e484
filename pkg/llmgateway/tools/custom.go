package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dop251/goja"

	"github.com/flowforge/orchestrator/pkg/artifact"
)

// CustomKind is the closed vocabulary of user-defined custom tool kinds
// (§4.G: "a user-defined custom tool (HTTP/JS/shell)"). MCP-backed tools are
// not part of this vocabulary; they are built by NewMCPTool (see mcp.go).
type CustomKind string

const (
	CustomHTTP  CustomKind = "http"
	CustomJS    CustomKind = "js"
	CustomShell CustomKind = "shell"
)

// CustomDefinition is an operator-authored custom tool, the runtime
// counterpart of a flow node's ToolOverrides entry.
type CustomDefinition struct {
	Name string
	Kind CustomKind

	// http
	URL    string
	Method string
	Header map[string]string

	// js
	Script string // a goja program; receives `args` (parsed JSON) and must set a global `result`

	// shell
	Command string
	Dir     string
	Timeout time.Duration
}

// NewCustomTool builds the Tool implementation for def.
func NewCustomTool(def CustomDefinition) (Tool, error) {
	switch def.Kind {
	case CustomHTTP:
		return &httpTool{def: def}, nil
	case CustomJS:
		return &jsTool{def: def}, nil
	case CustomShell:
		return &shellTool{def: def}, nil
	default:
		return nil, fmt.Errorf("tools: unknown custom tool kind %q", def.Kind)
	}
}

type httpTool struct{ def CustomDefinition }

func (t *httpTool) Name() string { return t.def.Name }

func (t *httpTool) Call(ctx context.Context, argsJSON string) (string, error) {
	method := t.def.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, t.def.URL, bytes.NewReader([]byte(argsJSON)))
	if err != nil {
		return "", fmt.Errorf("tools: build request for %q: %w", t.def.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.def.Header {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tools: call %q: %w", t.def.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("tools: read response from %q: %w", t.def.Name, err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("tools: %q returned HTTP %d: %s", t.def.Name, resp.StatusCode, body)
	}
	return string(body), nil
}

// jsTool runs a sandboxed goja program per call, built the same way
// pkg/flow/resolver/expr builds its condition-evaluation VM: a fresh VM per
// call with only the inputs bound, no host functions exposed.
type jsTool struct{ def CustomDefinition }

func (t *jsTool) Name() string { return t.def.Name }

func (t *jsTool) Call(ctx context.Context, argsJSON string) (string, error) {
	var args any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("tools: invalid arguments for %q: %w", t.def.Name, err)
		}
	}

	vm := goja.New()
	vm.Set("args", args)

	if _, err := vm.RunString(t.def.Script); err != nil {
		return "", fmt.Errorf("tools: js tool %q failed: %w", t.def.Name, err)
	}

	result := vm.Get("result")
	if result == nil || goja.IsUndefined(result) {
		return "", nil
	}
	b, err := json.Marshal(result.Export())
	if err != nil {
		return "", fmt.Errorf("tools: js tool %q produced unmarshalable result: %w", t.def.Name, err)
	}
	return string(b), nil
}

type shellTool struct{ def CustomDefinition }

func (t *shellTool) Name() string { return t.def.Name }

func (t *shellTool) Call(ctx context.Context, argsJSON string) (string, error) {
	timeout := t.def.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	result, err := artifact.RunCommand(ctx, t.def.Dir, t.def.Command, timeout)
	if err != nil {
		return "", fmt.Errorf("tools: shell tool %q: %w", t.def.Name, err)
	}
	if result.TimedOut {
		return "", fmt.Errorf("tools: shell tool %q timed out after %s", t.def.Name, timeout)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("tools: shell tool %q exited %d: %s", t.def.Name, result.ExitCode, result.Stderr)
	}
	return result.Stdout, nil
}
