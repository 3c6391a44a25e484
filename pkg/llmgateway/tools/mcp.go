package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpsdk "github.com/mark3labs/mcp-go/mcp"
)

// MCPServerConfig describes one MCP server a custom tool dispatches
// against, grounded in the pack's Jint8888-Pocket-Omega internal/mcp
// ServerConfig/Client (stdio transport only here — the gateway's tool
// kinds are operator-configured at flow-template save time, not discovered
// at runtime, so SSE's extra handshake isn't exercised by any SPEC_FULL
// component).
type MCPServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     []string
}

// mcpTool dispatches one named tool on a connected MCP server.
type mcpTool struct {
	name     string
	toolName string
	client   mcpclient.MCPClient
}

// NewMCPTool connects to cfg and returns a Tool that calls toolName on that
// server, exposed to the agent under localName.
func NewMCPTool(ctx context.Context, cfg MCPServerConfig, localName, toolName string) (Tool, error) {
	cli, err := mcpclient.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("tools: start mcp server %q: %w", cfg.Name, err)
	}

	_, err = cli.Initialize(ctx, mcpsdk.InitializeRequest{
		Params: mcpsdk.InitializeParams{
			ProtocolVersion: mcpsdk.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcpsdk.Implementation{
				Name:    "flowforge-orchestrator",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("tools: initialize mcp server %q: %w", cfg.Name, err)
	}

	return &mcpTool{name: localName, toolName: toolName, client: cli}, nil
}

func (t *mcpTool) Name() string { return t.name }

func (t *mcpTool) Call(ctx context.Context, argsJSON string) (string, error) {
	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("tools: invalid arguments for mcp tool %q: %w", t.name, err)
		}
	}

	req := mcpsdk.CallToolRequest{}
	req.Params.Name = t.toolName
	req.Params.Arguments = args

	result, err := t.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tools: mcp call %q: %w", t.name, err)
	}

	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return "", fmt.Errorf("tools: mcp tool %q returned error: %s", t.name, text)
	}
	return text, nil
}

// Close releases the underlying MCP server connection.
func (t *mcpTool) Close() error { return t.client.Close() }
