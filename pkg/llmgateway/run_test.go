package llmgateway_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/llmgateway"
	"github.com/flowforge/orchestrator/pkg/llmgateway/tools"
)

type echoTool struct{ calls int }

func (e *echoTool) Name() string { return "echo" }
func (e *echoTool) Call(ctx context.Context, argsJSON string) (string, error) {
	e.calls++
	return "echoed:" + argsJSON, nil
}

func TestRun_NoToolCalls(t *testing.T) {
	mock := &llmgateway.MockProvider{Responses: []llmgateway.MockResponse{
		{TextDeltas: []string{"hello ", "world"}, Usage: llmgateway.Usage{InputTokens: 5, OutputTokens: 2}},
	}}
	gw := llmgateway.New(map[string]llmgateway.Provider{"mock": mock}, nil)
	registry := tools.NewRegistry()

	var deltas []string
	result, err := llmgateway.Run(context.Background(), gw, registry, llmgateway.CompletionRequest{
		Provider: "mock",
		Messages: []llmgateway.Message{{Role: llmgateway.RoleUser, Content: "hi"}},
	}, llmgateway.RunOptions{
		OnTextDelta:  func(d string) { deltas = append(deltas, d) },
		MaxToolSteps: 4,
	})

	require.NoError(t, err)
	require.Equal(t, "hello world", result.Content)
	require.Equal(t, 7, result.Usage.Total())
	require.Zero(t, result.ToolCallCount)
	require.Equal(t, []string{"hello ", "world"}, deltas)
}

func TestRun_DispatchesToolCallThenCompletes(t *testing.T) {
	tool := &echoTool{}
	mock := &llmgateway.MockProvider{Responses: []llmgateway.MockResponse{
		{TextDeltas: []string{`<tool_call>{"id":"1","name":"echo","arguments":{"x":1}}</tool_call>`}, Usage: llmgateway.Usage{InputTokens: 3}},
		{TextDeltas: []string{"done"}, Usage: llmgateway.Usage{OutputTokens: 1}},
	}}
	gw := llmgateway.New(map[string]llmgateway.Provider{"mock": mock}, nil)
	registry := tools.NewRegistry(tool)

	result, err := llmgateway.Run(context.Background(), gw, registry, llmgateway.CompletionRequest{
		Provider: "mock",
		Messages: []llmgateway.Message{{Role: llmgateway.RoleUser, Content: "hi"}},
	}, llmgateway.RunOptions{MaxToolSteps: 4})

	require.NoError(t, err)
	require.Equal(t, "done", result.Content)
	require.Equal(t, 1, result.ToolCallCount)
	require.Equal(t, 1, tool.calls)
	require.Equal(t, []string{"echo"}, result.ToolCallNames)
}

func TestRun_StopsAtMaxToolSteps(t *testing.T) {
	tool := &echoTool{}
	call := `<tool_call>{"id":"1","name":"echo","arguments":{}}</tool_call>`
	mock := &llmgateway.MockProvider{Responses: []llmgateway.MockResponse{
		{TextDeltas: []string{call}},
	}}
	gw := llmgateway.New(map[string]llmgateway.Provider{"mock": mock}, nil)
	registry := tools.NewRegistry(tool)

	result, err := llmgateway.Run(context.Background(), gw, registry, llmgateway.CompletionRequest{
		Provider: "mock",
		Messages: []llmgateway.Message{{Role: llmgateway.RoleUser, Content: "hi"}},
	}, llmgateway.RunOptions{MaxToolSteps: 1})

	require.NoError(t, err)
	require.Equal(t, 1, result.ToolCallCount)
}
