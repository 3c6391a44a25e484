package llmgateway

import (
	"context"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/llmgateway/tools"
	"github.com/flowforge/orchestrator/pkg/perr"
)

// RunOptions configures one Run call's side effects — the orchestrator
// wires these to agent_thinking/agent_status events and AgentExecution
// persistence rather than Run knowing about either.
type RunOptions struct {
	// OnTextDelta is called for each chunk of assistant text as it streams,
	// fanned out by the orchestrator as an agent_thinking event (§4.G).
	OnTextDelta func(delta string)
	// MaxToolSteps bounds how many tool calls this Run will execute before
	// giving up and returning the accumulated content as final (§3, §7).
	MaxToolSteps int
}

// RunResult is what a completed (or tool-step-exhausted) agent turn produced.
type RunResult struct {
	Content       string
	Usage         Usage
	ToolCallCount int
	// ToolCallNames/ToolCallArgs parallel each other, recording every
	// dispatched tool call in order — the "file-manifest" UpstreamSource
	// transform (§4.G) scrapes write_file/write_files paths out of this.
	ToolCallNames []string
	ToolCallArgs  []string
}

// Run drives the tool-calling loop for one agent step (§4.G, §9): stream a
// completion, parse embedded <tool_call> blocks as they arrive via
// ToolCallScanner, dispatch each through registry, append the tool's result
// as a RoleTool message, and re-stream — until the model emits no more tool
// calls or MaxToolSteps is exhausted.
func Run(ctx context.Context, gw *Gateway, registry *tools.Registry, req CompletionRequest, opts RunOptions) (*RunResult, error) {
	maxSteps := opts.MaxToolSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}

	result := &RunResult{}
	messages := append([]Message(nil), req.Messages...)

	for {
		turnReq := req
		turnReq.Messages = messages

		stream, err := gw.Stream(ctx, turnReq)
		if err != nil {
			return nil, err
		}

		scanner := NewToolCallScanner()
		var content string
		var pendingCalls []ToolCall
		var streamErr error

		for chunk := range stream {
			switch chunk.Kind {
			case ChunkText:
				text, calls, err := scanner.Feed(chunk.Text)
				if err != nil {
					streamErr = &perr.FatalProviderError{Cause: fmt.Errorf("llmgateway: malformed tool_call: %w", err)}
					continue
				}
				if text != "" {
					content += text
					if opts.OnTextDelta != nil {
						opts.OnTextDelta(text)
					}
				}
				pendingCalls = append(pendingCalls, calls...)

			case ChunkToolCall:
				pendingCalls = append(pendingCalls, ToolCall{
					ID: chunk.ToolCallID, Name: chunk.ToolName, ArgumentsJSON: chunk.ToolArgsJSON,
				})

			case ChunkUsage:
				result.Usage.InputTokens += chunk.Usage.InputTokens
				result.Usage.OutputTokens += chunk.Usage.OutputTokens
				result.Usage.CacheReadTokens += chunk.Usage.CacheReadTokens
				result.Usage.CacheWriteTokens += chunk.Usage.CacheWriteTokens

			case ChunkError:
				streamErr = chunk.Err
			}
		}

		if streamErr != nil {
			return nil, streamErr
		}

		if tail := scanner.Flush(); tail != "" {
			content += tail
			if opts.OnTextDelta != nil {
				opts.OnTextDelta(tail)
			}
		}

		result.Content = content

		if len(pendingCalls) == 0 || result.ToolCallCount >= maxSteps {
			return result, nil
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: content})
		for _, call := range pendingCalls {
			if result.ToolCallCount >= maxSteps {
				break
			}
			result.ToolCallCount++
			result.ToolCallNames = append(result.ToolCallNames, call.Name)
			result.ToolCallArgs = append(result.ToolCallArgs, call.ArgumentsJSON)

			toolResult, err := registry.Dispatch(ctx, call.Name, call.ArgumentsJSON)
			if err != nil {
				toolResult = fmt.Sprintf("error: %v", err)
			}
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    toolResult,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}
}
