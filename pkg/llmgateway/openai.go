package llmgateway

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flowforge/orchestrator/pkg/perr"
)

// OpenAIProvider implements Provider against any OpenAI-compatible chat
// completions endpoint, grounded in the pack's Jint8888-Pocket-Omega
// internal/llm/openai.Client — generalized from that client's callback-based
// CallLLMStream into the gateway's channel-based Chunk stream.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider builds a provider against apiKey, optionally pointed at
// baseURL (empty uses the public OpenAI API).
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

// Stream implements Provider.
func (p *OpenAIProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan Chunk, error) {
	oreq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Tools:       toOpenAITools(req.Tools),
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, &perr.TransientProviderError{Cause: err}
	}

	ch := make(chan Chunk, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		var usage Usage
		toolArgs := map[string]*openai.ToolCall{} // accumulates fragmented tool_call deltas by index key

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				select {
				case ch <- Chunk{Kind: ChunkError, Err: &perr.TransientProviderError{Cause: err}}:
				case <-ctx.Done():
				}
				return
			}
			if resp.Usage != nil {
				usage = Usage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				select {
				case ch <- Chunk{Kind: ChunkText, Text: delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				accumulateToolCall(toolArgs, tc)
			}
		}

		for _, tc := range toolArgs {
			select {
			case ch <- Chunk{Kind: ChunkToolCall, ToolCallID: tc.ID, ToolName: tc.Function.Name, ToolArgsJSON: tc.Function.Arguments}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case ch <- Chunk{Kind: ChunkUsage, Usage: usage}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// accumulateToolCall folds one streamed tool-call delta into the
// in-progress accumulator, keyed by index the way OpenAI's Function Calling
// streaming protocol fragments a single call's name/arguments across chunks.
func accumulateToolCall(acc map[string]*openai.ToolCall, delta openai.ToolCall) {
	key := fmt.Sprintf("%d", derefInt(delta.Index))
	cur, ok := acc[key]
	if !ok {
		cur = &openai.ToolCall{ID: delta.ID, Type: delta.Type}
		acc[key] = cur
	}
	if delta.ID != "" {
		cur.ID = delta.ID
	}
	if delta.Function.Name != "" {
		cur.Function.Name = delta.Function.Name
	}
	cur.Function.Arguments += delta.Function.Arguments
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}
