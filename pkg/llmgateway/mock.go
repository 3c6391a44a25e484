package llmgateway

import "context"

// MockResponse is one scripted reply a MockProvider returns for a call.
type MockResponse struct {
	TextDeltas []string // sent as successive ChunkText chunks
	Usage      Usage
	Err        error // if set, sent as a single ChunkError and the stream ends
}

// MockProvider is a scripted Provider used in orchestrator and action tests
// (§8) so a pipeline run never needs a live API key to exercise the
// dispatch loop, retries, or budget enforcement.
type MockProvider struct {
	Responses []MockResponse
	calls     int
}

// Stream returns the next scripted response, cycling back to the first once
// exhausted so a long-running test doesn't need one entry per call.
func (m *MockProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan Chunk, error) {
	if len(m.Responses) == 0 {
		m.Responses = []MockResponse{{TextDeltas: []string{"ok"}, Usage: Usage{InputTokens: 10, OutputTokens: 2}}}
	}
	resp := m.Responses[m.calls%len(m.Responses)]
	m.calls++

	ch := make(chan Chunk, len(resp.TextDeltas)+1)
	go func() {
		defer close(ch)
		if resp.Err != nil {
			select {
			case ch <- Chunk{Kind: ChunkError, Err: resp.Err}:
			case <-ctx.Done():
			}
			return
		}
		for _, d := range resp.TextDeltas {
			select {
			case ch <- Chunk{Kind: ChunkText, Text: d}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- Chunk{Kind: ChunkUsage, Usage: resp.Usage}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
