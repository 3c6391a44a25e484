package llmgateway_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/llmgateway"
)

func TestGateway_StreamUnknownProviderErrors(t *testing.T) {
	gw := llmgateway.New(map[string]llmgateway.Provider{}, nil)
	_, err := gw.Stream(context.Background(), llmgateway.CompletionRequest{Provider: "nope"})
	require.Error(t, err)
}

func TestGateway_EstimateCost(t *testing.T) {
	pricing := map[string]config.ProviderPricing{
		"openai/gpt-4.1": {InputPerMillion: 2.0, OutputPerMillion: 8.0},
	}
	gw := llmgateway.New(nil, pricing)

	cost := gw.EstimateCost("openai", "gpt-4.1", llmgateway.Usage{InputTokens: 1_000_000, OutputTokens: 500_000})
	require.InDelta(t, 2.0+4.0, cost, 0.0001)
}

func TestGateway_EstimateCostUnknownModelIsZero(t *testing.T) {
	gw := llmgateway.New(nil, map[string]config.ProviderPricing{})
	cost := gw.EstimateCost("openai", "unknown-model", llmgateway.Usage{InputTokens: 100})
	require.Zero(t, cost)
}
