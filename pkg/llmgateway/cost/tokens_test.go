package cost_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/llmgateway/cost"
)

func TestCountTokens_NonEmptyTextHasPositiveCount(t *testing.T) {
	n := cost.CountTokens("gpt-4.1", "hello, this is a test prompt")
	require.Greater(t, n, 0)
}

func TestCountTokens_UnknownModelFallsBackToCl100k(t *testing.T) {
	n := cost.CountTokens("some-unreleased-model-xyz", "hello world")
	require.Greater(t, n, 0)
}

func TestCountMessages_IncludesFramingOverhead(t *testing.T) {
	single := cost.CountTokens("gpt-4.1", "hi")
	messages := cost.CountMessages("gpt-4.1", [][2]string{{"user", "hi"}})
	require.Greater(t, messages, single)
}
