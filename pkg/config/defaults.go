package config

import "time"

// FlowDefaultsVersion is bumped whenever the default DAG shape in
// pkg/flow/templates changes. On read, templates with IsDefault && Version <
// FlowDefaultsVersion are regenerated, preserving id and name (§6, §8).
const FlowDefaultsVersion = 1

// DefaultPipelineDefaults returns the system-wide pipeline defaults used when a
// flow node doesn't override them.
func DefaultPipelineDefaults() PipelineDefaults {
	return PipelineDefaults{
		DefaultMaxOutputTokens: 4096,
		DefaultMaxToolSteps:    12,
		BuildTimeout:           3 * time.Minute,
		TestTimeout:            5 * time.Minute,
		MaxBuildFixAttempts:    3,
		MaxRemediationCycles:   2,
		MaxTestFailures:        10,
		MaxUniqueErrors:        8,
		PerChatCostLimit:       0,
		PerProjectCostLimit:    0,
		ProjectLockMode:        ProjectLockBlock,
	}
}

// DefaultPricing returns a small built-in pricing table for the providers the
// LLM Gateway ships with out of the box. Operators override via config.
func DefaultPricing() map[string]ProviderPricing {
	return map[string]ProviderPricing{
		"openai/gpt-4.1": {
			InputPerMillion:      2.00,
			OutputPerMillion:     8.00,
			CacheReadPerMillion:  0.50,
			CacheWritePerMillion: 2.50,
		},
		"openai/gpt-4.1-mini": {
			InputPerMillion:      0.40,
			OutputPerMillion:     1.60,
			CacheReadPerMillion:  0.10,
			CacheWritePerMillion: 0.50,
		},
		"mock/mock": {
			InputPerMillion:  0,
			OutputPerMillion: 0,
		},
	}
}
