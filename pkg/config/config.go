// Package config loads and validates the orchestrator's runtime configuration:
// listener port, database location, per-provider pricing tables, and the pipeline
// defaults that bound agent/action execution (§6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the top-level runtime configuration for the orchestrator process.
type Config struct {
	Port        int
	DatabaseURL string

	Pipeline  PipelineDefaults
	Pricing   map[string]ProviderPricing // keyed by "provider/model"
	Telemetry TelemetryConfig

	FlowDefaultsVersion int
}

// TelemetryConfig controls the OTLP trace exporter (pkg/telemetry). Tracing
// is ambient observability, carried regardless of which pipeline features a
// deployment enables — disabled by default so a bare `go run` never blocks
// on a missing collector.
type TelemetryConfig struct {
	Enabled      bool
	EndpointURL  string
	SamplingRate float64
	ServiceName  string
}

// PipelineDefaults holds the knobs §6 calls out as the environment/config surface.
type PipelineDefaults struct {
	DefaultMaxOutputTokens int
	DefaultMaxToolSteps    int
	BuildTimeout           time.Duration
	TestTimeout            time.Duration
	MaxBuildFixAttempts    int
	MaxRemediationCycles   int
	MaxTestFailures        int
	MaxUniqueErrors        int

	// PerChatCostLimit and PerProjectCostLimit are USD ceilings; zero disables the check.
	PerChatCostLimit    float64
	PerProjectCostLimit float64

	// ProjectLockMode controls behavior when a second chat on the same project
	// tries to start a pipeline while one is already running there.
	ProjectLockMode ProjectLockMode
}

// ProviderPricing is a per-million-token price table entry used for cost estimation.
type ProviderPricing struct {
	InputPerMillion      float64
	OutputPerMillion     float64
	CacheReadPerMillion  float64
	CacheWritePerMillion float64
}

// ProjectLockMode controls the advisory per-project lock behavior (§5).
type ProjectLockMode string

const (
	ProjectLockBlock    ProjectLockMode = "block"
	ProjectLockFailFast ProjectLockMode = "fail_fast"
)

// Load builds a Config from the process environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        envInt("PORT", 8080),
		DatabaseURL: envString("DATABASE_URL", "postgres://localhost:5432/orchestrator?sslmode=disable"),
		Pipeline:    DefaultPipelineDefaults(),
		Pricing:     DefaultPricing(),
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			EndpointURL:  envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SamplingRate: envFloat("OTEL_SAMPLING_RATE", 0.1),
			ServiceName:  envString("OTEL_SERVICE_NAME", "orchestrator"),
		},

		FlowDefaultsVersion: FlowDefaultsVersion,
	}

	cfg.Pipeline.PerChatCostLimit = envFloat("PER_CHAT_COST_LIMIT_USD", cfg.Pipeline.PerChatCostLimit)
	cfg.Pipeline.PerProjectCostLimit = envFloat("PER_PROJECT_COST_LIMIT_USD", cfg.Pipeline.PerProjectCostLimit)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are sane. Failures here are fatal at
// process startup, never surfaced to a running pipeline.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidValue, c.Port)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: database url", ErrMissingRequiredField)
	}
	if c.Pipeline.DefaultMaxOutputTokens <= 0 {
		return fmt.Errorf("%w: default max output tokens", ErrInvalidValue)
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
