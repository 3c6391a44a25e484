// Package telemetry wires OpenTelemetry tracing around dispatched steps and
// LLM calls (ambient observability, carried regardless of which pipeline
// features a deployment enables). Grounded on kadirpekel-hector's
// pkg/observability/tracer.go: an OTLP/gRPC exporter behind a batching
// TracerProvider when enabled, a no-op TracerProvider otherwise, installed
// as the process-global tracer so any package can call otel.Tracer(name)
// without threading a provider through every constructor.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls whether tracing is enabled and where spans are exported.
type Config struct {
	Enabled      bool
	EndpointURL  string
	SamplingRate float64
	ServiceName  string
}

// Init installs the global TracerProvider. With tracing disabled it installs
// a no-op provider, so instrumented code pays no cost and never needs to
// check cfg.Enabled itself.
func Init(ctx context.Context, cfg Config) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.EndpointURL),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

const tracerName = "flowforge/orchestrator"

// Tracer returns the process-global tracer.
func Tracer() trace.Tracer { return otel.Tracer(tracerName) }

// StartStep opens a span for one dispatched plan step, tagged with the
// chat/step/agent identity every event payload already carries (§4.G) so a
// trace can be correlated with the matching WebSocket events by eye.
func StartStep(ctx context.Context, chatID, stepKey, agentName, kind string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pipeline.step",
		trace.WithAttributes(
			attribute.String("chat_id", chatID),
			attribute.String("step_key", stepKey),
			attribute.String("agent_name", agentName),
			attribute.String("step_kind", kind),
		),
	)
}

// StartLLMCall opens a span around one LLM Gateway invocation.
func StartLLMCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "llm.call",
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
		),
	)
}
