// Command server is the orchestrator process entrypoint: it loads config,
// opens the Persistence Gateway, wires the Event Bus, LLM Gateway, Artifact
// Store, and Scheduler, then serves the HTTP/WebSocket edge. Mirrors the
// teacher's cmd/tarsy/main.go bootstrap shape (flag-based config dir,
// godotenv, construct-then-serve), generalized from TARSy's per-aggregate
// service construction to this system's smaller, orchestrator-centric
// component set.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/flowforge/orchestrator/pkg/api"
	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/llmgateway"
	"github.com/flowforge/orchestrator/pkg/llmgateway/tools"
	"github.com/flowforge/orchestrator/pkg/metrics"
	"github.com/flowforge/orchestrator/pkg/orchestrator"
	"github.com/flowforge/orchestrator/pkg/store"
	"github.com/flowforge/orchestrator/pkg/telemetry"
)

func main() {
	envFile := flag.String("env-file", os.Getenv("ENV_FILE"), "path to a .env file to load before reading config (optional)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Warn("server: no .env file loaded", "path", *envFile, "error", err)
		}
	}

	if err := run(log); err != nil {
		log.Error("server: fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		EndpointURL:  cfg.Telemetry.EndpointURL,
		SamplingRate: cfg.Telemetry.SamplingRate,
		ServiceName:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	if shutdowner, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdowner.Shutdown(shutdownCtx); err != nil {
				log.Warn("server: tracer provider shutdown failed", "error", err)
			}
		}()
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	// A crash or kill -9 leaves running rows behind; every fresh start
	// interrupts them so a chat's next /agents/run resumes cleanly instead
	// of believing a pipeline is still in flight (§4.G resume protocol).
	if n, err := db.InterruptAllRunning(ctx); err != nil {
		log.Warn("server: interrupt stale running runs failed", "error", err)
	} else if n > 0 {
		log.Info("server: interrupted stale running runs", "count", n)
	}

	bus := events.NewBus(log)
	art := artifact.New(bus, log)
	m := metrics.New()

	gateway := llmgateway.New(buildProviders(), cfg.Pricing)
	agents := orchestrator.NewAgentRegistry(orchestrator.DefaultAgents())

	sched := orchestrator.New(db, bus, gateway, agents, art, cfg, log, m, customTools())

	srv := api.New(db, bus, sched, art, agents, m, log)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server: listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server: shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildProviders constructs the LLM Gateway's provider registry. OPENAI_API_KEY
// unset means no live provider is wired — the gateway still serves requests
// routed to "mock" (pkg/llmgateway/mock.go), which pipeline tests and a
// keyless dev run both depend on.
func buildProviders() map[string]llmgateway.Provider {
	providers := map[string]llmgateway.Provider{
		"mock": &llmgateway.MockProvider{},
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers["openai"] = llmgateway.NewOpenAIProvider(key, os.Getenv("OPENAI_BASE_URL"))
	}
	return providers
}

// customTools returns the additional tool set every agent step's tool registry
// is extended with, beyond the per-chat file-store tools pkg/orchestrator
// already wires in per step (§4.F). None are required by default; operators
// add MCP- or script-backed tools here as the deployment grows.
func customTools() []tools.Tool {
	return nil
}
