package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
	"github.com/flowforge/orchestrator/pkg/llmgateway"
	"github.com/flowforge/orchestrator/pkg/metrics"
	"github.com/flowforge/orchestrator/pkg/perr"
)

// testScheduler builds a Scheduler with no store (every store-touching
// helper in run_context.go/agent_step.go guards on a nil store), wired just
// enough to drive dispatchLoop over plain version/action steps — this
// exercises §4.G's dispatch algorithm without needing a real LLM call.
func testScheduler(t *testing.T) *Scheduler {
	t.Helper()
	bus := events.NewBus(slog.Default())
	art := artifact.New(bus, slog.Default())
	gw := llmgateway.New(map[string]llmgateway.Provider{"mock": &llmgateway.MockProvider{}}, config.DefaultPricing())
	agents := NewAgentRegistry(DefaultAgents())
	cfg := &config.Config{Pipeline: config.DefaultPipelineDefaults()}
	return New(nil, bus, gw, agents, art, cfg, slog.Default(), metrics.New(), nil)
}

func versionStep(id string, deps ...string) resolver.PlanStep {
	return resolver.PlanStep{
		InstanceID: id,
		Kind:       resolver.StepAction,
		DependsOn:  deps,
		Action:     &resolver.ActionStep{Kind: flow.ActionVersion},
	}
}

func newTestRunContext(t *testing.T, sched *Scheduler, plan *resolver.ExecutionPlan) *runContext {
	t.Helper()
	rc := newRunContext(sched, "run-1", "chat-1", "project-1", t.TempDir(), "do it", false, plan)
	return rc
}

// Three independent version steps all dispatch and complete without any
// ordering dependency among them.
func TestDispatchLoop_RunsIndependentStepsToCompletion(t *testing.T) {
	sched := testScheduler(t)
	plan := &resolver.ExecutionPlan{Steps: []resolver.PlanStep{
		versionStep("a"),
		versionStep("b"),
		versionStep("c"),
	}}
	rc := newTestRunContext(t, sched, plan)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rc.dispatchLoop(ctx))

	for _, key := range []string{"a", "b", "c"} {
		require.True(t, rc.isDone(key))
	}
}

// A step never dispatches before its dependency has completed.
func TestDispatchLoop_HoldsStepUntilDependencyDone(t *testing.T) {
	sched := testScheduler(t)
	plan := &resolver.ExecutionPlan{Steps: []resolver.PlanStep{
		versionStep("first"),
		versionStep("second", "first"),
	}}
	rc := newTestRunContext(t, sched, plan)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rc.dispatchLoop(ctx))

	require.True(t, rc.isDone("first"))
	require.True(t, rc.isDone("second"))
}

// A checkpoint gate withholds its gated step's dispatch until
// ResolveCheckpoint delivers a choice; the gate's own waiter goroutine
// resolves immediately once that choice arrives.
func TestDispatchLoop_CheckpointGateWithholdsStepUntilResolved(t *testing.T) {
	sched := testScheduler(t)
	plan := &resolver.ExecutionPlan{
		Steps: []resolver.PlanStep{versionStep("gated")},
		Checkpoints: []resolver.CheckpointGate{
			{NodeID: "gate", Spec: flow.CheckpointSpec{CheckpointType: flow.CheckpointApprove, TimeoutMs: 60_000}, GatedSteps: []string{"gated"}},
		},
	}
	rc := newTestRunContext(t, sched, plan)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rc.dispatchLoop(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.False(t, rc.isDone("gated"), "gated step dispatched before the checkpoint resolved")

	require.Eventually(t, func() bool {
		return sched.ResolveCheckpoint(rc.chatID, "gate", "approve")
	}, time.Second, 10*time.Millisecond, "checkpoint waiter never registered")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatchLoop did not finish after checkpoint resolution")
	}
	require.True(t, rc.isDone("gated"))
}

// A checkpoint in YOLO mode with SkipInYolo resolves to "approve" without
// ever waiting on ResolveCheckpoint.
func TestDispatchLoop_CheckpointSkippedInYoloMode(t *testing.T) {
	sched := testScheduler(t)
	plan := &resolver.ExecutionPlan{
		Steps: []resolver.PlanStep{versionStep("gated")},
		Checkpoints: []resolver.CheckpointGate{
			{NodeID: "gate", Spec: flow.CheckpointSpec{CheckpointType: flow.CheckpointApprove, SkipInYolo: true}, GatedSteps: []string{"gated"}},
		},
	}
	rc := newRunContext(sched, "run-2", "chat-2", "project-1", t.TempDir(), "do it", true, plan)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rc.dispatchLoop(ctx))
	require.True(t, rc.isDone("gated"))
}

// Step-local failures (here: every version step's manifest build errors
// because the run's project root doesn't exist) mark each step
// done-but-failed without the dispatch loop aborting or hanging — only a
// *perr.CostLimitError is pipeline-terminal (§7's propagation policy,
// exercised end-to-end with a real budget breach in scheduler_test.go).
func TestDispatchLoop_StepLocalFailureDoesNotHaltPeers(t *testing.T) {
	sched := testScheduler(t)
	plan := &resolver.ExecutionPlan{Steps: []resolver.PlanStep{
		versionStep("broken"),
		versionStep("fine"),
	}}
	rc := newRunContext(sched, "run-3", "chat-3", "project-1", "/does/not/exist", "msg", false, plan)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rc.dispatchLoop(ctx))

	require.True(t, rc.isDone("broken"))
	require.True(t, rc.isDone("fine"))
}

// perr.Retryable holds for a TransientProviderError and not for a
// CostLimitError.
func TestPerr_CostLimitErrorNotRetryableUnlikeTransient(t *testing.T) {
	require.True(t, perr.Retryable(&perr.TransientProviderError{Cause: errors.New("boom")}))
	require.False(t, perr.Retryable(&perr.CostLimitError{Scope: "chat", Limit: 1, Spent: 2}))
}
