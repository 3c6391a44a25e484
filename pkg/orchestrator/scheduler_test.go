package orchestrator_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/llmgateway"
	"github.com/flowforge/orchestrator/pkg/metrics"
	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/flowforge/orchestrator/pkg/orchestrator"
	"github.com/flowforge/orchestrator/pkg/store"
	"github.com/flowforge/orchestrator/test/util"
)

// questionClassification is the intent-classifier's scripted verdict for
// every test in this file: a "question" pipeline needs only two LLM calls
// (classify, then the "question" agent step) plus one more for the
// single-call "answer" action, so three scripted MockResponses cover a
// full run.
const questionClassification = `{"intent":"question","scope":"full","needsBackend":false,"reasoning":"test"}`

func newSchedulerHarness(t *testing.T, responses []llmgateway.MockResponse, pricing map[string]config.ProviderPricing, cfg *config.Config) (*orchestrator.Scheduler, *store.Store) {
	t.Helper()
	s := util.NewTestStore(t)
	bus := events.NewBus(slog.Default())
	art := artifact.New(bus, slog.Default())
	if pricing == nil {
		pricing = config.DefaultPricing()
	}
	gw := llmgateway.New(map[string]llmgateway.Provider{"openai": &llmgateway.MockProvider{Responses: responses}}, pricing)
	agents := orchestrator.NewAgentRegistry(orchestrator.DefaultAgents())
	if cfg == nil {
		cfg = &config.Config{Pipeline: config.DefaultPipelineDefaults()}
	}
	m := metrics.New()
	sched := orchestrator.New(s, bus, gw, agents, art, cfg, slog.Default(), m, nil)
	return sched, s
}

func createProjectAndChat(t *testing.T, s *store.Store) (*models.Project, *models.Chat) {
	t.Helper()
	ctx := context.Background()
	project := &models.Project{ID: uuid.New().String(), Name: "demo", Path: t.TempDir(), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreateProject(ctx, project))
	chat := &models.Chat{ID: uuid.New().String(), ProjectID: project.ID, Title: "chat", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreateChat(ctx, chat))
	return project, chat
}

func awaitRunStatus(t *testing.T, s *store.Store, runID string, want models.RunStatus) *models.PipelineRun {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := s.GetRun(ctx, runID)
		require.NoError(t, err)
		if run.Status == want {
			return run
		}
		if run.Status != models.RunRunning {
			t.Fatalf("run reached unexpected terminal status %s (wanted %s)", run.Status, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run did not reach status %s within the deadline", want)
	return nil
}

// A fresh run resolves the default Question template, dispatches both of
// its steps, and finishes completed (§4.G's happy path end to end, against
// a real Postgres-backed store).
func TestScheduler_Run_QuestionPipelineCompletes(t *testing.T) {
	sched, s := newSchedulerHarness(t, []llmgateway.MockResponse{
		{TextDeltas: []string{questionClassification}},
		{TextDeltas: []string{"here is your answer"}},
		{TextDeltas: []string{"here is your answer"}},
	}, nil, nil)
	_, chat := createProjectAndChat(t, s)

	runID, err := sched.Run(context.Background(), orchestrator.RunRequest{ChatID: chat.ID, Message: "what does this project do?"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run := awaitRunStatus(t, s, runID, models.RunCompleted)
	require.Equal(t, "question", run.Intent)
	require.Contains(t, run.PlannedAgents, "question")

	executions, err := s.ListExecutionsByRun(context.Background(), runID)
	require.NoError(t, err)
	// "question" gets one execution row; the "answer" action gets its own
	// plus a second ad-hoc row for the single LLM call it makes through
	// RunAgent (pkg/actions/single_call.go's runSingleCall) — three total.
	require.Len(t, executions, 3)
	for _, e := range executions {
		require.Equal(t, models.ExecutionComplete, e.Status)
	}
}

// Breaching the per-chat cost limit mid-run stops the pipeline and leaves
// it interrupted rather than completed or failed (§4.G "Budget enforcement"
// is pipeline-terminal, never a step-local failure).
func TestScheduler_Run_CostLimitInterruptsPipeline(t *testing.T) {
	pricing := map[string]config.ProviderPricing{
		"openai/gpt-4o-mini": {OutputPerMillion: 1_000_000_000},
	}
	cfg := &config.Config{Pipeline: config.DefaultPipelineDefaults()}
	cfg.Pipeline.PerChatCostLimit = 0.0001

	sched, s := newSchedulerHarness(t, []llmgateway.MockResponse{
		{TextDeltas: []string{questionClassification}},
		{TextDeltas: []string{"here is your answer"}, Usage: llmgateway.Usage{OutputTokens: 1000}},
	}, pricing, cfg)
	_, chat := createProjectAndChat(t, s)

	runID, err := sched.Run(context.Background(), orchestrator.RunRequest{ChatID: chat.ID, Message: "what does this project do?"})
	require.NoError(t, err)

	awaitRunStatus(t, s, runID, models.RunInterrupted)
}

// Resume reconstructs an interrupted run's ResolutionContext, re-resolves
// the same template, seeds results for steps whose execution already
// completed, and only dispatches what's left (§4.G resume protocol).
func TestScheduler_Run_ResumeSkipsCompletedSteps(t *testing.T) {
	sched, s := newSchedulerHarness(t, []llmgateway.MockResponse{
		{TextDeltas: []string{"here is your answer"}},
	}, nil, nil)
	ctx := context.Background()
	_, chat := createProjectAndChat(t, s)

	run := &models.PipelineRun{
		ID:            uuid.New().String(),
		ChatID:        chat.ID,
		Intent:        "question",
		Scope:         "full",
		UserMessage:   "what does this project do?",
		PlannedAgents: []string{"question", "answer"},
		Status:        models.RunInterrupted,
		StartedAt:     time.Now(),
	}
	require.NoError(t, s.CreateRun(ctx, run))

	completedExec := &models.AgentExecution{
		ID:        uuid.New().String(),
		ChatID:    chat.ID,
		StepKey:   "question",
		AgentName: "question",
		Status:    models.ExecutionRunning,
		Input:     models.ExecutionInput{Prompt: "what does this project do?"},
		StartedAt: time.Now(),
	}
	require.NoError(t, s.CreateExecution(ctx, run.ID, completedExec))
	require.NoError(t, s.CompleteExecution(ctx, completedExec.ID, models.ExecutionOutput{Content: "already answered"}, "", models.ExecutionComplete))

	runID, err := sched.Run(ctx, orchestrator.RunRequest{ChatID: chat.ID, Resume: true})
	require.NoError(t, err)
	require.Equal(t, run.ID, runID)

	awaitRunStatus(t, s, runID, models.RunCompleted)

	executions, err := s.ListExecutionsByRun(ctx, runID)
	require.NoError(t, err)
	// "question" is never re-dispatched: its one row is the pre-existing
	// completed execution, seeded rather than re-run. "answer" dispatches
	// fresh, producing its own row plus the ad-hoc row its single LLM call
	// creates (see the non-resume test above) — three rows total.
	require.Len(t, executions, 3)
	questionExecs, answerExecs := 0, 0
	for _, e := range executions {
		switch e.StepKey {
		case "question":
			questionExecs++
			require.Equal(t, completedExec.ID, e.ID)
		case "answer":
			answerExecs++
		}
	}
	require.Equal(t, 1, questionExecs)
	require.Equal(t, 1, answerExecs)
}
