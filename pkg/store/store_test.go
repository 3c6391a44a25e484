package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/flowforge/orchestrator/pkg/store"
	"github.com/flowforge/orchestrator/test/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newProject(t *testing.T, s *store.Store) *models.Project {
	t.Helper()
	ctx := context.Background()
	p := &models.Project{
		ID:        uuid.NewString(),
		Name:      "demo",
		Path:      "/work/demo",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateProject(ctx, p))
	return p
}

func newChat(t *testing.T, s *store.Store, projectID string) *models.Chat {
	t.Helper()
	ctx := context.Background()
	c := &models.Chat{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Title:     "untitled",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateChat(ctx, c))
	return c
}

func TestStore_ProjectCascade(t *testing.T) {
	s := util.NewTestStore(t)
	ctx := context.Background()

	p := newProject(t, s)
	c := newChat(t, s, p.ID)

	require.NoError(t, s.DeleteProject(ctx, p.ID))

	_, err := s.GetChat(ctx, c.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_VibeBriefRoundTrip(t *testing.T) {
	s := util.NewTestStore(t)
	ctx := context.Background()

	p := newProject(t, s)
	brief := &models.VibeBrief{
		Adjectives:     []string{"playful", "bold"},
		Metaphor:       "a skate park",
		TargetUser:     "teen hobbyists",
		AntiReferences: []string{"corporate SaaS"},
	}
	require.NoError(t, s.SetVibeBrief(ctx, p.ID, brief))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, brief, got.VibeBrief)
}

func TestStore_OnlyOneRunningPipelinePerChat(t *testing.T) {
	s := util.NewTestStore(t)
	ctx := context.Background()

	p := newProject(t, s)
	c := newChat(t, s, p.ID)

	run1 := &models.PipelineRun{
		ID: uuid.NewString(), ChatID: c.ID, Intent: "build", UserMessage: "build a page",
		Status: models.RunRunning, StartedAt: time.Now(),
	}
	require.NoError(t, s.CreateRun(ctx, run1))

	run2 := &models.PipelineRun{
		ID: uuid.NewString(), ChatID: c.ID, Intent: "fix", UserMessage: "fix a bug",
		Status: models.RunRunning, StartedAt: time.Now(),
	}
	err := s.CreateRun(ctx, run2)
	require.ErrorIs(t, err, store.ErrAlreadyRunning)

	require.NoError(t, s.FinishRun(ctx, run1.ID, models.RunCompleted))

	// Now that run1 is terminal, a second running row for the same chat is allowed.
	require.NoError(t, s.CreateRun(ctx, run2))
}

func TestStore_ResumeRebuildsExecutionsInOrder(t *testing.T) {
	s := util.NewTestStore(t)
	ctx := context.Background()

	p := newProject(t, s)
	c := newChat(t, s, p.ID)
	run := &models.PipelineRun{
		ID: uuid.NewString(), ChatID: c.ID, Intent: "build", UserMessage: "x",
		Status: models.RunRunning, StartedAt: time.Now(),
	}
	require.NoError(t, s.CreateRun(ctx, run))

	for i, step := range []string{"research", "architect", "frontend-dev"} {
		exec := &models.AgentExecution{
			ID: uuid.NewString(), ChatID: c.ID, StepKey: step, AgentName: step,
			Status:    models.ExecutionRunning,
			StartedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, s.CreateExecution(ctx, run.ID, exec))
		require.NoError(t, s.CompleteExecution(ctx, exec.ID, models.ExecutionOutput{Content: step + " output"}, "", models.ExecutionComplete))
	}

	execs, err := s.ListExecutionsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	require.Equal(t, "research", execs[0].StepKey)
	require.Equal(t, "architect", execs[1].StepKey)
	require.Equal(t, "frontend-dev", execs[2].StepKey)
	for _, e := range execs {
		require.Equal(t, models.ExecutionComplete, e.Status)
		require.NotEmpty(t, e.Output.Content)
	}
}

func TestStore_InterruptAllRunning(t *testing.T) {
	s := util.NewTestStore(t)
	ctx := context.Background()

	p := newProject(t, s)
	c := newChat(t, s, p.ID)
	run := &models.PipelineRun{
		ID: uuid.NewString(), ChatID: c.ID, Intent: "build", UserMessage: "x",
		Status: models.RunRunning, StartedAt: time.Now(),
	}
	require.NoError(t, s.CreateRun(ctx, run))

	n, err := s.InterruptAllRunning(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunInterrupted, got.Status)
}

func TestStore_TokenUsageCostTotals(t *testing.T) {
	s := util.NewTestStore(t)
	ctx := context.Background()

	p := newProject(t, s)
	c := newChat(t, s, p.ID)
	run := &models.PipelineRun{ID: uuid.NewString(), ChatID: c.ID, Intent: "build", UserMessage: "x", Status: models.RunRunning, StartedAt: time.Now()}
	require.NoError(t, s.CreateRun(ctx, run))
	exec := &models.AgentExecution{ID: uuid.NewString(), ChatID: c.ID, StepKey: "architect", AgentName: "architect", Status: models.ExecutionRunning, StartedAt: time.Now()}
	require.NoError(t, s.CreateExecution(ctx, run.ID, exec))

	require.NoError(t, s.RecordTokenUsage(ctx, &models.TokenUsage{
		ID: uuid.NewString(), ExecutionID: exec.ID, ChatID: c.ID, AgentName: "architect",
		Provider: "openai", Model: "gpt-4.1", TotalTokens: 1000, CostEstimate: 0.02, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.RecordTokenUsage(ctx, &models.TokenUsage{
		ID: uuid.NewString(), ExecutionID: exec.ID, ChatID: c.ID, AgentName: "architect",
		Provider: "openai", Model: "gpt-4.1", TotalTokens: 500, CostEstimate: 0.01, CreatedAt: time.Now(),
	}))

	chatTotal, err := s.ChatCostTotal(ctx, c.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.03, chatTotal, 0.0001)

	projTotal, err := s.ProjectCostTotal(ctx, p.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.03, projTotal, 0.0001)
}

func TestStore_SettingsPrefixScan(t *testing.T) {
	s := util.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSetting(ctx, "flow.template.build-default", `{"id":"build-default"}`))
	require.NoError(t, s.PutSetting(ctx, "flow.template.fix-default", `{"id":"fix-default"}`))
	require.NoError(t, s.PutSetting(ctx, "flow.active.build", "build-default"))

	templates, err := s.ListSettingsByPrefix(ctx, "flow.template.")
	require.NoError(t, err)
	require.Len(t, templates, 2)

	require.NoError(t, s.PutSetting(ctx, "flow.template.build-default", `{"id":"build-default","version":2}`))
	got, err := s.GetSetting(ctx, "flow.template.build-default")
	require.NoError(t, err)
	require.Contains(t, got, "version")
}

func TestStore_ProjectLockFailFast(t *testing.T) {
	s := util.NewTestStore(t)
	ctx := context.Background()
	p := newProject(t, s)

	lock1, err := s.AcquireProjectLock(ctx, p.ID, config.ProjectLockFailFast)
	require.NoError(t, err)

	_, err = s.AcquireProjectLock(ctx, p.ID, config.ProjectLockFailFast)
	require.ErrorIs(t, err, store.ErrProjectLocked)

	require.NoError(t, lock1.Release(ctx))

	lock2, err := s.AcquireProjectLock(ctx, p.ID, config.ProjectLockFailFast)
	require.NoError(t, err)
	require.NoError(t, lock2.Release(ctx))
}
