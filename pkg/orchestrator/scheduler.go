// Package orchestrator implements §4.G's Orchestrator/Scheduler: given a
// chat's new user message, it classifies intent, resolves a flow template
// into a concrete ExecutionPlan, and drives that plan's steps to completion
// (or a checkpoint, or a budget-triggered interruption), publishing every
// state change onto the chat's event bus as it goes.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
	"github.com/flowforge/orchestrator/pkg/llmgateway"
	"github.com/flowforge/orchestrator/pkg/llmgateway/tools"
	"github.com/flowforge/orchestrator/pkg/metrics"
	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/flowforge/orchestrator/pkg/perr"
	"github.com/flowforge/orchestrator/pkg/store"
)

// Scheduler owns every shared resource a pipeline run needs and the
// bookkeeping that spans runs: per-chat cancellation and the checkpoint
// waiter registry. One Scheduler serves the whole process.
type Scheduler struct {
	store    *store.Store
	bus      *events.Bus
	gateway  *llmgateway.Gateway
	agents   *AgentRegistry
	artifact *artifact.Store
	cfg      *config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics

	customTools []tools.Tool

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	waitersMu sync.Mutex
	waiters   map[string]chan string // "chatID/checkpointID" -> delivery channel
}

// New builds a Scheduler. customTools are the operator-configured
// custom/MCP tools (§4.H, §6); they join every agent step's tool universe
// alongside the file-store tools, and a step reaches one only when its tool
// list (ToolOverrides, else the agent's Tools) names it.
func New(s *store.Store, bus *events.Bus, gw *llmgateway.Gateway, agents *AgentRegistry, art *artifact.Store, cfg *config.Config, log *slog.Logger, m *metrics.Metrics, customTools []tools.Tool) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store: s, bus: bus, gateway: gw, agents: agents, artifact: art, cfg: cfg, log: log, metrics: m,
		customTools: customTools,
		cancels:     map[string]context.CancelFunc{},
		waiters:     map[string]chan string{},
	}
}

// toolRegistry builds the per-step tool universe: the chat's file-store
// tools (always available per §4.H) plus every operator-configured custom
// tool. Agent/action steps further narrow this with Registry.Scoped.
func (s *Scheduler) toolRegistry(chatID, projectRoot string) *tools.Registry {
	all := append([]tools.Tool{}, tools.FileStoreTools(s.artifact, projectRoot, chatID)...)
	all = append(all, s.customTools...)
	return tools.NewRegistry(all...)
}

// RunRequest is the input to Run: a fresh orchestration for chatID's latest
// user message, or (Resume) a re-entry into the most recent interrupted run.
type RunRequest struct {
	ChatID  string
	Message string
	Resume  bool
}

// Run starts (or resumes) a pipeline for a chat and returns once the plan
// has been resolved and persisted — the actual step execution happens in a
// background goroutine, so a caller (typically an HTTP handler) can return
// the run id to the client immediately and let the WebSocket carry events.
func (s *Scheduler) Run(parentCtx context.Context, req RunRequest) (string, error) {
	chat, err := s.store.GetChat(parentCtx, req.ChatID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: get chat: %w", err)
	}
	project, err := s.store.GetProject(parentCtx, chat.ProjectID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: get project: %w", err)
	}

	s.stopLocked(req.ChatID)

	lock, err := s.store.AcquireProjectLock(parentCtx, project.ID, s.cfg.Pipeline.ProjectLockMode)
	if err != nil {
		return "", err
	}

	var rc *runContext
	if req.Resume {
		rc, err = s.prepareResume(parentCtx, chat, project)
	} else {
		rc, err = s.prepareFresh(parentCtx, chat, project, req.Message)
	}
	if err != nil {
		_ = lock.Release(parentCtx)
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[req.ChatID] = cancel
	s.mu.Unlock()

	go s.execute(ctx, rc, lock, cancel)

	return rc.runID, nil
}

// Stop cancels the in-flight orchestration for a chat, if any (§4.G, §6
// POST /agents/stop). The dispatch loop's ctx.Done() check unwinds the
// run to status=interrupted.
func (s *Scheduler) Stop(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[chatID]; ok {
		cancel()
		delete(s.cancels, chatID)
	}
}

func (s *Scheduler) stopLocked(chatID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[chatID]
	if ok {
		delete(s.cancels, chatID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// prepareFresh classifies intent, resolves a template into an ExecutionPlan,
// and persists the new pipeline_runs row (§4.G step-by-step for a brand new
// orchestration).
func (s *Scheduler) prepareFresh(ctx context.Context, chat *models.Chat, project *models.Project, userMessage string) (*runContext, error) {
	classification, err := s.classifyIntent(ctx, userMessage)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: classify intent: %w", err)
	}

	entries, err := s.artifact.ListFiles(project.Path)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list project files: %w", err)
	}

	rctx := resolver.ResolutionContext{
		Intent:       flow.Intent(classification.Intent),
		Scope:        flow.Scope(classification.Scope),
		NeedsBackend: classification.NeedsBackend,
		HasFiles:     len(entries) > 0,
		UserMessage:  userMessage,
	}

	template, err := loadActiveTemplate(ctx, s.store, rctx.Intent)
	if err != nil {
		return nil, err
	}
	plan := resolver.Resolve(template, rctx, s.log)

	run := &models.PipelineRun{
		ID:            uuid.New().String(),
		ChatID:        chat.ID,
		Intent:        string(rctx.Intent),
		Scope:         string(rctx.Scope),
		UserMessage:   userMessage,
		NeedsBackend:  rctx.NeedsBackend,
		HasFiles:      rctx.HasFiles,
		PlannedAgents: plan.AgentNames(),
		Status:        models.RunRunning,
		StartedAt:     time.Now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	s.bus.PublishPipelinePlan(events.PipelinePlanPayload{ChatID: chat.ID, Agents: run.PlannedAgents})

	rc := newRunContext(s, run.ID, chat.ID, project.ID, project.Path, userMessage, chat.YoloMode, plan)
	return rc, nil
}

// prepareResume reconstructs the prior run's ResolutionContext from its
// persisted fields, re-resolves the same template (§4.G step 1-2: "find the
// most recent interrupted run... re-resolve using its persisted inputs"),
// seeds completed steps' results from their AgentExecution rows, and flips
// the run back to running in place.
func (s *Scheduler) prepareResume(ctx context.Context, chat *models.Chat, project *models.Project) (*runContext, error) {
	run, err := s.store.GetLatestInterruptedRun(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("orchestrator: no interrupted run to resume for chat %s", chat.ID)
	}

	rctx := resolver.ResolutionContext{
		Intent:       flow.Intent(run.Intent),
		Scope:        flow.Scope(run.Scope),
		NeedsBackend: run.NeedsBackend,
		HasFiles:     run.HasFiles,
		UserMessage:  run.UserMessage,
	}
	template, err := loadActiveTemplate(ctx, s.store, rctx.Intent)
	if err != nil {
		return nil, err
	}
	plan := resolver.Resolve(template, rctx, s.log)

	rc := newRunContext(s, run.ID, chat.ID, project.ID, project.Path, run.UserMessage, chat.YoloMode, plan)

	executions, err := s.store.ListExecutionsByRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list executions for resume: %w", err)
	}
	for _, e := range executions {
		if e.Status != models.ExecutionComplete {
			continue
		}
		rc.seedResult(e.StepKey, e.Output.Content)
		rc.markDone(e.StepKey, false)
	}

	if err := s.store.ResumeRun(ctx, run.ID); err != nil {
		return nil, err
	}
	return rc, nil
}

// execute drives rc's dispatch loop to completion and finalizes the run's
// terminal status (§4.G).
func (s *Scheduler) execute(ctx context.Context, rc *runContext, lock *store.ProjectLock, cancel context.CancelFunc) {
	defer func() {
		_ = lock.Release(context.Background())
		s.mu.Lock()
		if s.cancels[rc.chatID] != nil {
			delete(s.cancels, rc.chatID)
		}
		s.mu.Unlock()
		cancel()
	}()

	s.metrics.RunStarted()
	err := rc.dispatchLoop(ctx)

	switch {
	case err == nil:
		s.finishRun(rc, models.RunCompleted)
	case ctx.Err() != nil:
		s.finishRun(rc, models.RunInterrupted)
	default:
		var costErr *perr.CostLimitError
		if errors.As(err, &costErr) {
			s.metrics.RecordBudgetBreach(costErr.Scope)
			s.bus.PublishPipelineInterrupted(events.PipelineInterruptedPayload{ChatID: rc.chatID, Reason: "cost_limit"})
			s.finishRun(rc, models.RunInterrupted)
		} else {
			s.finishRun(rc, models.RunFailed)
		}
	}
}

func (s *Scheduler) finishRun(rc *runContext, status models.RunStatus) {
	s.metrics.RunFinished(string(status))
	if err := s.store.FinishRun(context.Background(), rc.runID, status); err != nil {
		s.log.Error("orchestrator: finish run failed", "run", rc.runID, "status", status, "error", err)
	}
}

// registerCheckpointWaiter creates the delivery channel ResolveCheckpoint
// sends a chosen option into.
func (s *Scheduler) registerCheckpointWaiter(chatID, checkpointID string) <-chan string {
	ch := make(chan string, 1)
	s.waitersMu.Lock()
	s.waiters[waiterKey(chatID, checkpointID)] = ch
	s.waitersMu.Unlock()
	return ch
}

func (s *Scheduler) unregisterCheckpointWaiter(chatID, checkpointID string) {
	s.waitersMu.Lock()
	delete(s.waiters, waiterKey(chatID, checkpointID))
	s.waitersMu.Unlock()
}

// ResolveCheckpoint delivers an operator's choice to a waiting checkpoint
// (§6 POST /settings/checkpoints/resolve). Returns false if no checkpoint
// with that id is currently pending for the chat.
func (s *Scheduler) ResolveCheckpoint(chatID, checkpointID, choice string) bool {
	s.waitersMu.Lock()
	ch, ok := s.waiters[waiterKey(chatID, checkpointID)]
	s.waitersMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- choice:
		return true
	default:
		return false
	}
}

func waiterKey(chatID, checkpointID string) string { return chatID + "/" + checkpointID }

// intentClassification is the JSON shape the intent-classifier agent must
// return (see classifierSystemPrompt in agents.go).
type intentClassification struct {
	Intent       string `json:"intent"`
	Scope        string `json:"scope"`
	NeedsBackend bool   `json:"needsBackend"`
	Reasoning    string `json:"reasoning"`
}

// classifyIntent runs the intent-classifier agent once, tool-free, and
// parses its JSON verdict (§4.B).
func (s *Scheduler) classifyIntent(ctx context.Context, userMessage string) (*intentClassification, error) {
	def, err := s.agents.Get(AgentIntentClassifier)
	if err != nil {
		return nil, err
	}

	req := llmgateway.CompletionRequest{
		Provider:        def.Provider,
		Model:           def.Model,
		MaxOutputTokens: def.MaxOutputTokens,
		Messages: []llmgateway.Message{
			{Role: llmgateway.RoleSystem, Content: def.SystemPrompt},
			{Role: llmgateway.RoleUser, Content: userMessage},
		},
	}

	result, err := llmgateway.Run(ctx, s.gateway, tools.NewRegistry(), req, llmgateway.RunOptions{MaxToolSteps: 1})
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(result.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var c intentClassification
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &c); err != nil {
		return nil, fmt.Errorf("orchestrator: parse intent classification: %w", err)
	}
	if c.Intent == "" {
		return nil, fmt.Errorf("orchestrator: intent classifier returned no intent")
	}
	return &c, nil
}
