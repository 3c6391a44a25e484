package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/orchestrator/pkg/actions"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
	"github.com/flowforge/orchestrator/pkg/llmgateway"
	"github.com/flowforge/orchestrator/pkg/llmgateway/tools"
	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/flowforge/orchestrator/pkg/perr"
	"github.com/flowforge/orchestrator/pkg/telemetry"
)

// fileStoreToolNames are always available to an agent step regardless of
// its ToolOverrides (§4.G: "plus the always-available file-store tools").
var fileStoreToolNames = []string{"write_file", "write_files", "read_file", "list_files", "save_version"}

// runAgentStep executes one resolved agent plan step (§4.G "Per-step
// execution: Agent step"): assemble the prompt, stream the LLM call with
// tool-call dispatch, persist the execution, update agentResults, and check
// the cost budget. Returns a terminal error only when the pipeline itself
// must stop (budget breach); step-local failures are recorded on the
// execution row and returned as nil so the dispatch loop treats the step as
// "done" (failed) and continues with peers, per §7's propagation policy.
func (rc *runContext) runAgentStep(ctx context.Context, step resolver.PlanStep) error {
	agentStep := step.Agent
	stepKey := step.StepKey()

	def, err := rc.sched.agents.Get(agentStep.AgentName)
	if err != nil {
		rc.recordStepFailure(ctx, stepKey, agentStep.AgentName, "", err)
		return nil
	}

	prompt := renderInputTemplate(agentStep.RenderedInput, rc.userMessage) + rc.buildUpstreamBlock(agentStep.UpstreamSources)
	systemPrompt := def.SystemPrompt
	if agentStep.SystemPrompt != "" {
		systemPrompt = agentStep.SystemPrompt
	}
	maxOutputTokens := firstNonZero(agentStep.MaxOutputTokens, def.MaxOutputTokens, rc.sched.cfg.Pipeline.DefaultMaxOutputTokens)
	maxToolSteps := firstNonZero(agentStep.MaxToolSteps, def.MaxToolSteps, rc.sched.cfg.Pipeline.DefaultMaxToolSteps)

	execID := uuid.New().String()
	startedAt := time.Now()
	rc.createExecution(ctx, execID, stepKey, agentStep.AgentName, prompt, startedAt)
	rc.publishStatus(stepKey, agentStep.AgentName, events.AgentStatusRunning, "")

	toolNames := agentStep.ToolOverrides
	if len(toolNames) == 0 {
		toolNames = def.Tools
	}
	registry := rc.sched.toolRegistry(rc.chatID, rc.projectRoot).Scoped(toolNames, fileStoreToolNames)

	req := llmgateway.CompletionRequest{
		Provider:        def.Provider,
		Model:           def.Model,
		MaxOutputTokens: maxOutputTokens,
		Messages: []llmgateway.Message{
			{Role: llmgateway.RoleSystem, Content: systemPrompt},
			{Role: llmgateway.RoleUser, Content: prompt},
		},
	}

	timeout := tokenBudgetTimeout(maxOutputTokens)
	result, err := rc.streamWithRetry(ctx, stepKey, agentStep.AgentName, registry, req, maxToolSteps, timeout)
	if err != nil {
		rc.recordStepFailure(ctx, stepKey, agentStep.AgentName, execID, err)
		return nil
	}

	rc.setResult(stepKey, result.Content)
	rc.setToolCalls(stepKey, stepToolCalls{Names: result.ToolCallNames, ArgsJSON: result.ToolCallArgs})
	rc.completeExecution(ctx, execID, result.Content)
	rc.publishStatus(stepKey, agentStep.AgentName, events.AgentStatusCompleted, "")

	if err := rc.recordTokenUsage(ctx, execID, agentStep.AgentName, def.Provider, def.Model, result.Usage); err != nil {
		return err // a CostLimitError here must stop the pipeline
	}
	return nil
}

// streamWithRetry runs the LLM Gateway's tool-calling loop, retrying a
// TransientProviderError up to maxRetryAttempts with exponential backoff
// (§4.G "Retries"); a FatalProviderError or any other error returns
// immediately, never retried (§7).
func (rc *runContext) streamWithRetry(ctx context.Context, stepKey, agentName string, registry *tools.Registry, req llmgateway.CompletionRequest, maxToolSteps int, timeout time.Duration) (*llmgateway.RunResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	llmCtx, span := telemetry.StartLLMCall(stepCtx, req.Provider, req.Model)
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		callStart := time.Now()
		result, err := llmgateway.Run(llmCtx, rc.sched.gateway, registry, req, llmgateway.RunOptions{
			MaxToolSteps: maxToolSteps,
			OnTextDelta: func(delta string) {
				rc.sched.bus.PublishAgentThinking(events.AgentThinkingPayload{ChatID: rc.chatID, StepKey: stepKey, Delta: delta})
			},
		})
		if err == nil {
			rc.sched.metrics.RecordLLMCall(req.Provider, req.Model, "ok", time.Since(callStart), result.Usage.InputTokens, result.Usage.OutputTokens, rc.sched.gateway.EstimateCost(req.Provider, req.Model, result.Usage))
			return result, nil
		}
		lastErr = err
		rc.sched.metrics.RecordLLMCall(req.Provider, req.Model, "error", time.Since(callStart), 0, 0, 0)
		span.RecordError(err)

		var transient *perr.TransientProviderError
		if !errors.As(err, &transient) || attempt == maxRetryAttempts {
			return nil, err
		}

		rc.publishStatus(stepKey, agentName, events.AgentStatusRetrying, err.Error())
		if sleepErr := sleepOrCancel(stepCtx, backoffDelay(attempt)); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, lastErr
}

// tokenBudgetTimeout derives the wall-clock bound §4.G requires for an agent
// step from its token budget: a generous per-token allowance so a large
// maxOutputTokens doesn't starve a slow but healthy stream, floored so even
// a tiny budget gets a usable minimum.
func tokenBudgetTimeout(maxOutputTokens int) time.Duration {
	const perTokenAllowance = 50 * time.Millisecond
	const floor = 30 * time.Second
	d := time.Duration(maxOutputTokens) * perTokenAllowance
	if d < floor {
		return floor
	}
	return d
}

func (rc *runContext) createExecution(ctx context.Context, id, stepKey, agentName, prompt string, startedAt time.Time) {
	if rc.sched.store == nil {
		return
	}
	exec := &models.AgentExecution{
		ID:        id,
		ChatID:    rc.chatID,
		StepKey:   stepKey,
		AgentName: agentName,
		Status:    models.ExecutionRunning,
		Input:     models.ExecutionInput{Prompt: prompt},
		StartedAt: startedAt,
	}
	if err := rc.sched.store.CreateExecution(ctx, rc.runID, exec); err != nil {
		rc.log.Error("orchestrator: persist execution start failed", "step", stepKey, "error", err)
	}
}

func (rc *runContext) completeExecution(ctx context.Context, id, content string) {
	if rc.sched.store == nil {
		return
	}
	if err := rc.sched.store.CompleteExecution(ctx, id, models.ExecutionOutput{Content: content}, "", models.ExecutionComplete); err != nil {
		rc.log.Error("orchestrator: persist execution completion failed", "id", id, "error", err)
	}
}

func (rc *runContext) recordStepFailure(ctx context.Context, stepKey, agentName, execID string, cause error) {
	rc.log.Warn("orchestrator: step failed", "step", stepKey, "agent", agentName, "error", cause)
	rc.publishStatus(stepKey, agentName, events.AgentStatusFailed, cause.Error())
	rc.sched.bus.PublishAgentError(events.AgentErrorPayload{ChatID: rc.chatID, StepKey: stepKey, Error: cause.Error()})

	if rc.sched.store == nil {
		return
	}
	if execID == "" {
		execID = uuid.New().String()
		if err := rc.sched.store.CreateExecution(ctx, rc.runID, &models.AgentExecution{
			ID: execID, ChatID: rc.chatID, StepKey: stepKey, AgentName: agentName,
			Status: models.ExecutionFailed, StartedAt: time.Now(),
		}); err != nil {
			rc.log.Error("orchestrator: persist failed-execution insert failed", "step", stepKey, "error", err)
			return
		}
	}
	if err := rc.sched.store.CompleteExecution(ctx, execID, models.ExecutionOutput{}, cause.Error(), models.ExecutionFailed); err != nil {
		rc.log.Error("orchestrator: persist execution failure failed", "id", execID, "error", err)
	}
}

func (rc *runContext) publishStatus(stepKey, agentName string, status events.AgentStatusValue, errMsg string) {
	rc.sched.bus.PublishAgentStatus(events.AgentStatusPayload{
		ChatID: rc.chatID, StepKey: stepKey, AgentName: agentName, Status: status, Error: errMsg,
	})
}

// recordTokenUsage persists a token_usage row, estimates cost, publishes
// token_usage, and enforces the §4.G budget check. Returns a
// *perr.CostLimitError when either the per-chat or per-project cumulative
// cost now exceeds its configured limit — the caller must treat this as
// pipeline-terminal, not step-local.
func (rc *runContext) recordTokenUsage(ctx context.Context, execID, agentName, provider, model string, usage llmgateway.Usage) error {
	cost := rc.sched.gateway.EstimateCost(provider, model, usage)

	if rc.sched.store != nil {
		u := &models.TokenUsage{
			ID: uuid.New().String(), ExecutionID: execID, ChatID: rc.chatID,
			AgentName: agentName, Provider: provider, Model: model,
			InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
			CacheReadTokens: usage.CacheReadTokens, CacheWriteTokens: usage.CacheWriteTokens,
			TotalTokens: usage.Total(), CostEstimate: cost, CreatedAt: time.Now(),
		}
		if err := rc.sched.store.RecordTokenUsage(ctx, u); err != nil {
			rc.log.Error("orchestrator: record token usage failed", "error", err)
		}
	}

	rc.sched.bus.PublishTokenUsage(events.TokenUsagePayload{
		ChatID: rc.chatID, AgentName: agentName,
		InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens, CostEstimate: cost,
	})

	return rc.checkBudget(ctx)
}

// checkBudget compares cumulative chat/project cost against configured
// limits (§4.G "Budget enforcement"). A zero limit disables the check.
func (rc *runContext) checkBudget(ctx context.Context) error {
	if rc.sched.store == nil {
		return nil
	}
	limits := rc.sched.cfg.Pipeline
	if limits.PerChatCostLimit > 0 {
		spent, err := rc.sched.store.ChatCostTotal(ctx, rc.chatID)
		if err != nil {
			return fmt.Errorf("orchestrator: chat cost total: %w", err)
		}
		if spent > limits.PerChatCostLimit {
			return &perr.CostLimitError{Scope: "chat", Limit: limits.PerChatCostLimit, Spent: spent}
		}
	}
	if limits.PerProjectCostLimit > 0 && rc.projectID != "" {
		spent, err := rc.sched.store.ProjectCostTotal(ctx, rc.projectID)
		if err != nil {
			return fmt.Errorf("orchestrator: project cost total: %w", err)
		}
		if spent > limits.PerProjectCostLimit {
			return &perr.CostLimitError{Scope: "project", Limit: limits.PerProjectCostLimit, Spent: spent}
		}
	}
	return nil
}

// runAgentStepAdHoc implements actions.AgentInvoker: it lets a build-fix,
// test-fix, or remediation-fix call (or a single-LLM-call action kind) drive
// the same LLM Gateway path a resolved agent plan step uses, recorded under
// a synthetic step key so the call still gets its own AgentExecution/
// token_usage audit trail (§4.G, §4.H).
func (rc *runContext) runAgentStepAdHoc(ctx context.Context, actionInstanceID string, req actions.AgentCallRequest) (string, error) {
	def, err := rc.sched.agents.Get(req.AgentName)
	if err != nil {
		return "", err
	}

	stepKey := fmt.Sprintf("%s/%s/%s", actionInstanceID, req.AgentName, uuid.New().String())
	systemPrompt := def.SystemPrompt
	if req.SystemPrompt != "" {
		systemPrompt = req.SystemPrompt
	}
	maxOutputTokens := firstNonZero(req.MaxOutputTokens, def.MaxOutputTokens, rc.sched.cfg.Pipeline.DefaultMaxOutputTokens)
	maxToolSteps := firstNonZero(def.MaxToolSteps, rc.sched.cfg.Pipeline.DefaultMaxToolSteps)

	execID := uuid.New().String()
	rc.createExecution(ctx, execID, stepKey, req.AgentName, req.Prompt, time.Now())
	rc.publishStatus(stepKey, req.AgentName, events.AgentStatusRunning, "")

	registry := rc.sched.toolRegistry(rc.chatID, rc.projectRoot).Scoped(def.Tools, fileStoreToolNames)

	completionReq := llmgateway.CompletionRequest{
		Provider:        def.Provider,
		Model:           def.Model,
		MaxOutputTokens: maxOutputTokens,
		Messages: []llmgateway.Message{
			{Role: llmgateway.RoleSystem, Content: systemPrompt},
			{Role: llmgateway.RoleUser, Content: req.Prompt},
		},
	}

	result, err := rc.streamWithRetry(ctx, stepKey, req.AgentName, registry, completionReq, maxToolSteps, tokenBudgetTimeout(maxOutputTokens))
	if err != nil {
		rc.recordStepFailure(ctx, stepKey, req.AgentName, execID, err)
		return "", err
	}

	rc.completeExecution(ctx, execID, result.Content)
	rc.publishStatus(stepKey, req.AgentName, events.AgentStatusCompleted, "")

	if err := rc.recordTokenUsage(ctx, execID, req.AgentName, def.Provider, def.Model, result.Usage); err != nil {
		return result.Content, err
	}
	return result.Content, nil
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
