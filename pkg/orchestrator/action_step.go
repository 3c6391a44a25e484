package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/orchestrator/pkg/actions"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/flowforge/orchestrator/pkg/perr"
)

// chatMessageKinds are the action kinds whose result is written into the
// chat as a message (§4.H) rather than only fed forward through
// agentResults.
var chatMessageKinds = map[flow.ActionKind]bool{
	flow.ActionSummary:      true,
	flow.ActionVibeIntake:   true,
	flow.ActionMoodAnalysis: true,
	flow.ActionAnswer:       true,
}

// runActionStep bridges a resolved action plan step to pkg/actions.Execute
// (§4.H), wrapping it with the same AgentExecution bookkeeping an agent
// step gets so a chat's WebSocket subscriber can't tell the two apart.
func (rc *runContext) runActionStep(ctx context.Context, step resolver.PlanStep) error {
	actionStep := step.Action
	stepKey := step.StepKey()
	agentName := string(actionStep.Kind)

	execID := uuid.New().String()
	rc.createExecution(ctx, execID, stepKey, agentName, actionStep.Command, time.Now())
	rc.publishStatus(stepKey, agentName, events.AgentStatusRunning, "")

	ac := &actions.Context{
		ChatID:       rc.chatID,
		ProjectID:    rc.projectID,
		ProjectRoot:  rc.projectRoot,
		Store:        rc.sched.store,
		Artifact:     rc.artifact,
		Bus:          rc.sched.bus,
		Defaults:     rc.sched.cfg.Pipeline,
		AgentResults: rc.snapshotResultsForAction(actionStep.UpstreamSources, actionStep.RemediationKeys),
		RunAgent: func(ctx context.Context, req actions.AgentCallRequest) (string, error) {
			return rc.runAgentStepAdHoc(ctx, stepKey, req)
		},
	}

	result, err := runActionWithTimeout(ctx, stepKey, actionStep, ac)
	if err != nil {
		var costErr *perr.CostLimitError
		if errors.As(err, &costErr) {
			rc.recordStepFailure(ctx, stepKey, agentName, execID, err)
			return err
		}
		rc.recordStepFailure(ctx, stepKey, agentName, execID, err)
		return nil
	}

	rc.setResult(stepKey, result.Content)
	rc.completeExecution(ctx, execID, result.Content)
	rc.publishStatus(stepKey, agentName, events.AgentStatusCompleted, "")

	if chatMessageKinds[actionStep.Kind] {
		rc.publishChatMessage(ctx, agentName, result)
	}
	return nil
}

// runActionWithTimeout bounds an action step to its explicit timeoutMs
// (§4.G: "action steps have explicit timeoutMs"), falling back to the
// context's own deadline when the node didn't set one (e.g. remediation,
// summary — kinds with no subprocess to bound).
func runActionWithTimeout(ctx context.Context, stepKey string, step *resolver.ActionStep, ac *actions.Context) (*actions.Result, error) {
	if step.TimeoutMs <= 0 {
		return actions.Execute(ctx, ac, stepKey, step)
	}
	stepCtx, cancel := context.WithTimeout(ctx, time.Duration(step.TimeoutMs)*time.Millisecond)
	defer cancel()
	return actions.Execute(stepCtx, ac, stepKey, step)
}

// snapshotResultsForAction gives an action's AgentResults map just the keys
// it can actually reference (its declared upstream sources plus any
// remediation reviewer keys) rather than the whole run's result set, so an
// action executor's behavior only ever depends on what the resolved plan
// told it to depend on.
func (rc *runContext) snapshotResultsForAction(sources []flow.UpstreamSource, remediationKeys []string) map[string]string {
	out := map[string]string{}
	for _, s := range sources {
		if v := rc.getResult(s.SourceKey); v != "" {
			out[s.SourceKey] = v
		}
	}
	for _, k := range remediationKeys {
		if v := rc.getResult(k); v != "" {
			out[k] = v
		}
	}
	return out
}

func (rc *runContext) publishChatMessage(ctx context.Context, agentName string, result *actions.Result) {
	msg := &models.Message{
		ID:        uuid.New().String(),
		ChatID:    rc.chatID,
		Role:      models.RoleAssistant,
		Content:   result.Content,
		AgentName: agentName,
		Metadata:  result.Metadata,
		CreatedAt: time.Now(),
	}
	if rc.sched.store != nil {
		if err := rc.sched.store.AddMessage(ctx, msg); err != nil {
			rc.log.Error("orchestrator: persist chat message failed", "error", err)
		}
	}
	rc.sched.bus.PublishChatMessage(events.ChatMessagePayload{
		ChatID: rc.chatID, MessageID: msg.ID, Role: string(msg.Role),
		Content: msg.Content, AgentName: agentName, Metadata: msg.Metadata,
	})
}
