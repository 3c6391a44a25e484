package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/flowforge/orchestrator/pkg/perr"
	"github.com/flowforge/orchestrator/pkg/telemetry"
)

// dispatchLoop implements §4.G's dispatch algorithm: repeatedly compute the
// eligible set (steps whose dependencies are all done), launch a concurrent
// task per eligible step not yet started, and wait for any one completion
// before recomputing. Checkpoint gates are folded in as a third kind of
// task: a gated step is withheld from the eligible set until its gate's
// single waiter goroutine reports a resolution. Returns nil on a clean
// finish, ctx.Err() on cancellation, or a *perr.CostLimitError when a step's
// cost check tripped the budget (§4.G "Budget enforcement" — pipeline-terminal).
func (rc *runContext) dispatchLoop(ctx context.Context) error {
	plan := rc.plan
	started := map[string]bool{}
	triggered := map[string]bool{}

	remaining := 0
	for _, st := range plan.Steps {
		if !rc.isDone(st.StepKey()) {
			remaining++
		}
	}
	if remaining == 0 {
		return nil
	}

	completions := make(chan error, 1)
	launch := func(key string, work func() error) {
		go func() {
			err := work()
			select {
			case completions <- err:
			case <-ctx.Done():
			}
		}()
	}

	dispatchEligible := func() {
		for _, st := range plan.Steps {
			key := st.StepKey()
			if rc.isDone(key) || started[key] {
				continue
			}
			if !rc.depsSatisfied(st.DependsOn) {
				continue
			}
			if gate, blocked := rc.blockingCheckpoint(key); blocked {
				if !triggered[gate.NodeID] {
					triggered[gate.NodeID] = true
					g := gate
					launch(g.NodeID, func() error {
						rc.runCheckpoint(ctx, g)
						return nil
					})
				}
				continue
			}

			started[key] = true
			step := st
			launch(key, func() error {
				err := rc.runStep(ctx, step)
				rc.markDone(step.StepKey(), err != nil)
				return err
			})
		}
	}

	dispatchEligible()
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-completions:
			if err != nil {
				var costErr *perr.CostLimitError
				if errors.As(err, &costErr) {
					return err
				}
			}
			remaining = 0
			for _, st := range plan.Steps {
				if !rc.isDone(st.StepKey()) {
					remaining++
				}
			}
			dispatchEligible()
		}
	}
	return nil
}

func (rc *runContext) depsSatisfied(deps []string) bool {
	for _, d := range deps {
		if !rc.isDone(d) {
			return false
		}
	}
	return true
}

// blockingCheckpoint reports whether key is gated by a checkpoint that
// hasn't resolved yet.
func (rc *runContext) blockingCheckpoint(key string) (resolver.CheckpointGate, bool) {
	for _, gate := range rc.plan.Checkpoints {
		for _, gated := range gate.GatedSteps {
			if gated != key {
				continue
			}
			if _, resolved := rc.checkpointChoice(gate.NodeID); !resolved {
				return gate, true
			}
		}
	}
	return resolver.CheckpointGate{}, false
}

func (rc *runContext) runStep(ctx context.Context, step resolver.PlanStep) error {
	kind := string(step.Kind)
	agentName := stepAgentName(step)

	ctx, span := telemetry.StartStep(ctx, rc.chatID, step.StepKey(), agentName, kind)
	defer span.End()

	rc.sched.metrics.StepStarted(kind)
	started := time.Now()
	defer func() {
		rc.sched.metrics.StepFinished(kind)
	}()

	var err error
	switch step.Kind {
	case resolver.StepAgent:
		err = rc.runAgentStep(ctx, step)
	case resolver.StepAction:
		err = rc.runActionStep(ctx, step)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	rc.sched.metrics.RecordStep(kind, outcome, time.Since(started))
	return err
}

func stepAgentName(step resolver.PlanStep) string {
	switch step.Kind {
	case resolver.StepAgent:
		return step.Agent.AgentName
	case resolver.StepAction:
		return string(step.Action.Kind)
	default:
		return ""
	}
}

func (rc *runContext) checkpointChoice(nodeID string) (string, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.resolvedCheckpoints == nil {
		return "", false
	}
	choice, ok := rc.resolvedCheckpoints[nodeID]
	return choice, ok
}

func (rc *runContext) setCheckpointResolved(nodeID, choice string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.resolvedCheckpoints == nil {
		rc.resolvedCheckpoints = map[string]string{}
	}
	rc.resolvedCheckpoints[nodeID] = choice
}

// runCheckpoint implements §4.G's checkpoint pause: announce, wait for an
// external resolution or timeoutMs (defaulting to "approve"), record the
// resolution as a hidden message, and mark the gate resolved. Skipped
// entirely when the chat is in YOLO mode and the node allows it.
func (rc *runContext) runCheckpoint(ctx context.Context, gate resolver.CheckpointGate) {
	if rc.yolo && gate.Spec.SkipInYolo {
		rc.setCheckpointResolved(gate.NodeID, "approve")
		return
	}

	rc.sched.bus.PublishPipelineCheckpoint(events.PipelineCheckpointPayload{
		ChatID: rc.chatID, CheckpointID: gate.NodeID,
		CheckpointType: string(gate.Spec.CheckpointType), Message: gate.Spec.Message,
	})

	waitCh := rc.sched.registerCheckpointWaiter(rc.chatID, gate.NodeID)
	defer rc.sched.unregisterCheckpointWaiter(rc.chatID, gate.NodeID)

	timeout := time.Duration(gate.Spec.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}

	var choice string
	select {
	case choice = <-waitCh:
	case <-time.After(timeout):
		choice = "approve"
	case <-ctx.Done():
		choice = "approve"
	}

	rc.sched.bus.PublishPipelineCheckpointResolved(events.PipelineCheckpointResolvedPayload{
		ChatID: rc.chatID, CheckpointID: gate.NodeID, Choice: choice,
	})
	rc.sched.metrics.RecordCheckpoint(string(gate.Spec.CheckpointType), choice)

	if rc.sched.store != nil {
		msg := &models.Message{
			ID:      uuid.New().String(),
			ChatID:  rc.chatID,
			Role:    models.RoleSystem,
			Content: fmt.Sprintf("checkpoint resolved: %s", choice),
			Metadata: map[string]any{
				"type":         models.MessageTypeCheckpointResolved,
				"checkpointId": gate.NodeID,
				"choice":       choice,
			},
			CreatedAt: time.Now(),
		}
		if err := rc.sched.store.AddMessage(context.Background(), msg); err != nil {
			rc.log.Error("orchestrator: persist checkpoint-resolved message failed", "error", err)
		}
	}

	rc.setCheckpointResolved(gate.NodeID, choice)
}
