package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
)

// runContext is the per-pipeline-run state the dispatch loop, the
// agent/action step executors, and upstream prompt assembly all share. One
// instance lives for the lifetime of a single orchestration (a fresh run or
// a resume), never reused across runs.
type runContext struct {
	sched *Scheduler

	runID       string
	chatID      string
	projectID   string
	projectRoot string
	userMessage string
	yolo        bool

	plan *resolver.ExecutionPlan

	artifact *artifact.Store
	log      *slog.Logger

	mu                  sync.RWMutex
	results             map[string]string
	toolCalls           map[string]stepToolCalls
	done                map[string]bool // step key -> true once completed (success or failure)
	failed              map[string]bool
	resolvedCheckpoints map[string]string // checkpoint node id -> resolved choice
}

func newRunContext(sched *Scheduler, runID, chatID, projectID, projectRoot, userMessage string, yolo bool, plan *resolver.ExecutionPlan) *runContext {
	return &runContext{
		sched:       sched,
		runID:       runID,
		chatID:      chatID,
		projectID:   projectID,
		projectRoot: projectRoot,
		userMessage: userMessage,
		yolo:        yolo,
		plan:        plan,
		artifact:    sched.artifact,
		log:         sched.log,
		results:     map[string]string{},
		toolCalls:   map[string]stepToolCalls{},
		done:        map[string]bool{},
		failed:      map[string]bool{},
	}
}

func (rc *runContext) getResult(key string) string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.results[key]
}

func (rc *runContext) setResult(key, val string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.results[key] = val
}

func (rc *runContext) getToolCalls(key string) stepToolCalls {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.toolCalls[key]
}

func (rc *runContext) setToolCalls(key string, calls stepToolCalls) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.toolCalls[key] = calls
}

// seedResult pre-populates a step's result without marking it done — used
// by resume to rebuild agentResults from persisted executions before the
// dispatch loop re-enters (§4.G resume step 2).
func (rc *runContext) seedResult(key, val string) {
	rc.setResult(key, val)
}

// markDone records a step's terminal state and returns whether this call
// was the one that transitioned it (guards against double-counting if two
// callers race, though the dispatch loop itself only calls this once per
// step).
func (rc *runContext) markDone(key string, failed bool) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.done[key] {
		return false
	}
	rc.done[key] = true
	rc.failed[key] = failed
	return true
}

func (rc *runContext) isDone(key string) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.done[key]
}

func (rc *runContext) completedKeys() map[string]bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]bool, len(rc.done))
	for k, v := range rc.done {
		out[k] = v
	}
	return out
}
