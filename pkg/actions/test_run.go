package actions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
)

// testEvent is one line of the test command's structured output: a JSON
// object with a "name" string and a "passed" boolean. Lines without a
// "passed" field (or that are not JSON) are ignored, so a runner's plain log
// output may be interleaved with these events.
type testEvent struct {
	Name   string `json:"name"`
	Passed *bool  `json:"passed"`
}

const fixAgentForTest = "test-fix"

// runTestRun implements the test-run executor (§4.H): run the test command,
// parse its structured output incrementally, emit per-test and final
// results, and invoke a fix agent on failures up to MaxAttempts or
// MaxTestFailures.
func runTestRun(ctx context.Context, ac *Context, step *resolver.ActionStep) (*Result, error) {
	timeout := time.Duration(step.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = ac.Defaults.TestTimeout
	}
	maxAttempts := step.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = ac.Defaults.MaxBuildFixAttempts
	}
	maxFailures := step.MaxTestFail
	if maxFailures <= 0 {
		maxFailures = ac.Defaults.MaxTestFailures
	}
	maxUnique := step.MaxUniqueErr
	if maxUnique <= 0 {
		maxUnique = ac.Defaults.MaxUniqueErrors
	}

	var passed, failed, total int
	var failingNames []string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := artifact.RunCommand(ctx, ac.ProjectRoot, step.Command, timeout)
		if err != nil {
			return nil, fmt.Errorf("actions: test-run: %w", err)
		}

		passed, failed, total, failingNames = parseTestEvents(result.Stdout, ac)

		final := events.TestResultsPayload{ChatID: ac.ChatID, Passed: passed, Failed: failed, Total: total}
		if ac.Bus != nil {
			ac.Bus.PublishTestResults(final)
		}

		if failed == 0 {
			return &Result{Content: fmt.Sprintf("%d/%d tests passed", passed, total)}, nil
		}

		if attempt == maxAttempts || len(failingNames) >= maxFailures {
			break
		}
		if ac.RunAgent == nil {
			break
		}

		signatures := dedupeErrorSignatures(result.Stderr, maxUnique)
		prompt := fmt.Sprintf("These tests are failing: %s\n\nErrors:\n%s\n\nFix them.",
			joinLines(failingNames), joinLines(signatures))
		if _, err := ac.RunAgent(ctx, AgentCallRequest{AgentName: fixAgentForTest, Prompt: prompt}); err != nil {
			return nil, fmt.Errorf("actions: test-run fix agent: %w", err)
		}
	}

	return &Result{Content: fmt.Sprintf("%d/%d tests passed, %d failing: %s", passed, total, failed, joinLines(failingNames))}, nil
}

// parseTestEvents scans stdout line by line as newline-delimited JSON test
// events, publishing an incremental result per recognized line and falling
// back to treating an unparseable line as ordinary log output (most test
// runners interleave structured events with plain stdout).
func parseTestEvents(stdout string, ac *Context) (passed, failed, total int, failingNames []string) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev testEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Passed == nil {
			continue
		}
		total++
		if *ev.Passed {
			passed++
		} else {
			failed++
			failingNames = append(failingNames, ev.Name)
		}
		if ac.Bus != nil {
			ac.Bus.PublishTestResultIncremental(events.TestResultIncrementalPayload{
				ChatID: ac.ChatID, TestName: ev.Name, Passed: *ev.Passed,
			})
		}
	}
	return
}
