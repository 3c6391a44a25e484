// Package perr defines the pipeline's error taxonomy (§7). Orchestrator and
// action code switches on these with errors.As rather than string matching,
// so a step's terminal status and retry eligibility are determined by type,
// not by inspecting error messages.
package perr

import (
	"errors"
	"fmt"
)

// ValidationError — malformed template, unknown agent reference, dangerous
// expression. Surfaced at save time; never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation: %s", e.Reason) }

// TransientProviderError — LLM network/rate-limit failure. Retried at the
// agent-step level with exponential backoff up to a small cap.
type TransientProviderError struct {
	Cause error
}

func (e *TransientProviderError) Error() string { return fmt.Sprintf("transient provider error: %v", e.Cause) }
func (e *TransientProviderError) Unwrap() error { return e.Cause }

// FatalProviderError — auth/quota/invalid-request failure. The step fails;
// the pipeline continues running peers whose dependencies didn't include it.
type FatalProviderError struct {
	Cause error
}

func (e *FatalProviderError) Error() string { return fmt.Sprintf("fatal provider error: %v", e.Cause) }
func (e *FatalProviderError) Unwrap() error { return e.Cause }

// ToolError — a tool call's input failed schema validation, or the tool
// itself raised. Emitted as a tool-step event; the agent stream continues.
type ToolError struct {
	ToolName string
	Cause    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.ToolName, e.Cause)
}
func (e *ToolError) Unwrap() error { return e.Cause }

// CostLimitError — a per-chat or per-project budget breach. Sets
// pipeline_run.status=interrupted, never failed; resume-eligible.
type CostLimitError struct {
	Scope string // "chat" or "project"
	Limit float64
	Spent float64
}

func (e *CostLimitError) Error() string {
	return fmt.Sprintf("%s cost limit reached: spent %.4f of %.4f", e.Scope, e.Spent, e.Limit)
}

// InternalError — an unexpected bug. Pipeline_run.status=failed; surfaced on
// the WebSocket as agent_error.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal error: %v", e.Cause) }
func (e *InternalError) Unwrap() error { return e.Cause }

// Retryable reports whether err should trigger the agent-step retry loop.
func Retryable(err error) bool {
	var transient *TransientProviderError
	return errors.As(err, &transient)
}
