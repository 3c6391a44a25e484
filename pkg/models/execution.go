package models

import "time"

// ExecutionStatus is the lifecycle of an AgentExecution.
type ExecutionStatus string

const (
	ExecutionPending  ExecutionStatus = "pending"
	ExecutionRunning  ExecutionStatus = "running"
	ExecutionComplete ExecutionStatus = "completed"
	ExecutionFailed   ExecutionStatus = "failed"
	ExecutionRetrying ExecutionStatus = "retrying"
	ExecutionStopped  ExecutionStatus = "stopped"
)

// AgentExecution is one invocation of an agent or action step. Rows are
// append-only modulo status transitions; Output.Content is the authoritative
// text used to reconstruct upstream results on resume (§3).
type AgentExecution struct {
	ID          string          `json:"id"`
	ChatID      string          `json:"chatId"`
	StepKey     string          `json:"stepKey"` // node instanceId, not the agent name
	AgentName   string          `json:"agentName"`
	Status      ExecutionStatus `json:"status"`
	Input       ExecutionInput  `json:"input"`
	Output      ExecutionOutput `json:"output"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retryCount"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// ExecutionInput captures what was sent to the agent, for debugging and resume.
type ExecutionInput struct {
	Prompt string `json:"prompt"`
}

// ExecutionOutput captures what the agent/action produced.
type ExecutionOutput struct {
	Content string `json:"content"`
}

// RunStatus is the lifecycle of a PipelineRun.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// PipelineRun is the durable record a resume is reconstructed from (§3, §4.G).
type PipelineRun struct {
	ID            string     `json:"id"`
	ChatID        string     `json:"chatId"`
	Intent        string     `json:"intent"`
	Scope         string     `json:"scope"`
	UserMessage   string     `json:"userMessage"`
	NeedsBackend  bool       `json:"needsBackend"`
	HasFiles      bool       `json:"hasFiles"`
	PlannedAgents []string   `json:"plannedAgents"` // step keys, in planned order
	Status        RunStatus  `json:"status"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// TokenUsage is per-call accounting linked to an execution and chat (§3, §6).
type TokenUsage struct {
	ID               string    `json:"id"`
	ExecutionID      string    `json:"executionId"`
	ChatID           string    `json:"chatId"`
	AgentName        string    `json:"agentName"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	APIKeyHash       string    `json:"apiKeyHash,omitempty"`
	InputTokens      int       `json:"inputTokens"`
	OutputTokens     int       `json:"outputTokens"`
	CacheReadTokens  int       `json:"cacheReadTokens"`
	CacheWriteTokens int       `json:"cacheWriteTokens"`
	TotalTokens      int       `json:"totalTokens"`
	CostEstimate     float64   `json:"costEstimate"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Snapshot is a versioned file manifest for a project+chat at a named label.
type Snapshot struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"projectId"`
	ChatID       string            `json:"chatId"`
	Label        string            `json:"label"`
	FileManifest map[string]string `json:"fileManifest"` // path -> content hash
	CreatedAt    time.Time         `json:"createdAt"`
}

// AppSetting is a flat key/value row used to store flow templates
// (`flow.template.<id>`) and active bindings (`flow.active.<intent>`).
type AppSetting struct {
	Key   string `json:"key"`
	Value string `json:"value"` // JSON-encoded
}
