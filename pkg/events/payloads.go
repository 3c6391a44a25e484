package events

// Every payload carries ChatID so a subscriber can filter strictly by chat
// identity (§5, §6).

type AgentStatusPayload struct {
	Type      MessageType      `json:"type"`
	ChatID    string           `json:"chatId"`
	StepKey   string           `json:"stepKey"`
	AgentName string           `json:"agentName"`
	Status    AgentStatusValue `json:"status"`
	Error     string           `json:"error,omitempty"`
}

type AgentThinkingPayload struct {
	Type    MessageType `json:"type"`
	ChatID  string      `json:"chatId"`
	StepKey string      `json:"stepKey"`
	Delta   string      `json:"delta"`
}

type AgentStreamPayload struct {
	Type    MessageType `json:"type"`
	ChatID  string      `json:"chatId"`
	StepKey string      `json:"stepKey"`
	Content string      `json:"content"`
}

type AgentErrorPayload struct {
	Type    MessageType `json:"type"`
	ChatID  string      `json:"chatId"`
	StepKey string      `json:"stepKey"`
	Error   string      `json:"error"`
}

type ChatMessagePayload struct {
	Type      MessageType    `json:"type"`
	ChatID    string         `json:"chatId"`
	MessageID string         `json:"messageId"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	AgentName string         `json:"agentName,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type ChatRenamedPayload struct {
	Type   MessageType `json:"type"`
	ChatID string      `json:"chatId"`
	Title  string      `json:"title"`
}

type TokenUsagePayload struct {
	Type         MessageType `json:"type"`
	ChatID       string      `json:"chatId"`
	AgentName    string      `json:"agentName"`
	InputTokens  int         `json:"inputTokens"`
	OutputTokens int         `json:"outputTokens"`
	CostEstimate float64     `json:"costEstimate"`
}

type FilesChangedPayload struct {
	Type   MessageType `json:"type"`
	ChatID string      `json:"chatId"`
	Paths  []string    `json:"paths"` // may be [FilesChangedSentinel]
}

type PreviewReadyPayload struct {
	Type   MessageType `json:"type"`
	ChatID string      `json:"chatId"`
	URL    string      `json:"url,omitempty"`
}

type PipelinePlanPayload struct {
	Type   MessageType `json:"type"`
	ChatID string      `json:"chatId"`
	Agents []string    `json:"agents"` // planned order
}

type PipelineInterruptedPayload struct {
	Type   MessageType `json:"type"`
	ChatID string      `json:"chatId"`
	Reason string      `json:"reason"` // e.g. "cost_limit"
}

type PipelineCheckpointPayload struct {
	Type           MessageType `json:"type"`
	ChatID         string      `json:"chatId"`
	CheckpointID   string      `json:"checkpointId"`
	CheckpointType string      `json:"checkpointType"` // approve | design_direction
	Message        string      `json:"message"`
	Options        []string    `json:"options,omitempty"`
}

type PipelineCheckpointResolvedPayload struct {
	Type         MessageType `json:"type"`
	ChatID       string      `json:"chatId"`
	CheckpointID string      `json:"checkpointId"`
	Choice       string      `json:"choice"`
}

type TestResultIncrementalPayload struct {
	Type     MessageType `json:"type"`
	ChatID   string      `json:"chatId"`
	TestName string      `json:"testName"`
	Passed   bool        `json:"passed"`
}

type TestResultsPayload struct {
	Type    MessageType `json:"type"`
	ChatID  string      `json:"chatId"`
	Passed  int         `json:"passed"`
	Failed  int         `json:"failed"`
	Total   int         `json:"total"`
}

type BackendReadyPayload struct {
	Type   MessageType `json:"type"`
	ChatID string      `json:"chatId"`
}

type BackendErrorPayload struct {
	Type   MessageType `json:"type"`
	ChatID string      `json:"chatId"`
	Error  string      `json:"error"`
}

type PreviewExitedPayload struct {
	Type     MessageType `json:"type"`
	ChatID   string      `json:"chatId"`
	ExitCode int         `json:"exitCode"`
}
