// Package events is the Event Bus (Component A): in-process pub/sub of
// typed events fanned out to WebSocket clients filtered by chat identity
// (§2, §5, §6). Delivery is in-process only — the persistent store's
// cross-process fan-out (e.g. Postgres LISTEN/NOTIFY) is explicitly out of
// this spec's scope (§1), so unlike the teacher this bus never touches the
// database.
package events

// MessageType is the WebSocket frame discriminant (§6).
type MessageType string

const (
	TypeAgentStatus              MessageType = "agent_status"
	TypeAgentThinking            MessageType = "agent_thinking"
	TypeAgentStream              MessageType = "agent_stream"
	TypeAgentError               MessageType = "agent_error"
	TypeChatMessage              MessageType = "chat_message"
	TypeChatRenamed              MessageType = "chat_renamed"
	TypeTokenUsage               MessageType = "token_usage"
	TypeFilesChanged             MessageType = "files_changed"
	TypePreviewReady             MessageType = "preview_ready"
	TypePipelinePlan             MessageType = "pipeline_plan"
	TypePipelineInterrupted      MessageType = "pipeline_interrupted"
	TypePipelineCheckpoint       MessageType = "pipeline_checkpoint"
	TypePipelineCheckpointResolved MessageType = "pipeline_checkpoint_resolved"
	TypeTestResults              MessageType = "test_results"
	TypeTestResultIncremental    MessageType = "test_result_incremental"
	TypeBackendReady             MessageType = "backend_ready"
	TypeBackendError             MessageType = "backend_error"
	TypePreviewExited            MessageType = "preview_exited"
)

// AgentStatusValue is the status carried by an agent_status frame.
type AgentStatusValue string

const (
	AgentStatusRunning   AgentStatusValue = "running"
	AgentStatusCompleted AgentStatusValue = "completed"
	AgentStatusFailed    AgentStatusValue = "failed"
	AgentStatusStopped   AgentStatusValue = "stopped"
	AgentStatusRetrying  AgentStatusValue = "retrying"
)

// FilesChangedSentinel is the path sentinel a version action uses when it
// has no individual file list to report (§4.H).
const FilesChangedSentinel = "__snapshot__"
