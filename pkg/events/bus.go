package events

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Envelope is what a subscriber receives: the raw JSON frame plus the chat
// it belongs to, so WebSocket delivery code never has to re-inspect the
// payload to filter.
type Envelope struct {
	ChatID string
	Type   MessageType
	Frame  json.RawMessage // {"type": ..., "payload": ...}
}

type wireFrame struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// subscriber is a single connected client's mailbox: a buffered channel
// (capacity 256) that publish sends to without blocking, and that one
// delivery goroutine owned by the caller (pkg/api's WebSocket handler or
// pkg/events.ConnectionManager) drains in order. Frames reach a subscriber
// in the order publish ran for them; when the buffer is full, publish drops
// the frame for that subscriber and logs a warning.
type subscriber struct {
	id     string
	chatID string
	ch     chan Envelope
}

// Bus is the in-process pub/sub hub (Component A). One Bus instance serves
// the whole process; the orchestrator and action executors hold a reference
// and call Publish*; pkg/api's WebSocket handler calls Subscribe/Unsubscribe.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriber // subscriber id -> subscriber
	log  *slog.Logger
}

// NewBus constructs an empty Bus.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{subs: make(map[string]*subscriber), log: log}
}

// Subscribe registers a new subscriber for chatID and returns a channel the
// caller must drain (in a single goroutine, to preserve FIFO order) and an
// unsubscribe function to call on disconnect.
func (b *Bus) Subscribe(id, chatID string) (<-chan Envelope, func()) {
	ch := make(chan Envelope, 256)
	sub := &subscriber{id: id, chatID: chatID, ch: ch}

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}
}

// publish marshals payload into a {"type","payload"} wire frame and fans it
// out, in call order, to every subscriber whose chatID matches — the §5
// "strict chat filter" property.
func (b *Bus) publish(chatID string, typ MessageType, payload any) {
	body, err := json.Marshal(wireFrame{Type: typ, Payload: payload})
	if err != nil {
		b.log.Error("events: failed to marshal frame", "type", typ, "error", err)
		return
	}
	env := Envelope{ChatID: chatID, Type: typ, Frame: body}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.chatID != chatID {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			b.log.Warn("events: subscriber queue full, dropping frame", "subscriber", sub.id, "type", typ)
		}
	}
}

// Publish* — one typed method per wire message type (§6), mirroring the
// teacher's EventPublisher: callers never hand-build a frame, so the type
// tag and payload shape can't drift apart.

func (b *Bus) PublishAgentStatus(p AgentStatusPayload) {
	p.Type = TypeAgentStatus
	b.publish(p.ChatID, TypeAgentStatus, p)
}

func (b *Bus) PublishAgentThinking(p AgentThinkingPayload) {
	p.Type = TypeAgentThinking
	b.publish(p.ChatID, TypeAgentThinking, p)
}

func (b *Bus) PublishAgentStream(p AgentStreamPayload) {
	p.Type = TypeAgentStream
	b.publish(p.ChatID, TypeAgentStream, p)
}

func (b *Bus) PublishAgentError(p AgentErrorPayload) {
	p.Type = TypeAgentError
	b.publish(p.ChatID, TypeAgentError, p)
}

func (b *Bus) PublishChatMessage(p ChatMessagePayload) {
	p.Type = TypeChatMessage
	b.publish(p.ChatID, TypeChatMessage, p)
}

func (b *Bus) PublishChatRenamed(p ChatRenamedPayload) {
	p.Type = TypeChatRenamed
	b.publish(p.ChatID, TypeChatRenamed, p)
}

func (b *Bus) PublishTokenUsage(p TokenUsagePayload) {
	p.Type = TypeTokenUsage
	b.publish(p.ChatID, TypeTokenUsage, p)
}

func (b *Bus) PublishFilesChanged(p FilesChangedPayload) {
	p.Type = TypeFilesChanged
	b.publish(p.ChatID, TypeFilesChanged, p)
}

func (b *Bus) PublishPreviewReady(p PreviewReadyPayload) {
	p.Type = TypePreviewReady
	b.publish(p.ChatID, TypePreviewReady, p)
}

func (b *Bus) PublishPipelinePlan(p PipelinePlanPayload) {
	p.Type = TypePipelinePlan
	b.publish(p.ChatID, TypePipelinePlan, p)
}

func (b *Bus) PublishPipelineInterrupted(p PipelineInterruptedPayload) {
	p.Type = TypePipelineInterrupted
	b.publish(p.ChatID, TypePipelineInterrupted, p)
}

func (b *Bus) PublishPipelineCheckpoint(p PipelineCheckpointPayload) {
	p.Type = TypePipelineCheckpoint
	b.publish(p.ChatID, TypePipelineCheckpoint, p)
}

func (b *Bus) PublishPipelineCheckpointResolved(p PipelineCheckpointResolvedPayload) {
	p.Type = TypePipelineCheckpointResolved
	b.publish(p.ChatID, TypePipelineCheckpointResolved, p)
}

func (b *Bus) PublishTestResultIncremental(p TestResultIncrementalPayload) {
	p.Type = TypeTestResultIncremental
	b.publish(p.ChatID, TypeTestResultIncremental, p)
}

func (b *Bus) PublishTestResults(p TestResultsPayload) {
	p.Type = TypeTestResults
	b.publish(p.ChatID, TypeTestResults, p)
}

func (b *Bus) PublishBackendReady(p BackendReadyPayload) {
	p.Type = TypeBackendReady
	b.publish(p.ChatID, TypeBackendReady, p)
}

func (b *Bus) PublishBackendError(p BackendErrorPayload) {
	p.Type = TypeBackendError
	b.publish(p.ChatID, TypeBackendError, p)
}

func (b *Bus) PublishPreviewExited(p PreviewExitedPayload) {
	p.Type = TypePreviewExited
	b.publish(p.ChatID, TypePreviewExited, p)
}
