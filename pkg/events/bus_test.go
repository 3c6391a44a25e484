package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_StrictChatFilter(t *testing.T) {
	bus := NewBus(nil)

	chA, unsubA := bus.Subscribe("sub-a", "chat-a")
	defer unsubA()
	chB, unsubB := bus.Subscribe("sub-b", "chat-b")
	defer unsubB()

	bus.PublishAgentStatus(AgentStatusPayload{ChatID: "chat-b", StepKey: "s1", AgentName: "architect", Status: AgentStatusRunning})

	select {
	case env := <-chB:
		require.Equal(t, "chat-b", env.ChatID)
	case <-time.After(time.Second):
		t.Fatal("subscriber for chat-b did not receive its event")
	}

	select {
	case env := <-chA:
		t.Fatalf("subscriber for chat-a unexpectedly received event for %s", env.ChatID)
	case <-time.After(50 * time.Millisecond):
		// expected: chat-a gets nothing
	}
}

func TestBus_FIFOOrderPerSubscriber(t *testing.T) {
	bus := NewBus(nil)
	ch, unsub := bus.Subscribe("sub", "chat-a")
	defer unsub()

	bus.PublishAgentStatus(AgentStatusPayload{ChatID: "chat-a", StepKey: "s1", Status: AgentStatusRunning})
	bus.PublishAgentThinking(AgentThinkingPayload{ChatID: "chat-a", StepKey: "s1", Delta: "hello"})
	bus.PublishAgentStatus(AgentStatusPayload{ChatID: "chat-a", StepKey: "s1", Status: AgentStatusCompleted})

	first := <-ch
	second := <-ch
	third := <-ch

	require.Equal(t, TypeAgentStatus, first.Type)
	require.Equal(t, TypeAgentThinking, second.Type)
	require.Equal(t, TypeAgentStatus, third.Type)
}
