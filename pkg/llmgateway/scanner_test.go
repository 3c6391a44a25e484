package llmgateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToolCallScanner_PlainText(t *testing.T) {
	s := NewToolCallScanner()
	content, calls, err := s.Feed("hello world")
	require.NoError(t, err)
	content += s.Flush()
	require.Empty(t, calls)
	require.Equal(t, "hello world", content)
}

func TestToolCallScanner_SingleCallOneChunk(t *testing.T) {
	s := NewToolCallScanner()
	content, calls, err := s.Feed(`before <tool_call>{"id":"1","name":"read_file","arguments":{"path":"a.go"}}</tool_call> after`)
	require.NoError(t, err)
	content += s.Flush()
	require.Equal(t, "before  after", content)
	require.Len(t, calls, 1)
	require.Equal(t, "read_file", calls[0].Name)
	require.JSONEq(t, `{"path":"a.go"}`, calls[0].ArgumentsJSON)
}

func TestToolCallScanner_SplitAcrossChunks(t *testing.T) {
	s := NewToolCallScanner()
	var allContent string
	var allCalls []ToolCall

	chunks := []string{
		"intro <tool_",
		`call>{"id":"1","name":"write_file",`,
		`"arguments":{"path":"x.go","content":"package x"}}</tool_ca`,
		"ll> outro",
	}
	for _, c := range chunks {
		content, calls, err := s.Feed(c)
		require.NoError(t, err)
		allContent += content
		allCalls = append(allCalls, calls...)
	}
	allContent += s.Flush()

	require.Equal(t, "intro  outro", allContent)
	require.Len(t, allCalls, 1)
	require.Equal(t, "write_file", allCalls[0].Name)
}

func TestToolCallScanner_MalformedJSON(t *testing.T) {
	s := NewToolCallScanner()
	_, _, err := s.Feed(`<tool_call>not json</tool_call>`)
	require.Error(t, err)
}
