package llmgateway

import (
	"encoding/json"
	"strings"
)

// toolCallOpenTag and toolCallCloseTag delimit an embedded tool call inside
// the assistant's streaming text (§9).
const (
	toolCallOpenTag  = "<tool_call>"
	toolCallCloseTag = "</tool_call>"
)

// scannerState is the tool-call scanner's state machine (§9: "implement as
// a streaming scanner with a small state machine rather than regex on the
// accumulated buffer" — chunk boundaries can fall anywhere, including mid-tag).
type scannerState int

const (
	scanOutsideTag scannerState = iota
	scanInsideTag
)

// rawToolCall is the embedded JSON shape a tool-call block carries.
type rawToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallScanner incrementally extracts <tool_call>{...}</tool_call> blocks
// from a stream of text deltas, carrying a small pending buffer across Feed
// calls so a tag split across chunk boundaries is never missed. Non-tag text
// is returned immediately as plain content; tool calls are returned once
// their closing tag arrives.
type ToolCallScanner struct {
	state   scannerState
	pending strings.Builder // accumulates partial tag/content since the last safe flush
}

// NewToolCallScanner returns a scanner ready to consume the start of a fresh
// stream.
func NewToolCallScanner() *ToolCallScanner {
	return &ToolCallScanner{}
}

// Feed consumes one text delta and returns any plain-text content that is
// now safe to emit plus any complete tool calls found in delta. Content
// returned may lag by as much as len(toolCallOpenTag)-1 bytes, held back in
// case a chunk boundary split the opening tag.
func (s *ToolCallScanner) Feed(delta string) (content string, calls []ToolCall, err error) {
	s.pending.WriteString(delta)
	buf := s.pending.String()
	s.pending.Reset()

	var out strings.Builder
	for {
		switch s.state {
		case scanOutsideTag:
			idx := strings.Index(buf, toolCallOpenTag)
			if idx == -1 {
				// Keep back only a tail that could be the start of a split
				// opening tag.
				keep := 0
				for n := len(toolCallOpenTag) - 1; n > 0; n-- {
					if strings.HasSuffix(buf, toolCallOpenTag[:n]) {
						keep = n
						break
					}
				}
				safe := len(buf) - keep
				out.WriteString(buf[:safe])
				s.pending.WriteString(buf[safe:])
				return out.String(), calls, nil
			}
			out.WriteString(buf[:idx])
			buf = buf[idx+len(toolCallOpenTag):]
			s.state = scanInsideTag

		case scanInsideTag:
			idx := strings.Index(buf, toolCallCloseTag)
			if idx == -1 {
				s.pending.WriteString(buf)
				return out.String(), calls, nil
			}
			body := strings.TrimSpace(buf[:idx])
			buf = buf[idx+len(toolCallCloseTag):]
			s.state = scanOutsideTag

			var raw rawToolCall
			if jsonErr := json.Unmarshal([]byte(body), &raw); jsonErr != nil {
				return out.String(), calls, jsonErr
			}
			calls = append(calls, ToolCall{ID: raw.ID, Name: raw.Name, ArgumentsJSON: string(raw.Arguments)})
		}
	}
}

// Flush returns any content withheld pending a possible tag match, once the
// caller knows no more deltas are coming (the stream has ended). Pending
// bytes that were held inside an unterminated opening tag are returned
// as-is rather than silently dropped.
func (s *ToolCallScanner) Flush() string {
	out := s.pending.String()
	s.pending.Reset()
	return out
}

// ToolCall is one parsed <tool_call> block.
type ToolCall struct {
	ID            string
	Name          string
	ArgumentsJSON string
}
