package assistant

import "encoding/json"

// EventType tags a stream event.
type EventType string

const (
	EventTextDelta         EventType = "text-delta"
	EventToolCall          EventType = "tool-call"
	EventToolResult        EventType = "tool-result"
	EventApprovalRequested EventType = "approval-requested"
	EventError             EventType = "error"
	EventFinish            EventType = "finish"
)

// Event is one framed unit of the response stream. The client rebuilds
// the assistant message's parts by append order, so events must be
// written in generation order.
type Event struct {
	Type       EventType       `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// EventWriter receives stream events as they are produced. A write error
// means the client is gone; the orchestrator stops promptly.
type EventWriter interface {
	WriteEvent(Event) error
}
