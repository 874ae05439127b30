package models

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// PartType tags the variant of a message part.
type PartType string

const (
	PartText         PartType = "text"
	PartToolCall     PartType = "tool-call"
	PartToolResult   PartType = "tool-result"
	PartToolApproval PartType = "tool-approval"
)

// Part is one typed fragment of a message. Exactly one variant's fields
// are populated, selected by Type.
type Part struct {
	Type PartType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool-call / tool-result / tool-approval share the call id
	ToolCallID string `json:"toolCallId,omitempty"`

	// tool-call
	ToolName  string          `json:"toolName,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// tool-result
	Result json.RawMessage `json:"result,omitempty"`

	// tool-approval
	Approved *bool `json:"approved,omitempty"`
}

// Message is one turn in a conversation, ordered parts included.
type Message struct {
	ID    string `json:"id,omitempty"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Conversation is the full ordered history the client resubmits on each
// request. It is never persisted server-side.
type Conversation []Message

// LastPart returns the final part of the final message, or nil when the
// conversation is empty. The tool-approval continuation rule inspects it.
func (c Conversation) LastPart() *Part {
	if len(c) == 0 {
		return nil
	}
	last := c[len(c)-1]
	if len(last.Parts) == 0 {
		return nil
	}
	return &last.Parts[len(last.Parts)-1]
}
