package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured tool invocation extracted from model output.
// It is consumed exactly once by the tool execution loop; only its textual
// summary survives into conversation history.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one conversational turn unit.
type Message struct {
	ID      string         `json:"id"`
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`

	// ToolCalls are attached to an assistant message that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a follow-up message to a prior tool call.
	ToolCallID string `json:"tool_call_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh id and normalized content.
// A message never carries empty content: an empty sequence is replaced with
// a single empty text part.
func NewMessage(role Role, content []ContentBlock) Message {
	if len(content) == 0 {
		content = []ContentBlock{NewTextBlock("")}
	}
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewTextMessage creates a message holding a single text part.
func NewTextMessage(role Role, text string) Message {
	return NewMessage(role, []ContentBlock{NewTextBlock(text)})
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	return TextOf(m.Content)
}

// messageJSON is the wire shape for Message, needed because Content holds
// interface values.
type messageJSON struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// UnmarshalJSON decodes a message, dispatching content parts to their
// concrete block types.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	blocks, err := UnmarshalContentBlocks(raw.Content)
	if err != nil {
		return err
	}

	m.ID = raw.ID
	m.Role = raw.Role
	m.Content = blocks
	m.ToolCalls = raw.ToolCalls
	m.ToolCallID = raw.ToolCallID
	m.Timestamp = raw.Timestamp
	return nil
}
