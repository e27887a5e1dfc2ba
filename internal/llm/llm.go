// Package llm abstracts the chat-completion provider behind a small client
// interface so the assistant logic can be tested with a scripted fake.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation sent to the model.
type Message struct {
	Role    string
	Content string

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string

	// ToolCalls are the calls an assistant-role message requested.
	ToolCalls []ToolCall
}

// ToolCall is a tool invocation requested by the model. Arguments is the
// raw JSON argument object as produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDef describes a callable tool. Parameters is a JSON schema object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion call.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDef
}

// Response is the model's reply: either content, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Client produces chat completions.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
