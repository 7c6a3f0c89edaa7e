// Package model wraps the external LLM gateway named as an out-of-scope
// collaborator in spec.md §1 ("the LLM gateway: OpenAI-style chat
// completions with tool calls") behind a narrow interface, so the Run
// Orchestrator never imports a vendor SDK directly. Grounded on the
// teacher's features/model/openai adapter, which performs the same
// translation against github.com/sashabaranov/go-openai.
package model

import "context"

// ToolDefinition is one tool the model may call, including its JSON Schema
// argument shape (produced by the Tool Registry, C4).
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Message is one chat turn.
type Message struct {
	Role    string // "system", "user", "assistant", "tool"
	Content string
}

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID      string
	Name    string
	Payload map[string]any
}

// Request is one turn of the agent loop sent to the gateway.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float32
	MaxTokens   int
	// ToolChoice forces tool-call behavior ("auto", "required", or a
	// specific tool name); empty leaves it to the gateway's default. Used
	// by the inline-fix endpoint (C14), which requires the model call
	// edit_code rather than reply with prose.
	ToolChoice string
}

// Response is the gateway's reply to one turn.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
}

// Client is the minimal surface the Run Orchestrator needs from the model
// gateway.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
