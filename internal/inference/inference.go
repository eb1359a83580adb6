package inference

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is one entry of the prompt history sent to the backend. Role is one
// of system, user, assistant or tool; ToolName and ToolCallID are only set on
// tool-role messages carrying a tool result.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is emitted by the backend inside an assistant message. Arguments is
// opaque text; callers parse and validate it before execution.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes one offerable function. Parameters is a
// JSON-schema-like object contract.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolDefinition
	Format   json.RawMessage
}

type Response struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
}

type ModelInfo struct {
	Name string
	Size int64
}

// Client is the inference-service contract. Implementations must disable
// streaming; one Chat call is one full request/response round trip.
type Client interface {
	Chat(ctx context.Context, req Request) (Response, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Ping(ctx context.Context) error
}

// RequestError reports a non-success transport response from the backend.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference request failed with status %d", e.Status)
	}
	return fmt.Sprintf("inference request failed with status %d: %s", e.Status, e.Message)
}
