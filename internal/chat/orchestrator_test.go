package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/tabchat/tabchat/internal/inference"
	"github.com/tabchat/tabchat/internal/registry"
)

type scriptedClient struct {
	responses []inference.Response
	requests  []inference.Request
	err       error
}

func (c *scriptedClient) Chat(ctx context.Context, req inference.Request) (inference.Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return inference.Response{}, c.err
	}
	if len(c.responses) == 0 {
		return inference.Response{Role: "assistant", Content: "done"}, nil
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next, nil
}

func (c *scriptedClient) ListModels(ctx context.Context) ([]inference.ModelInfo, error) {
	return nil, nil
}

func (c *scriptedClient) Ping(ctx context.Context) error {
	return nil
}

func echoTool(name string) registry.Tool {
	return registry.Tool{
		Name:        name,
		Description: "echoes its input",
		Parameters: map[string]any{
			"type":     "object",
			"required": []any{"text"},
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("echo: %v", args["text"]), nil
		},
	}
}

func newTestOrchestrator(t *testing.T, client inference.Client, tools []registry.Tool, cfg Config) *Orchestrator {
	t.Helper()
	reg := registry.New()
	if err := reg.Replace(tools); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	return NewOrchestrator(client, reg, nil, cfg)
}

func TestSetModeRejectsUnsupportedMode(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedClient{}, nil, Config{
		SupportedModes: []Mode{ModeNormal, ModeToolBased},
	})

	err := o.SetMode(ModeStructured)
	var unsupportedErr *UnsupportedModeError
	if !errors.As(err, &unsupportedErr) {
		t.Fatalf("SetMode() error = %v, want UnsupportedModeError", err)
	}
	if o.Mode() != ModeNormal {
		t.Fatalf("mode = %q, want unchanged %q", o.Mode(), ModeNormal)
	}
}

func TestSetModeRegeneratesSystemPrompt(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedClient{}, nil, Config{
		PromptBuilder: func(mode Mode) string { return "prompt for " + string(mode) },
	})

	if got := o.Conversation().SystemPrompt(); got != "prompt for normal" {
		t.Fatalf("initial system prompt = %q", got)
	}
	if err := o.SetMode(ModeToolBased); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if got := o.Conversation().SystemPrompt(); got != "prompt for tool_based" {
		t.Fatalf("system prompt = %q", got)
	}
}

func TestChatNormalModeReturnsContent(t *testing.T) {
	client := &scriptedClient{responses: []inference.Response{{Role: "assistant", Content: "hello"}}}
	o := newTestOrchestrator(t, client, []registry.Tool{echoTool("echo")}, Config{Model: "llama3.1"})

	answer, err := o.Chat(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer != "hello" {
		t.Fatalf("answer = %q", answer)
	}
	if len(client.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(client.requests))
	}
	if len(client.requests[0].Tools) != 0 {
		t.Fatalf("normal mode attached tools: %+v", client.requests[0].Tools)
	}
	history := o.Conversation().History()
	if len(history) != 2 || history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Fatalf("history = %+v", history)
	}
}

func TestChatStructuredModeRequiresFormat(t *testing.T) {
	client := &scriptedClient{}
	o := newTestOrchestrator(t, client, nil, Config{})
	if err := o.SetMode(ModeStructured); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	_, err := o.Chat(context.Background(), "hi", nil)
	if !errors.Is(err, ErrMissingFormat) {
		t.Fatalf("Chat() error = %v, want ErrMissingFormat", err)
	}
	if len(client.requests) != 0 {
		t.Fatalf("requests = %d, want 0 before format check", len(client.requests))
	}
}

func TestChatStructuredModeAttachesFormat(t *testing.T) {
	client := &scriptedClient{responses: []inference.Response{{Content: "{}"}}}
	o := newTestOrchestrator(t, client, nil, Config{})
	if err := o.SetMode(ModeStructured); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	format := json.RawMessage(`{"type":"object"}`)
	if _, err := o.Chat(context.Background(), "hi", format); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if string(client.requests[0].Format) != string(format) {
		t.Fatalf("format = %s", client.requests[0].Format)
	}
}

func TestChatStructuredModeFallsBackToDefaultFormat(t *testing.T) {
	client := &scriptedClient{responses: []inference.Response{{Content: "{}"}}}
	o := newTestOrchestrator(t, client, nil, Config{
		DefaultFormat: json.RawMessage(`"json"`),
	})
	if err := o.SetMode(ModeStructured); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	if _, err := o.Chat(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if string(client.requests[0].Format) != `"json"` {
		t.Fatalf("format = %s", client.requests[0].Format)
	}
}

func TestChatToolBasedResolvesKnownAndSkipsUnknown(t *testing.T) {
	client := &scriptedClient{responses: []inference.Response{
		{
			Role: "assistant",
			ToolCalls: []inference.ToolCall{
				{ID: "call-1", Name: "echo", Arguments: `{"text":"ping"}`},
				{ID: "call-2", Name: "vanished", Arguments: `{}`},
			},
		},
		{Role: "assistant", Content: "final answer"},
	}}
	o := newTestOrchestrator(t, client, []registry.Tool{echoTool("echo")}, Config{})
	if err := o.SetMode(ModeToolBased); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	answer, err := o.Chat(context.Background(), "use the tool", nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer != "final answer" {
		t.Fatalf("answer = %q", answer)
	}
	if len(client.requests) != 2 {
		t.Fatalf("requests = %d, want exactly one follow-up", len(client.requests))
	}

	var toolMessages []inference.Message
	for _, message := range o.Conversation().History() {
		if message.Role == RoleTool {
			toolMessages = append(toolMessages, message)
		}
	}
	if len(toolMessages) != 1 {
		t.Fatalf("tool messages = %d, want 1", len(toolMessages))
	}
	if toolMessages[0].ToolCallID != "call-1" || toolMessages[0].Content != "echo: ping" {
		t.Fatalf("tool message = %+v", toolMessages[0])
	}
	if len(client.requests[0].Tools) != 1 || client.requests[0].Tools[0].Name != "echo" {
		t.Fatalf("offered tools = %+v", client.requests[0].Tools)
	}
}

func TestChatToolBasedSkipsUnparseableArguments(t *testing.T) {
	client := &scriptedClient{responses: []inference.Response{
		{
			Role: "assistant",
			ToolCalls: []inference.ToolCall{
				{ID: "call-1", Name: "echo", Arguments: `{broken`},
			},
		},
		{Role: "assistant", Content: "recovered"},
	}}
	o := newTestOrchestrator(t, client, []registry.Tool{echoTool("echo")}, Config{})
	if err := o.SetMode(ModeToolBased); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	answer, err := o.Chat(context.Background(), "go", nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer != "recovered" {
		t.Fatalf("answer = %q", answer)
	}
	for _, message := range o.Conversation().History() {
		if message.Role == RoleTool {
			t.Fatalf("unexpected tool message: %+v", message)
		}
	}
}

func TestChatToolBasedPropagatesValidationFailure(t *testing.T) {
	client := &scriptedClient{responses: []inference.Response{
		{
			Role: "assistant",
			ToolCalls: []inference.ToolCall{
				{ID: "call-1", Name: "echo", Arguments: `{"text":42}`},
			},
		},
	}}
	o := newTestOrchestrator(t, client, []registry.Tool{echoTool("echo")}, Config{})
	if err := o.SetMode(ModeToolBased); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	_, err := o.Chat(context.Background(), "go", nil)
	var validationErr *registry.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Chat() error = %v, want ValidationError", err)
	}
}

func TestChatToolBasedBoundsRecursion(t *testing.T) {
	looping := inference.Response{
		Role: "assistant",
		ToolCalls: []inference.ToolCall{
			{ID: "call", Name: "echo", Arguments: `{"text":"again"}`},
		},
	}
	client := &scriptedClient{responses: []inference.Response{
		looping, looping, looping, looping, looping,
	}}
	o := newTestOrchestrator(t, client, []registry.Tool{echoTool("echo")}, Config{MaxToolTurns: 2})
	if err := o.SetMode(ModeToolBased); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	_, err := o.Chat(context.Background(), "loop", nil)
	var turnsErr *MaxTurnsExceededError
	if !errors.As(err, &turnsErr) {
		t.Fatalf("Chat() error = %v, want MaxTurnsExceededError", err)
	}
	if turnsErr.Limit != 2 {
		t.Fatalf("Limit = %d, want 2", turnsErr.Limit)
	}
}

func TestChatPropagatesTransportError(t *testing.T) {
	client := &scriptedClient{err: &inference.RequestError{Status: 502, Message: "bad gateway"}}
	o := newTestOrchestrator(t, client, nil, Config{})

	_, err := o.Chat(context.Background(), "hi", nil)
	var requestErr *inference.RequestError
	if !errors.As(err, &requestErr) {
		t.Fatalf("Chat() error = %v, want RequestError", err)
	}
	if requestErr.Status != 502 {
		t.Fatalf("Status = %d", requestErr.Status)
	}
}

func TestResetClearsHistoryAndKeepsPrompt(t *testing.T) {
	client := &scriptedClient{responses: []inference.Response{{Content: "hello"}}}
	o := newTestOrchestrator(t, client, nil, Config{
		PromptBuilder: func(mode Mode) string { return "grounded prompt" },
	})

	if _, err := o.Chat(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	o.Reset()
	if o.Conversation().Len() != 0 {
		t.Fatalf("history length = %d after reset", o.Conversation().Len())
	}
	if o.Conversation().SystemPrompt() != "grounded prompt" {
		t.Fatalf("system prompt = %q", o.Conversation().SystemPrompt())
	}
}
