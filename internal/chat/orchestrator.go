package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/tabchat/tabchat/internal/inference"
	"github.com/tabchat/tabchat/internal/observability"
	"github.com/tabchat/tabchat/internal/registry"
)

// PromptBuilder regenerates the system prompt for a mode. Attached when the
// prompt depends on mutable state such as the active dataset schema.
type PromptBuilder func(mode Mode) string

// Orchestrator drives one conversation through request/response cycles with
// the inference service until a user-facing answer is available. It is the
// only component that appends messages; tools never touch the conversation.
type Orchestrator struct {
	Client inference.Client
	Tools  *registry.Registry
	Logger *slog.Logger
	Config Config

	mode         Mode
	conversation *Conversation
}

type Config struct {
	Model          string
	SupportedModes []Mode
	MaxToolTurns   int
	PromptBuilder  PromptBuilder
	DefaultFormat  json.RawMessage
	SystemPrompt   string
}

const defaultMaxToolTurns = 5

func NewOrchestrator(client inference.Client, tools *registry.Registry, logger *slog.Logger, cfg Config) *Orchestrator {
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = defaultMaxToolTurns
	}
	if len(cfg.SupportedModes) == 0 {
		cfg.SupportedModes = []Mode{ModeNormal, ModeStructured, ModeToolBased}
	}
	if tools == nil {
		tools = registry.New()
	}

	o := &Orchestrator{
		Client:       client,
		Tools:        tools,
		Logger:       logger,
		Config:       cfg,
		mode:         ModeNormal,
		conversation: NewConversation(cfg.SystemPrompt),
	}
	if cfg.PromptBuilder != nil {
		o.conversation.SetSystemPrompt(cfg.PromptBuilder(o.mode))
	}
	return o
}

func (o *Orchestrator) Mode() Mode {
	return o.mode
}

func (o *Orchestrator) Conversation() *Conversation {
	return o.conversation
}

// SetMode transitions the active mode. An unsupported mode fails and leaves
// the active mode unchanged; a successful transition regenerates the system
// prompt when a prompt builder is attached.
func (o *Orchestrator) SetMode(mode Mode) error {
	if !o.supportsMode(mode) {
		return &UnsupportedModeError{Mode: mode}
	}
	o.mode = mode
	if o.Config.PromptBuilder != nil {
		o.conversation.SetSystemPrompt(o.Config.PromptBuilder(mode))
	}
	return nil
}

func (o *Orchestrator) supportsMode(mode Mode) bool {
	for _, supported := range o.Config.SupportedModes {
		if supported == mode {
			return true
		}
	}
	return false
}

// RefreshSystemPrompt regenerates the system prompt from the attached
// builder, used when the dataset schema changes under an open conversation.
func (o *Orchestrator) RefreshSystemPrompt() {
	if o.Config.PromptBuilder != nil {
		o.conversation.SetSystemPrompt(o.Config.PromptBuilder(o.mode))
	}
}

// Reset discards the conversation history and regenerates the system prompt.
func (o *Orchestrator) Reset() {
	o.conversation.Clear()
	o.RefreshSystemPrompt()
}

// Chat appends the user's message and advances the conversation until the
// backend returns a tool-call-free answer. In structured mode the format
// requirement is checked before any network request is issued.
func (o *Orchestrator) Chat(ctx context.Context, userText string, format json.RawMessage) (string, error) {
	if o.mode == ModeStructured {
		if len(format) == 0 {
			format = o.Config.DefaultFormat
		}
		if len(format) == 0 {
			return "", ErrMissingFormat
		}
	}

	o.conversation.AppendUser(userText)
	return o.advance(ctx, format, 0)
}

func (o *Orchestrator) advance(ctx context.Context, format json.RawMessage, depth int) (string, error) {
	if depth > o.Config.MaxToolTurns {
		return "", &MaxTurnsExceededError{Limit: o.Config.MaxToolTurns}
	}

	req := inference.Request{
		Model:    o.Config.Model,
		Messages: o.conversation.Messages(),
	}
	if o.mode == ModeToolBased && o.Tools.Len() > 0 {
		req.Tools = toolDefinitions(o.Tools.List())
	}
	if o.mode == ModeStructured {
		req.Format = format
	}

	resp, err := o.Client.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	observability.IncrementChatTurn(string(o.mode))

	if o.mode != ModeToolBased || len(resp.ToolCalls) == 0 {
		o.conversation.AppendAssistant(resp.Content)
		return resp.Content, nil
	}

	// Tool calls resolve in the order the backend listed them; each result
	// message is appended before the follow-up request is sent.
	for _, call := range resp.ToolCalls {
		payload, err := o.Tools.Invoke(ctx, call.Name, call.Arguments)
		if err != nil {
			if recordable(err) {
				observability.IncrementToolInvocation(call.Name, "skipped")
				if o.Logger != nil {
					o.Logger.WarnContext(ctx, "tool call skipped",
						slog.String("tool", call.Name),
						slog.Any("error", err))
				}
				continue
			}
			observability.IncrementToolInvocation(call.Name, "error")
			return "", err
		}
		observability.IncrementToolInvocation(call.Name, "ok")
		o.conversation.AppendToolResult(call, payload)
	}

	return o.advance(ctx, format, depth+1)
}

// recordable reports whether a tool invocation failure only skips that one
// call. Unknown tools and unparseable argument payloads are recorded and the
// batch continues; contract violations and tool failures abort the chat call.
func recordable(err error) bool {
	var parseErr *registry.ArgumentParseError
	return errors.Is(err, registry.ErrToolNotFound) || errors.As(err, &parseErr)
}

func toolDefinitions(tools []registry.Tool) []inference.ToolDefinition {
	defs := make([]inference.ToolDefinition, len(tools))
	for i, tool := range tools {
		defs[i] = inference.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		}
	}
	return defs
}
