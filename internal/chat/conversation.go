package chat

import "github.com/tabchat/tabchat/internal/inference"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Conversation is one prompt history. The system prompt is the single mutable
// slot, regenerated deliberately on mode or schema change; everything else is
// strictly append-only.
type Conversation struct {
	systemPrompt string
	history      []inference.Message
}

func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{systemPrompt: systemPrompt}
}

func (c *Conversation) SystemPrompt() string {
	return c.systemPrompt
}

func (c *Conversation) SetSystemPrompt(prompt string) {
	c.systemPrompt = prompt
}

func (c *Conversation) AppendUser(content string) {
	c.history = append(c.history, inference.Message{Role: RoleUser, Content: content})
}

func (c *Conversation) AppendAssistant(content string) {
	c.history = append(c.history, inference.Message{Role: RoleAssistant, Content: content})
}

func (c *Conversation) AppendToolResult(call inference.ToolCall, content string) {
	c.history = append(c.history, inference.Message{
		Role:       RoleTool,
		Content:    content,
		ToolName:   call.Name,
		ToolCallID: call.ID,
	})
}

// Messages renders the full prompt: the system message, when one is set,
// followed by the history in insertion order.
func (c *Conversation) Messages() []inference.Message {
	out := make([]inference.Message, 0, len(c.history)+1)
	if c.systemPrompt != "" {
		out = append(out, inference.Message{Role: RoleSystem, Content: c.systemPrompt})
	}
	return append(out, c.history...)
}

// History returns the append-only portion, excluding the system message.
func (c *Conversation) History() []inference.Message {
	out := make([]inference.Message, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Conversation) Len() int {
	return len(c.history)
}

// Clear discards the history while keeping the current system prompt.
func (c *Conversation) Clear() {
	c.history = nil
}
