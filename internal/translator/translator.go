package translator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tabchat/tabchat/internal/chat"
	"github.com/tabchat/tabchat/internal/inference"
	"github.com/tabchat/tabchat/internal/observability"
	"github.com/tabchat/tabchat/internal/tabular"
)

// Translator turns a natural-language question into a query against the
// current dataset and returns both. It keeps its own short conversation so
// follow-up questions stay grounded in the queries already issued.
type Translator struct {
	Client inference.Client
	Engine *tabular.Engine
	Logger *slog.Logger
	Model  string

	conversation *chat.Conversation
}

// Answer carries the executed query alongside its outcome. Execution
// failures come back inside the answer so the caller can show or replay the
// query text.
type Answer struct {
	Success bool             `json:"success"`
	Query   string           `json:"query"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func New(client inference.Client, engine *tabular.Engine, logger *slog.Logger, model string) *Translator {
	t := &Translator{Client: client, Engine: engine, Logger: logger, Model: model}
	t.conversation = chat.NewConversation(t.systemPrompt())
	return t
}

// systemPrompt grounds the model in the current schema: the fixed table
// name, the exact column list, and the query-construction rules.
func (t *Translator) systemPrompt() string {
	var builder strings.Builder
	builder.WriteString("You are an SQL expert. Generate ONLY the SQL query needed to answer the question.\n\n")
	builder.WriteString("IMPORTANT DATABASE DETAILS:\n")
	fmt.Fprintf(&builder, "- There is only ONE table named '%s'\n", t.Engine.TableName())
	fmt.Fprintf(&builder, "- The table has EXACTLY these columns: %s\n", t.Engine.Schema())
	builder.WriteString("- Column names must match EXACTLY as shown above\n")
	builder.WriteString("- Do not reference any other tables or columns that don't exist\n\n")
	builder.WriteString("QUERY RULES:\n")
	builder.WriteString("1. Return ONLY the SQL query, nothing else\n")
	builder.WriteString("2. Do not include any explanations\n")
	builder.WriteString("3. Do not use markdown formatting\n")
	builder.WriteString("4. End the query with a semicolon\n")
	builder.WriteString("5. Write a single SELECT statement\n")
	builder.WriteString("6. Never use JOIN since there is only one table\n")
	builder.WriteString("7. String comparisons should be case insensitive (use LOWER())\n")
	return builder.String()
}

// Ask regenerates the system prompt from the current schema, requests a
// query for the question, executes it, and records the raw query in the
// conversation whether or not execution succeeded.
func (t *Translator) Ask(ctx context.Context, question string) (Answer, error) {
	t.conversation.SetSystemPrompt(t.systemPrompt())

	columnNames := make([]string, 0)
	for _, column := range t.Engine.Columns() {
		columnNames = append(columnNames, column.Name)
	}
	userPrompt := fmt.Sprintf(
		"Write a SQL query to answer: %s\nRemember:\n1. Use ONLY the %s table\n2. Use EXACT column names: %s\n3. Use LOWER() for case-insensitive string comparisons",
		strings.TrimSpace(question), t.Engine.TableName(), strings.Join(columnNames, ", "))
	t.conversation.AppendUser(userPrompt)

	resp, err := t.Client.Chat(ctx, inference.Request{
		Model:    t.Model,
		Messages: t.conversation.Messages(),
	})
	if err != nil {
		return Answer{}, err
	}

	queryText := stripMarkdownSQL(resp.Content)
	result := t.Engine.Query(ctx, queryText)

	// The raw query stays in the conversation regardless of the outcome so
	// the model can refine it on the next turn.
	t.conversation.AppendAssistant(queryText)

	answer := Answer{
		Success: result.Success,
		Query:   queryText,
		Columns: result.Columns,
		Rows:    result.Rows,
		Error:   result.Error,
	}
	if answer.Success {
		observability.IncrementTranslation("ok")
	} else {
		observability.IncrementTranslation("error")
		if t.Logger != nil {
			t.Logger.WarnContext(ctx, "translated query failed",
				slog.String("query", queryText),
				slog.String("error", result.Error))
		}
	}
	return answer, nil
}

// ClearContext resets the conversation to just the regenerated system
// message, used when a brand-new dataset session starts.
func (t *Translator) ClearContext() {
	t.conversation = chat.NewConversation(t.systemPrompt())
}

func (t *Translator) Conversation() *chat.Conversation {
	return t.conversation
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
