package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Tool is a named, schema-described unit of executable logic. Parameters is a
// JSON-schema-like object contract; Invoke receives arguments that already
// satisfied it.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Invoke      func(ctx context.Context, args map[string]any) (string, error)
}

// Result is the envelope tools serialize their outcome into. Domain failures
// (bad query, missing column) travel inside the envelope instead of aborting
// the conversation.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Envelope serializes a tool result. Marshal failures degrade to a plain
// error envelope rather than panicking inside a tool.
func Envelope(success bool, data any, errText string) string {
	payload, err := json.Marshal(Result{Success: success, Data: data, Error: errText})
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(payload)
}

// ErrToolNotFound reports a call naming a tool outside the active set. It is
// non-fatal to a batch of tool calls.
var ErrToolNotFound = errors.New("tool not available")

// ArgumentParseError reports an unparseable arguments payload. Non-fatal per
// call; the batch continues.
type ArgumentParseError struct {
	Tool   string
	Detail string
}

func (e *ArgumentParseError) Error() string {
	return fmt.Sprintf("tool %q arguments are not valid JSON: %s", e.Tool, e.Detail)
}

// ValidationError reports arguments that parsed but violate the tool's
// parameter contract. Contract errors abort the whole chat call.
type ValidationError struct {
	Tool   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %q arguments rejected: %s", e.Tool, e.Detail)
}
