package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Registry holds the active tool set for one conversation. Tools are
// immutable once registered; a new dataset or model replaces the whole set.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func New() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Invoke == nil {
		return fmt.Errorf("tool %q has no invoke function", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q is already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Replace swaps the entire active set atomically. The previous set is
// discarded, never merged.
func (r *Registry) Replace(tools []Tool) error {
	next := make(map[string]Tool, len(tools))
	order := make([]string, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			return fmt.Errorf("tool name is required")
		}
		if tool.Invoke == nil {
			return fmt.Errorf("tool %q has no invoke function", tool.Name)
		}
		if _, exists := next[tool.Name]; exists {
			return fmt.Errorf("duplicate tool name %q", tool.Name)
		}
		next[tool.Name] = tool
		order = append(order, tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = next
	r.order = order
	return nil
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the active tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke is the single shared path for all tool invocations: parse the opaque
// payload, validate it against the parameter contract, then execute. Parse
// failures and unknown tools return recordable errors; validation failures
// and tool panics-as-errors propagate as contract violations.
func (r *Registry) Invoke(ctx context.Context, name, argumentsPayload string) (string, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	args := map[string]any{}
	if argumentsPayload != "" {
		if err := json.Unmarshal([]byte(argumentsPayload), &args); err != nil {
			return "", &ArgumentParseError{Tool: name, Detail: err.Error()}
		}
	}

	if err := validateArguments(tool.Parameters, args); err != nil {
		return "", &ValidationError{Tool: name, Detail: err.Error()}
	}

	return tool.Invoke(ctx, args)
}
