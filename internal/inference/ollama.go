package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

// OllamaClient talks to an Ollama-compatible backend. Streaming is always
// disabled so each Chat call maps to exactly one response message.
type OllamaClient struct {
	client *api.Client
	model  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid inference base url: %w", err)
	}

	httpClient := http.DefaultClient
	if cfg.Timeout > 0 {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OllamaClient{
		client: api.NewClient(parsed, httpClient),
		model:  cfg.Model,
	}, nil
}

func (c *OllamaClient) Chat(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: toOllamaMessages(req.Messages),
		Tools:    toOllamaTools(req.Tools),
		Format:   req.Format,
		Stream:   func(b bool) *bool { return &b }(false),
	}

	var out Response
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		out.Role = resp.Message.Role
		out.Content += resp.Message.Content
		for _, call := range resp.Message.ToolCalls {
			args, err := json.Marshal(call.Function.Arguments)
			if err != nil {
				return fmt.Errorf("marshal tool call arguments: %w", err)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				// Ollama does not assign call ids; mint one so tool results
				// can be correlated in the transcript.
				ID:        uuid.NewString(),
				Name:      call.Function.Name,
				Arguments: string(args),
			})
		}
		return nil
	})
	if err != nil {
		return Response{}, wrapTransportError(err)
	}
	return out, nil
}

func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	models := make([]ModelInfo, 0, len(resp.Models))
	for _, model := range resp.Models {
		models = append(models, ModelInfo{Name: model.Name, Size: model.Size})
	}
	return models, nil
}

func (c *OllamaClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.client.List(ctx)
	if err != nil {
		return wrapTransportError(err)
	}
	return nil
}

func (c *OllamaClient) Model() string {
	return c.model
}

func (c *OllamaClient) SetModel(model string) {
	c.model = model
}

func wrapTransportError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &RequestError{Status: statusErr.StatusCode, Message: statusErr.ErrorMessage}
	}
	return err
}

func toOllamaMessages(messages []Message) []api.Message {
	out := make([]api.Message, len(messages))
	for i, message := range messages {
		out[i] = api.Message{
			Role:     message.Role,
			Content:  message.Content,
			ToolName: message.ToolName,
		}
	}
	return out
}

func toOllamaTools(tools []ToolDefinition) api.Tools {
	if len(tools) == 0 {
		return nil
	}
	out := make(api.Tools, 0, len(tools))
	for _, tool := range tools {
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toOllamaParameters(tool.Parameters),
			},
		})
	}
	return out
}

func toOllamaParameters(schema map[string]any) api.ToolFunctionParameters {
	params := api.ToolFunctionParameters{
		Type:       "object",
		Properties: map[string]api.ToolProperty{},
	}
	if schema == nil {
		return params
	}
	if typeValue, ok := schema["type"].(string); ok && typeValue != "" {
		params.Type = typeValue
	}
	if required, ok := schema["required"].([]string); ok {
		params.Required = required
	} else if required, ok := schema["required"].([]any); ok {
		for _, entry := range required {
			if name, ok := entry.(string); ok {
				params.Required = append(params.Required, name)
			}
		}
	}
	if properties, ok := schema["properties"].(map[string]any); ok {
		for name, value := range properties {
			params.Properties[name] = toOllamaProperty(value)
		}
	}
	return params
}

func toOllamaProperty(value any) api.ToolProperty {
	prop := api.ToolProperty{}
	propMap, ok := value.(map[string]any)
	if !ok {
		return prop
	}
	switch typed := propMap["type"].(type) {
	case string:
		prop.Type = api.PropertyType{typed}
	case []string:
		prop.Type = api.PropertyType(typed)
	case []any:
		for _, entry := range typed {
			if name, ok := entry.(string); ok {
				prop.Type = append(prop.Type, name)
			}
		}
	}
	if description, ok := propMap["description"].(string); ok {
		prop.Description = description
	}
	if enum, ok := propMap["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := propMap["items"]; ok {
		prop.Items = items
	}
	return prop
}
