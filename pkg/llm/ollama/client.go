// Package ollama provides the Ollama implementation of the llm.Client
// interface, for running open-source models locally.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"gameagent/pkg/llm"
	"gameagent/pkg/llm/llmerrors"
	"gameagent/pkg/tools"
)

// Client wraps the Ollama API client to implement llm.Client.
type Client struct {
	client *api.Client
	model  string
}

// New creates a raw Ollama client for the given server URL (e.g.
// "http://localhost:11434"); retries are applied at a higher level.
func New(hostURL, model string) *Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		parsedURL, _ = url.Parse("http://localhost:11434")
	}

	return &Client{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// Generate implements llm.Client. Local models have no extended-thinking
// channel, so the thinking budget is ignored.
func (c *Client) Generate(ctx context.Context, in llm.GenerateRequest) (llm.GenerateResult, error) {
	var messages []api.Message
	if in.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: in.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: in.Text})

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	if len(in.Tools) > 0 {
		req.Tools = convertTools(in.Tools)
	}

	start := time.Now()
	var response api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	latency := time.Since(start)

	if err != nil {
		return llm.GenerateResult{}, llmerrors.Classify(err)
	}

	result := llm.GenerateResult{
		Text:       response.Message.Content,
		Latency:    latency,
		StopReason: stopReason(&response),
		Tokens: llm.TokenCounts{
			Prompt:     response.PromptEvalCount,
			Completion: response.EvalCount,
		},
	}

	for i := range response.Message.ToolCalls {
		call := &response.Message.ToolCalls[i]
		result.ToolRequests = append(result.ToolRequests, tools.ToolRequest{
			ID:         fmt.Sprintf("call_%d", i),
			Name:       call.Function.Name,
			Parameters: call.Function.Arguments.ToMap(),
		})
	}

	if result.Text == "" && len(result.ToolRequests) == 0 {
		return llm.GenerateResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Ollama response carried no text or tool calls")
	}

	return result, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return c.model
}

// convertTools maps shared tool definitions to Ollama's format.
func convertTools(defs []tools.ToolDefinition) []api.Tool {
	out := make([]api.Tool, len(defs))

	for i := range defs {
		def := &defs[i]

		properties := api.NewToolPropertiesMap()
		for name, prop := range def.InputSchema.Properties {
			toolProp := api.ToolProperty{
				Type:        api.PropertyType{prop.Type},
				Description: prop.Description,
			}
			if len(prop.Enum) > 0 {
				enum := make([]any, len(prop.Enum))
				for j, v := range prop.Enum {
					enum[j] = v
				}
				toolProp.Enum = enum
			}
			properties.Set(name, toolProp)
		}

		out[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       "object",
					Properties: properties,
					Required:   def.InputSchema.Required,
				},
			},
		}
	}

	return out
}

// stopReason extracts the termination reason from an Ollama response.
func stopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	if resp.DoneReason != "" {
		return resp.DoneReason
	}
	return "end_turn"
}
