// Package openai provides the OpenAI implementation of the llm.Client
// interface, using the Responses API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"gameagent/pkg/llm"
	"gameagent/pkg/llm/llmerrors"
	"gameagent/pkg/tools"
)

// Client wraps the official OpenAI Go client to implement llm.Client.
type Client struct {
	client openai.Client
	model  string
}

// New creates a raw OpenAI client; retries are applied at a higher level.
func New(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Generate implements llm.Client. Reasoning depth is controlled server-side
// for GPT-5 class models, so the thinking budget is advisory here.
func (c *Client) Generate(ctx context.Context, in llm.GenerateRequest) (llm.GenerateResult, error) {
	inputText := in.Text
	if in.System != "" {
		inputText = fmt.Sprintf("System: %s\n\n%s", in.System, in.Text)
	}

	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(c.model),
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText)},
	}

	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
	}

	start := time.Now()
	resp, err := c.client.Responses.New(ctx, params)
	latency := time.Since(start)

	if err != nil {
		return llm.GenerateResult{}, llmerrors.Classify(err)
	}
	if resp == nil {
		return llm.GenerateResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	result := llm.GenerateResult{Latency: latency}

	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		funcItem := item.AsFunctionCall()
		var parameters map[string]any
		if funcItem.Arguments != "" {
			if err := json.Unmarshal([]byte(funcItem.Arguments), &parameters); err != nil {
				// Unparseable arguments: skip the call rather than failing
				// the whole reply.
				continue
			}
		}
		result.ToolRequests = append(result.ToolRequests, tools.ToolRequest{
			ID:         funcItem.ID,
			Name:       funcItem.Name,
			Parameters: parameters,
		})
	}

	result.Text = resp.OutputText()
	result.Tokens = llm.TokenCounts{
		Prompt:     int(resp.Usage.InputTokens),
		Completion: int(resp.Usage.OutputTokens),
		Thinking:   int(resp.Usage.OutputTokensDetails.ReasoningTokens),
	}

	if result.Text == "" && len(result.ToolRequests) == 0 {
		return llm.GenerateResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI response carried no text or tool calls")
	}

	return result, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return c.model
}

// convertTools maps shared tool definitions to the Responses API format.
func convertTools(defs []tools.ToolDefinition) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]

		properties := make(map[string]any, len(def.InputSchema.Properties))
		for name, prop := range def.InputSchema.Properties {
			schema := map[string]any{
				"type":        prop.Type,
				"description": prop.Description,
			}
			if len(prop.Enum) > 0 {
				schema["enum"] = prop.Enum
			}
			properties[name] = schema
		}

		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters: openai.FunctionParameters(map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   def.InputSchema.Required,
				}),
			},
		})
	}
	return out
}
