// Package anthropic provides the Anthropic Claude implementation of the
// llm.Client interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"gameagent/pkg/llm"
	"gameagent/pkg/llm/llmerrors"
	"gameagent/pkg/tools"
	"gameagent/pkg/utils"
)

// Client wraps the Anthropic API client to implement llm.Client.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a raw Claude client; retries are applied at a higher level.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, in llm.GenerateRequest) (llm.GenerateResult, error) {
	maxTokens := int64(in.MaxTokens)
	if in.ThinkingBudget > 0 {
		// Anthropic requires max_tokens to exceed the thinking budget.
		maxTokens += int64(in.ThinkingBudget)
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(in.Text)},
		}},
	}

	if in.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: in.System,
			Type: "text",
		}}
	}

	if in.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(in.ThinkingBudget))
	} else if in.Temperature > 0 {
		// Temperature and extended thinking are mutually exclusive.
		params.Temperature = anthropic.Float(in.Temperature)
	}

	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
		if in.ForceTools {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAny: &anthropic.ToolChoiceAnyParam{},
			}
		} else {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAuto: &anthropic.ToolChoiceAutoParam{},
			}
		}
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	latency := time.Since(start)

	if err != nil {
		return llm.GenerateResult{}, llmerrors.Classify(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.GenerateResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	result := llm.GenerateResult{
		Latency:    latency,
		StopReason: string(resp.StopReason),
	}

	var thinkingText string
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			result.Text += block.AsText().Text
		case "thinking":
			thinkingText += block.AsThinking().Thinking
		case "tool_use":
			toolUse := block.AsToolUse()
			var params map[string]any
			if err := json.Unmarshal(toolUse.Input, &params); err != nil {
				return llm.GenerateResult{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err,
					fmt.Sprintf("failed to parse input for tool %s", toolUse.Name))
			}
			result.ToolRequests = append(result.ToolRequests, tools.ToolRequest{
				ID:         toolUse.ID,
				Name:       toolUse.Name,
				Parameters: params,
			})
		}
	}

	result.Tokens = llm.TokenCounts{
		Prompt:     int(resp.Usage.InputTokens),
		Completion: int(resp.Usage.OutputTokens),
		Thinking:   utils.EstimateTokens(thinkingText),
	}

	return result, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return string(c.model)
}

// convertTools maps shared tool definitions to Anthropic's schema format.
func convertTools(defs []tools.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]

		props := make(map[string]any, len(def.InputSchema.Properties))
		for name, prop := range def.InputSchema.Properties {
			propMap := map[string]any{"type": prop.Type}
			if prop.Description != "" {
				propMap["description"] = prop.Description
			}
			if len(prop.Enum) > 0 {
				propMap["enum"] = prop.Enum
			}
			props[name] = propMap
		}

		schema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: props,
			Required:   def.InputSchema.Required,
		}
		out = append(out, anthropic.ToolUnionParamOfTool(schema, def.Name))
	}
	return out
}
