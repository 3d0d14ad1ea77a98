// Package google provides the Google Gemini implementation of the
// llm.Client interface.
package google

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"gameagent/pkg/llm"
	"gameagent/pkg/llm/llmerrors"
	"gameagent/pkg/tools"
)

// Client wraps the Google GenAI client to implement llm.Client.
type Client struct {
	client *genai.Client
	apiKey string
	model  string
}

// New creates a raw Gemini client; retries are applied at a higher level.
// Client creation requires a context, so it is deferred to the first call.
func New(apiKey, model string) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
	}
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, in llm.GenerateRequest) (llm.GenerateResult, error) {
	if c.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.GenerateResult{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "failed to create Gemini client")
		}
		c.client = client
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: in.Text}},
	}}

	//nolint:gosec // MaxTokens validated at higher layer, overflow acceptable
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(in.MaxTokens),
	}

	if in.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: in.System}},
		}
	}

	if in.ThinkingBudget > 0 {
		//nolint:gosec // Budget bounded by config validation
		budget := int32(in.ThinkingBudget)
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	} else if in.Temperature > 0 {
		temp := float32(in.Temperature)
		config.Temperature = &temp
	}

	if len(in.Tools) > 0 {
		config.Tools = []*genai.Tool{
			{FunctionDeclarations: convertTools(in.Tools)},
		}
		if in.ForceTools {
			// Gemini may return empty replies when not forced to use tools,
			// so mode ANY is set whenever a tool round is required.
			config.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{
					Mode: genai.FunctionCallingConfigModeAny,
				},
			}
		}
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	latency := time.Since(start)

	if err != nil {
		return llm.GenerateResult{}, llmerrors.Classify(err)
	}
	if result == nil {
		return llm.GenerateResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	out := llm.GenerateResult{
		Text:       result.Text(),
		Latency:    latency,
		StopReason: stopReason(result),
	}

	for _, call := range result.FunctionCalls() {
		// Gemini omits function call IDs; fall back to the function name so
		// results can still be matched to calls.
		id := call.ID
		if id == "" {
			id = call.Name
		}
		out.ToolRequests = append(out.ToolRequests, tools.ToolRequest{
			ID:         id,
			Name:       call.Name,
			Parameters: call.Args,
		})
	}

	if result.UsageMetadata != nil {
		out.Tokens = llm.TokenCounts{
			Prompt:     int(result.UsageMetadata.PromptTokenCount),
			Completion: int(result.UsageMetadata.CandidatesTokenCount),
			Thinking:   int(result.UsageMetadata.ThoughtsTokenCount),
		}
	}

	if out.Text == "" && len(out.ToolRequests) == 0 {
		return llm.GenerateResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Gemini response carried no text or tool calls")
	}

	return out, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return c.model
}

// convertTools maps shared tool definitions to Gemini function declarations.
func convertTools(defs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(defs))

	for i := range defs {
		def := &defs[i]

		properties := make(map[string]*genai.Schema, len(def.InputSchema.Properties))
		//nolint:gocritic // rangeValCopy: Property size acceptable for this use case
		for name, prop := range def.InputSchema.Properties {
			properties[name] = convertProperty(&prop)
		}

		declarations[i] = &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   def.InputSchema.Required,
			},
		}
	}

	return declarations
}

// convertProperty converts a tool property to Gemini schema format.
func convertProperty(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{Description: prop.Description}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}

	return schema
}

// stopReason extracts the finish reason from a Gemini response, defaulting
// to end_turn for normal completion.
func stopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) > 0 && result.Candidates[0].FinishReason != "" {
		return fmt.Sprint(result.Candidates[0].FinishReason)
	}
	return "end_turn"
}
