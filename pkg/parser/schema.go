package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response field names shared with the prompt templates.
const (
	FieldThinking  = "internal_thinking"
	FieldAction    = "action"
	FieldMemory    = "memory_update"
	FieldTableTalk = "table_talk"
)

// ActionWait is the universal no-op action every seat may take.
const ActionWait = "wait_for_response"

// fieldSpec declares one field of a response schema variant.
type fieldSpec struct {
	name     string
	kind     string // "string" or "object"
	required bool
	minLen   int
	maxLen   int
}

// schemaFor returns the field specs for a schema variant.
func schemaFor(kind Kind) []fieldSpec {
	switch kind {
	case KindActiveTurn:
		return []fieldSpec{
			{name: FieldThinking, kind: "string", required: true, minLen: 8, maxLen: 4000},
			{name: FieldAction, kind: "object", required: true},
			{name: FieldMemory, kind: "string", maxLen: 600},
			{name: FieldTableTalk, kind: "string", maxLen: 300},
		}
	case KindObservation:
		return []fieldSpec{
			{name: FieldThinking, kind: "string", required: true, minLen: 8, maxLen: 4000},
			{name: FieldMemory, kind: "string", maxLen: 600},
			{name: FieldTableTalk, kind: "string", maxLen: 300},
		}
	default:
		return nil
	}
}

// actionParamTable maps each action type to the parameter fields it requires.
// Action types absent from the table require no parameters.
var actionParamTable = map[string][]string{
	"build_road":       {"from", "to"},
	"build_settlement": {"node"},
	"build_city":       {"node"},
	"move_robber":      {"hex"},
	"play_card":        {"card"},
	"trade_offer":      {"give", "receive"},
	"roll_dice":        {},
	"end_turn":         {},
	ActionWait:         {},
}

// validateSchema checks every declared field, filling deterministic defaults
// in lenient mode. Returns an empty ErrorKind on success.
func (p *Parser) validateSchema(data map[string]any, kind Kind, result *ParseResult) (ErrorKind, string) {
	lenient := p.opts.EnableRepairs && !p.opts.StrictMode

	for _, spec := range schemaFor(kind) {
		value, present := data[spec.name]

		if !present || value == nil {
			if !spec.required {
				continue
			}
			if !lenient {
				return ErrValidation, fmt.Sprintf("required field %q is missing", spec.name)
			}
			filled, ok := defaultFor(spec.name)
			if !ok {
				return ErrValidation, fmt.Sprintf("required field %q is missing and has no default", spec.name)
			}
			data[spec.name] = filled
			result.Repaired = true
			continue
		}

		switch spec.kind {
		case "string":
			s, ok := value.(string)
			if !ok {
				return ErrValidation, fmt.Sprintf("field %q must be a string", spec.name)
			}
			if spec.minLen > 0 && len(s) < spec.minLen {
				if !lenient {
					return ErrValidation, fmt.Sprintf("field %q shorter than %d characters", spec.name, spec.minLen)
				}
				for len(s) < spec.minLen {
					s += paddingSuffix
				}
				data[spec.name] = s
				result.Repaired = true
			}
			if spec.maxLen > 0 && len(s) > spec.maxLen {
				data[spec.name] = s[:spec.maxLen]
			}
		case "object":
			if _, ok := value.(map[string]any); !ok {
				// A JSON-string-encoded object still counts if it decodes.
				if s, isStr := value.(string); isStr {
					var decoded map[string]any
					if err := json.Unmarshal([]byte(s), &decoded); err == nil {
						data[spec.name] = decoded
						result.Repaired = true
						continue
					}
				}
				return ErrValidation, fmt.Sprintf("field %q must be an object", spec.name)
			}
		}
	}

	return "", ""
}

// defaultFor returns the deterministic default for a defaultable field.
func defaultFor(field string) (any, bool) {
	switch field {
	case FieldThinking:
		return placeholderThinking, true
	case FieldAction:
		return map[string]any{"type": ActionWait, "parameters": map[string]any{}}, true
	default:
		return nil, false
	}
}

// validateAction checks the action object's shape, allow-list membership,
// and per-type required parameters. Returns a human-readable problem
// description, or empty when the action is acceptable or absent.
func validateAction(data map[string]any, allowedActionTypes []string) string {
	raw, present := data[FieldAction]
	if !present || raw == nil {
		return ""
	}

	action, ok := raw.(map[string]any)
	if !ok {
		return "action is not an object"
	}

	actionType, ok := action["type"].(string)
	if !ok || actionType == "" {
		return "action has no type"
	}
	actionType = strings.ToLower(actionType)

	params, ok := action["parameters"].(map[string]any)
	if !ok {
		// Parameters may arrive JSON-string-encoded; decode before judging.
		if s, isStr := action["parameters"].(string); isStr {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				action["parameters"] = decoded
				params = decoded
			}
		}
		if params == nil {
			return fmt.Sprintf("action %q has no parameters object", actionType)
		}
	}

	if len(allowedActionTypes) > 0 {
		allowed := false
		for _, t := range allowedActionTypes {
			if strings.EqualFold(t, actionType) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Sprintf("action type %q is not currently allowed", actionType)
		}
	}

	for _, required := range actionParamTable[actionType] {
		if _, ok := params[required]; !ok {
			return fmt.Sprintf("action %q is missing required parameter %q", actionType, required)
		}
	}

	return ""
}
