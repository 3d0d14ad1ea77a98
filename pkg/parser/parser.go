// Package parser interprets raw model replies: it extracts a JSON object
// from free text, applies lenient repairs, and validates the result against
// the expected response schema.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gameagent/pkg/logx"
)

// ErrorKind classifies why a parse failed.
type ErrorKind string

const (
	ErrInvalidJSON   ErrorKind = "invalid_json"
	ErrMissingField  ErrorKind = "missing_field"
	ErrInvalidType   ErrorKind = "invalid_type"
	ErrInvalidAction ErrorKind = "invalid_action"
	ErrValidation    ErrorKind = "validation_error"
)

// Kind selects the response schema variant the model was asked to follow.
type Kind string

const (
	// KindActiveTurn is the schema for the acting player: thinking plus a
	// structured action.
	KindActiveTurn Kind = "active_turn"
	// KindObservation is the schema for non-acting seats: thinking only.
	KindObservation Kind = "observation"
)

// ParseResult is the outcome of interpreting one raw model reply.
type ParseResult struct {
	Success  bool
	Data     map[string]any
	Kind     ErrorKind
	Detail   string
	RawText  string
	Repaired bool
}

// Options controls parser behavior.
type Options struct {
	// EnableRepairs turns on lenient JSON repair and default filling.
	EnableRepairs bool
	// StrictMode fails parses on schema or action violations instead of
	// defaulting and warning.
	StrictMode bool
}

// Parser validates model replies and tracks lifetime diagnostics.
type Parser struct {
	opts   Options
	logger *logx.Logger

	mu       sync.Mutex
	attempts int
	parsed   int
	failed   int
	repaired int
}

// New creates a parser with the given options.
func New(opts Options) *Parser {
	return &Parser{
		opts:   opts,
		logger: logx.NewLogger("parser"),
	}
}

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// Placeholder values used when lenient repair fills a missing field.
const (
	placeholderThinking = "(no reasoning provided)"
	paddingSuffix       = " ..."
)

// Parse interprets one raw reply. allowedActionTypes, when non-empty,
// restricts which action types pass validation for the active-turn kind.
func (p *Parser) Parse(rawText string, kind Kind, allowedActionTypes []string) ParseResult {
	p.mu.Lock()
	p.attempts++
	p.mu.Unlock()

	result := p.parse(rawText, kind, allowedActionTypes)

	p.mu.Lock()
	if result.Success {
		p.parsed++
		if result.Repaired {
			p.repaired++
		}
	} else {
		p.failed++
	}
	p.mu.Unlock()

	return result
}

func (p *Parser) parse(rawText string, kind Kind, allowedActionTypes []string) ParseResult {
	result := ParseResult{RawText: rawText}

	// Step 1: extraction.
	extracted, ok := extractJSON(rawText)
	if !ok {
		result.Kind = ErrInvalidJSON
		result.Detail = "no JSON object found in reply"
		return result
	}

	// Step 2: decoding, with lenient repair on failure.
	data, repaired, err := p.decode(extracted)
	if err != nil {
		result.Kind = ErrInvalidJSON
		result.Detail = err.Error()
		return result
	}
	result.Repaired = repaired

	// Step 3: structural validation against the schema variant.
	if errKind, detail := p.validateSchema(data, kind, &result); errKind != "" {
		result.Kind = errKind
		result.Detail = detail
		return result
	}

	// Step 4: action validation, only for the active-turn kind.
	if kind == KindActiveTurn {
		if detail := validateAction(data, allowedActionTypes); detail != "" {
			if p.opts.StrictMode {
				result.Kind = ErrInvalidAction
				result.Detail = detail
				return result
			}
			p.logger.Warn("Action validation: %s (accepting reply anyway)", detail)
		}
	}

	result.Success = true
	result.Data = data
	return result
}

// extractJSON locates a single JSON object inside free text: fenced code
// block first, then the whole trimmed text, then the outermost braces.
func extractJSON(rawText string) (string, bool) {
	if m := fencedBlockRe.FindStringSubmatch(rawText); m != nil {
		return m[1], true
	}

	trimmed := strings.TrimSpace(rawText)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, true
	}

	first := strings.Index(rawText, "{")
	last := strings.LastIndex(rawText, "}")
	if first >= 0 && last > first {
		return rawText[first : last+1], true
	}

	return "", false
}

// decode parses the extracted text, trying each repair in order when the
// first attempt fails. The first repair that produces valid JSON wins.
func (p *Parser) decode(extracted string) (map[string]any, bool, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(extracted), &data); err == nil {
		return data, false, nil
	}

	if !p.opts.EnableRepairs {
		return nil, false, fmt.Errorf("reply is not valid JSON")
	}

	repairs := []func(string) string{
		normalizeQuotes,
		stripTrailingCommas,
	}
	for _, repair := range repairs {
		candidate := repair(extracted)
		if err := json.Unmarshal([]byte(candidate), &data); err == nil {
			p.logger.DebugDomain("parser", "JSON repair succeeded")
			return data, true, nil
		}
	}

	return nil, false, fmt.Errorf("reply is not valid JSON after repair attempts")
}

// normalizeQuotes naively swaps single-quoted strings to double quotes.
// Only applied when the text failed to parse as-is, so a false positive
// just produces another parse failure.
func normalizeQuotes(text string) string {
	if strings.Contains(text, `"`) {
		return text
	}
	return strings.ReplaceAll(text, "'", `"`)
}

func stripTrailingCommas(text string) string {
	return trailingCommaRe.ReplaceAllString(text, "$1")
}

// Stats reports lifetime parse counters for diagnostics.
func (p *Parser) Stats() (attempts, parsed, failed, repaired int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts, p.parsed, p.failed, p.repaired
}
