// Package tools provides the deterministic, read-only board query tools
// advertised to the model, plus the registry and batch executor that run
// them.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Tool name constants - use these instead of magic strings to prevent typos.
const (
	ToolInspectNode   = "inspect_node"
	ToolFindBestNodes = "find_best_nodes"
	ToolAnalyzePath   = "analyze_path_potential"
)

// Property describes one parameter in a tool's input schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// InputSchema describes a tool's parameters in machine-readable form.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// ToolDefinition is the schema advertised to the model for one tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Tool is one deterministic query over the current board snapshot.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string
	// Definition returns the tool's machine-readable schema.
	Definition() ToolDefinition
	// Exec executes the tool with the given arguments.
	Exec(ctx context.Context, args map[string]any) (any, error)
}

// Registry maps tool names to implementations and advertises their schemas.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding the three board query tools bound
// to the given library.
func NewRegistry(lib *Library) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	r.Register(NewInspectNodeTool(lib))
	r.Register(NewFindBestNodesTool(lib))
	r.Register(NewAnalyzePathTool(lib))
	return r
}

// Register adds a tool to the registry, replacing any previous tool with the
// same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get retrieves a tool by name. Unknown names produce an error listing the
// valid tools so the failure can be reinjected into the conversation.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q (valid tools: %s)", name, strings.Join(r.names(), ", "))
	}
	return tool, nil
}

// Dispatch executes a named tool against the current snapshot.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return tool.Exec(ctx, args)
}

// Definitions returns the schemas for all registered tools, sorted by name
// so the advertisement order is deterministic.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
