package tools

import (
	"context"
)

// InspectNodeTool reports everything known about one node: adjacent
// resources, pip score, port, neighbors, occupancy, and buildability.
type InspectNodeTool struct {
	lib *Library
}

// NewInspectNodeTool creates a new inspect_node tool instance.
func NewInspectNodeTool(lib *Library) *InspectNodeTool {
	return &InspectNodeTool{lib: lib}
}

// Name returns the tool identifier.
func (t *InspectNodeTool) Name() string {
	return ToolInspectNode
}

// Definition returns the tool's schema.
func (t *InspectNodeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolInspectNode,
		Description: "Inspect a single board node: adjacent resources with activation numbers, pip score, port, neighbors, occupancy, and whether a settlement can be built there",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"node_id": {Type: "integer", Description: "ID of the node to inspect"},
			},
			Required: []string{"node_id"},
		},
	}
}

// Exec executes the inspection. Missing nodes yield exists=false, never an
// error, so the model can probe freely.
func (t *InspectNodeTool) Exec(_ context.Context, args map[string]any) (any, error) {
	nodeID, ok := intArg(args, "node_id")
	if !ok {
		return nil, errMissingArg(ToolInspectNode, "node_id")
	}
	return t.lib.inspect(nodeID), nil
}
