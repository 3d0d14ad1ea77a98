package tools

import (
	"context"
	"sort"
	"strconv"
)

const strongProductionPips = 12

// Direction is one neighbor's expansion potential as seen from the origin
// node.
type Direction struct {
	TowardNode int      `json:"toward_node"`
	Score      float64  `json:"score"`
	Highlights []string `json:"highlights,omitempty"`
}

// PathPotentialResult carries all analyzed directions sorted by score.
// Errors are reported in-band so the caller always gets a well-formed
// object to reinject.
type PathPotentialResult struct {
	FromNode   int         `json:"from_node"`
	Directions []Direction `json:"directions,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// AnalyzePathTool scores expansion directions from a node, looking one or
// two steps out.
type AnalyzePathTool struct {
	lib *Library
}

// NewAnalyzePathTool creates a new analyze_path_potential tool instance.
func NewAnalyzePathTool(lib *Library) *AnalyzePathTool {
	return &AnalyzePathTool{lib: lib}
}

// Name returns the tool identifier.
func (t *AnalyzePathTool) Name() string {
	return ToolAnalyzePath
}

// Definition returns the tool's schema.
func (t *AnalyzePathTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolAnalyzePath,
		Description: "Score expansion directions from a node. Each neighbor is scored by its own pips plus, at depth 2, half the best pips reachable one step further",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"from_node":   {Type: "integer", Description: "Origin node ID"},
				"toward_node": {Type: "integer", Description: "Analyze only this neighbor"},
				"max_depth":   {Type: "integer", Description: "Lookahead depth, 1 or 2", Default: 2, Enum: []string{"1", "2"}},
			},
			Required: []string{"from_node"},
		},
	}
}

// Exec analyzes the requested directions. Domain errors (missing origin,
// non-adjacent target) come back as structured results, not Go errors.
func (t *AnalyzePathTool) Exec(_ context.Context, args map[string]any) (any, error) {
	fromID, ok := intArg(args, "from_node")
	if !ok {
		return nil, errMissingArg(ToolAnalyzePath, "from_node")
	}

	maxDepth := intArgDefault(args, "max_depth", 2)
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 2 {
		maxDepth = 2
	}

	origin := t.lib.node(fromID)
	if origin == nil {
		return PathPotentialResult{FromNode: fromID, Error: "node " + strconv.Itoa(fromID) + " does not exist"}, nil
	}

	neighbors := origin.Neighbors
	if towardID, ok := intArg(args, "toward_node"); ok {
		if !containsInt(origin.Neighbors, towardID) {
			return PathPotentialResult{
				FromNode: fromID,
				Error:    "node " + strconv.Itoa(towardID) + " is not adjacent to node " + strconv.Itoa(fromID),
			}, nil
		}
		neighbors = []int{towardID}
	}

	result := PathPotentialResult{FromNode: fromID}
	for _, neighborID := range neighbors {
		result.Directions = append(result.Directions, t.analyzeDirection(fromID, neighborID, maxDepth))
	}

	sort.SliceStable(result.Directions, func(i, j int) bool {
		return result.Directions[i].Score > result.Directions[j].Score
	})

	return result, nil
}

// analyzeDirection scores one neighbor: its own pips at full weight, plus
// half the best pips among its further neighbors when depth is 2. The origin
// node is excluded at depth 2 to prevent backtracking.
func (t *AnalyzePathTool) analyzeDirection(fromID, neighborID, maxDepth int) Direction {
	direction := Direction{TowardNode: neighborID}

	report := t.lib.inspect(neighborID)
	if !report.Exists {
		return direction
	}

	direction.Score = float64(report.TotalPips)

	if report.Port != "" {
		direction.Highlights = append(direction.Highlights, "port at depth 1 ("+report.Port+")")
	}
	if report.Buildable {
		direction.Highlights = append(direction.Highlights, "immediately buildable")
	}

	if maxDepth == 2 {
		bestDeeper := 0
		portAtDepth2 := false
		neighbor := t.lib.node(neighborID)
		for _, furtherID := range neighbor.Neighbors {
			if furtherID == fromID {
				continue
			}
			further := t.lib.inspect(furtherID)
			if !further.Exists {
				continue
			}
			if further.TotalPips > bestDeeper {
				bestDeeper = further.TotalPips
			}
			if further.Port != "" {
				portAtDepth2 = true
			}
		}
		direction.Score += 0.5 * float64(bestDeeper)
		if portAtDepth2 {
			direction.Highlights = append(direction.Highlights, "port at depth 2")
		}
	}

	// The highlight keys off the neighbor's own pips; depth-2 credit never
	// makes a weak node look strong.
	if report.TotalPips >= strongProductionPips {
		direction.Highlights = append(direction.Highlights, "strong production")
	}

	return direction
}

func containsInt(list []int, want int) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
