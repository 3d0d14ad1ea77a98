package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gameagent/pkg/board"
)

// testBoard builds a small board with one occupied node (3), a generic port
// (2), and a resource port (5).
func testBoard() *board.Snapshot {
	return &board.Snapshot{
		Sites: []board.ResourceSite{
			{ID: 1, Resource: "wood", Number: 8},  // 5 pips
			{ID: 2, Resource: "brick", Number: 5}, // 4 pips
			{ID: 3, Resource: "wheat", Number: 10}, // 3 pips
			{ID: 4, Resource: "sheep", Number: 9},  // 4 pips
		},
		Nodes: []board.Node{
			{ID: 1, SiteIDs: []int{1, 2}, Neighbors: []int{2, 6}},
			{ID: 2, SiteIDs: []int{1, 3}, Neighbors: []int{1, 3}, Port: "generic"},
			{ID: 3, SiteIDs: []int{2, 3}, Neighbors: []int{2, 4},
				Occupied: &board.Structure{Owner: "seat-9", Kind: "settlement"}},
			{ID: 4, SiteIDs: []int{3, 4}, Neighbors: []int{3, 5}},
			{ID: 5, SiteIDs: []int{4}, Neighbors: []int{4, 6}, Port: "wood"},
			{ID: 6, SiteIDs: []int{1}, Neighbors: []int{5, 1}},
		},
	}
}

func testLibrary(t *testing.T) *Library {
	t.Helper()
	lib := NewLibrary()
	lib.UpdateSnapshot(testBoard())
	return lib
}

func TestInspectNodeReport(t *testing.T) {
	lib := testLibrary(t)
	tool := NewInspectNodeTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{"node_id": 1})
	require.NoError(t, err)

	report, ok := result.(NodeReport)
	require.True(t, ok)
	assert.True(t, report.Exists)
	assert.Equal(t, 9, report.TotalPips) // wood 5 + brick 4
	assert.True(t, report.Buildable)
	assert.Equal(t, "buildable", report.Reason)
	assert.Len(t, report.Resources, 2)
}

func TestInspectNodeNeverErrorsOnUnknownNode(t *testing.T) {
	lib := testLibrary(t)
	tool := NewInspectNodeTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{"node_id": 999})
	require.NoError(t, err)

	report := result.(NodeReport)
	assert.False(t, report.Exists)
	assert.Equal(t, "node does not exist", report.Reason)
}

func TestInspectNodeMissingArg(t *testing.T) {
	lib := testLibrary(t)
	tool := NewInspectNodeTool(lib)

	_, err := tool.Exec(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestBuildabilityAdjacencyExclusion(t *testing.T) {
	lib := testLibrary(t)

	occupied := lib.inspect(3)
	assert.False(t, occupied.Buildable)
	assert.Equal(t, "occupied by seat-9 (settlement)", occupied.Reason)

	adjacent := lib.inspect(2)
	assert.False(t, adjacent.Buildable)
	assert.Equal(t, "adjacent node 3 is occupied", adjacent.Reason)

	free := lib.inspect(6)
	assert.True(t, free.Buildable)
}

func TestFindBestNodesScoringAndOrder(t *testing.T) {
	lib := testLibrary(t)
	tool := NewFindBestNodesTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{})
	require.NoError(t, err)

	ranked := result.(FindBestNodesResult)
	// Blocked nodes 2, 3, 4 are excluded by default.
	require.Equal(t, 3, ranked.TotalMatches)
	assert.Equal(t, 1, ranked.Nodes[0].NodeID) // 9 pips + 1.0 spread = 10.0
	assert.Equal(t, 5, ranked.Nodes[1].NodeID) // 4 + 0.5 + 2.0 + 0.5 = 7.0
	assert.Equal(t, 6, ranked.Nodes[2].NodeID) // 5 + 0.5 = 5.5
	assert.InDelta(t, 10.0, ranked.Nodes[0].Score, 0.001)
	assert.InDelta(t, 7.0, ranked.Nodes[1].Score, 0.001)
}

func TestFindBestNodesIncludeBlocked(t *testing.T) {
	lib := testLibrary(t)
	tool := NewFindBestNodesTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{
		"exclude_blocked": false,
		"min_pips":        float64(8),
	})
	require.NoError(t, err)

	ranked := result.(FindBestNodesResult)
	require.Equal(t, 2, ranked.TotalMatches)
	// Generic port node 2 scores 8 + 1.0 + 2.0 = 11.0, beating node 1.
	assert.Equal(t, 2, ranked.Nodes[0].NodeID)
	assert.Equal(t, 1, ranked.Nodes[1].NodeID)
}

func TestFindBestNodesPreferPort(t *testing.T) {
	lib := testLibrary(t)
	tool := NewFindBestNodesTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{"prefer_port": true})
	require.NoError(t, err)

	ranked := result.(FindBestNodesResult)
	assert.Equal(t, 5, ranked.Nodes[0].NodeID) // Only buildable port node
}

func TestFindBestNodesResourceFilterAndLimit(t *testing.T) {
	lib := testLibrary(t)
	tool := NewFindBestNodesTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{
		"required_resource": "WOOD",
	})
	require.NoError(t, err)

	ranked := result.(FindBestNodesResult)
	require.Equal(t, 2, ranked.TotalMatches) // Nodes 1 and 6 touch wood and are buildable
	for _, n := range ranked.Nodes {
		assert.Contains(t, []int{1, 6}, n.NodeID)
	}

	result, err = tool.Exec(context.Background(), map[string]any{"limit": float64(2)})
	require.NoError(t, err)
	limited := result.(FindBestNodesResult)
	assert.Len(t, limited.Nodes, 2)
	assert.Equal(t, 3, limited.TotalMatches)
}

func TestAnalyzePathDirections(t *testing.T) {
	lib := testLibrary(t)
	tool := NewAnalyzePathTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{"from_node": 1})
	require.NoError(t, err)

	analysis := result.(PathPotentialResult)
	require.Empty(t, analysis.Error)
	require.Len(t, analysis.Directions, 2)

	// Toward 2: 8 pips + 0.5 * 7 (node 3, excluding origin) = 11.5.
	best := analysis.Directions[0]
	assert.Equal(t, 2, best.TowardNode)
	assert.InDelta(t, 11.5, best.Score, 0.001)
	assert.Contains(t, best.Highlights, "port at depth 1 (generic)")
	assert.NotContains(t, best.Highlights, "immediately buildable")

	// Toward 6: 5 pips + 0.5 * 4 (node 5) = 7.0, with a port one step further.
	second := analysis.Directions[1]
	assert.Equal(t, 6, second.TowardNode)
	assert.InDelta(t, 7.0, second.Score, 0.001)
	assert.Contains(t, second.Highlights, "immediately buildable")
	assert.Contains(t, second.Highlights, "port at depth 2")
}

func TestAnalyzePathDepthOne(t *testing.T) {
	lib := testLibrary(t)
	tool := NewAnalyzePathTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{
		"from_node":   1,
		"toward_node": 2,
		"max_depth":   1,
	})
	require.NoError(t, err)

	analysis := result.(PathPotentialResult)
	require.Len(t, analysis.Directions, 1)
	assert.InDelta(t, 8.0, analysis.Directions[0].Score, 0.001)
}

func TestAnalyzePathInBandErrors(t *testing.T) {
	lib := testLibrary(t)
	tool := NewAnalyzePathTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{"from_node": 99})
	require.NoError(t, err)
	assert.Equal(t, "node 99 does not exist", result.(PathPotentialResult).Error)

	result, err = tool.Exec(context.Background(), map[string]any{
		"from_node":   1,
		"toward_node": 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "node 4 is not adjacent to node 1", result.(PathPotentialResult).Error)
}

func TestAnalyzePathStrongProduction(t *testing.T) {
	lib := NewLibrary()
	lib.UpdateSnapshot(&board.Snapshot{
		Sites: []board.ResourceSite{
			{ID: 1, Resource: "wood", Number: 8},  // 5 pips
			{ID: 2, Resource: "ore", Number: 6},   // 5 pips
			{ID: 3, Resource: "wheat", Number: 5}, // 4 pips
			{ID: 4, Resource: "brick", Number: 9}, // 4 pips
		},
		Nodes: []board.Node{
			{ID: 1, SiteIDs: nil, Neighbors: []int{2, 4}},
			{ID: 2, SiteIDs: []int{1, 2, 3}, Neighbors: []int{1, 3}}, // 14 pips
			{ID: 3, SiteIDs: []int{4}, Neighbors: []int{2}},          // 4 pips
			{ID: 4, SiteIDs: []int{1, 3}, Neighbors: []int{1, 5}},    // 9 pips
			{ID: 5, SiteIDs: []int{1, 2}, Neighbors: []int{4}},       // 10 pips
		},
	})
	tool := NewAnalyzePathTool(lib)

	result, err := tool.Exec(context.Background(), map[string]any{"from_node": 1})
	require.NoError(t, err)

	analysis := result.(PathPotentialResult)
	require.Len(t, analysis.Directions, 2)

	// Toward 2: 14 pips of its own, scoring 14 + 0.5 * 4 = 16.
	strong := analysis.Directions[0]
	assert.Equal(t, 2, strong.TowardNode)
	assert.InDelta(t, 16.0, strong.Score, 0.001)
	assert.Contains(t, strong.Highlights, "strong production")

	// Toward 4: combined score 9 + 0.5 * 10 = 14, but only 9 pips of its
	// own. Depth-2 credit must not earn the highlight.
	weak := analysis.Directions[1]
	assert.Equal(t, 4, weak.TowardNode)
	assert.InDelta(t, 14.0, weak.Score, 0.001)
	assert.NotContains(t, weak.Highlights, "strong production")
}

func TestRegistryUnknownTool(t *testing.T) {
	registry := NewRegistry(testLibrary(t))

	_, err := registry.Get("no_such_tool")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
	assert.Contains(t, err.Error(), ToolInspectNode)

	defs := registry.Definitions()
	require.Len(t, defs, 3)
}

func TestArgDecodingToleratesJSONNumbers(t *testing.T) {
	lib := testLibrary(t)
	tool := NewInspectNodeTool(lib)

	// JSON decoding yields float64; string-encoded integers also appear.
	for _, raw := range []any{float64(1), "1", 1} {
		result, err := tool.Exec(context.Background(), map[string]any{"node_id": raw})
		require.NoError(t, err)
		assert.True(t, result.(NodeReport).Exists, "node_id as %T", raw)
	}
}
