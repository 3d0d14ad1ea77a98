package tools

import (
	"context"
	"sort"
	"strings"
)

const (
	portBonus           = 2.0
	resourcePortBonus   = 0.5
	resourceSpreadBonus = 0.5
	defaultResultLimit  = 5
)

// ScoredNode is one candidate returned by find_best_nodes.
type ScoredNode struct {
	NodeReport
	Score float64 `json:"score"`
}

// FindBestNodesResult carries the ranked candidates plus the true match
// count before truncation.
type FindBestNodesResult struct {
	Nodes        []ScoredNode `json:"nodes"`
	TotalMatches int          `json:"total_matches"`
}

// FindBestNodesTool ranks all nodes by a composite placement score.
type FindBestNodesTool struct {
	lib *Library
}

// NewFindBestNodesTool creates a new find_best_nodes tool instance.
func NewFindBestNodesTool(lib *Library) *FindBestNodesTool {
	return &FindBestNodesTool{lib: lib}
}

// Name returns the tool identifier.
func (t *FindBestNodesTool) Name() string {
	return ToolFindBestNodes
}

// Definition returns the tool's schema.
func (t *FindBestNodesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolFindBestNodes,
		Description: "Rank board nodes by placement quality: pip score plus resource variety and port bonuses. Filters by minimum pips, required resource, and buildability",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"min_pips":          {Type: "number", Description: "Minimum total pip score", Default: 0},
				"required_resource": {Type: "string", Description: "Only include nodes touching this resource (case-insensitive)"},
				"exclude_blocked":   {Type: "boolean", Description: "Skip nodes that cannot be built on", Default: true},
				"prefer_port":       {Type: "boolean", Description: "Sort port nodes first", Default: false},
				"limit":             {Type: "integer", Description: "Maximum results to return", Default: defaultResultLimit},
			},
			Required: []string{},
		},
	}
}

// Exec scans every node through the shared inspection path, filters, scores,
// and returns the top candidates plus the untruncated match count.
func (t *FindBestNodesTool) Exec(_ context.Context, args map[string]any) (any, error) {
	minPips := floatArgDefault(args, "min_pips", 0)
	requiredResource := strings.ToLower(stringArgDefault(args, "required_resource", ""))
	excludeBlocked := boolArgDefault(args, "exclude_blocked", true)
	preferPort := boolArgDefault(args, "prefer_port", false)
	limit := intArgDefault(args, "limit", defaultResultLimit)
	if limit <= 0 {
		limit = defaultResultLimit
	}

	var matches []ScoredNode
	for _, nodeID := range t.lib.allNodeIDs() {
		report := t.lib.inspect(nodeID)

		if float64(report.TotalPips) < minPips {
			continue
		}
		if requiredResource != "" && !touchesResource(&report, requiredResource) {
			continue
		}
		if excludeBlocked && !report.Buildable {
			continue
		}

		matches = append(matches, ScoredNode{
			NodeReport: report,
			Score:      scoreNode(&report),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if preferPort {
			iPort := matches[i].Port != ""
			jPort := matches[j].Port != ""
			if iPort != jPort {
				return iPort
			}
		}
		return matches[i].Score > matches[j].Score
	})

	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	return FindBestNodesResult{Nodes: matches, TotalMatches: total}, nil
}

// scoreNode computes the composite score: pips, half a point per distinct
// resource, and a flat port bonus with extra credit for resource ports.
func scoreNode(report *NodeReport) float64 {
	score := float64(report.TotalPips)

	distinct := make(map[string]bool)
	for _, site := range report.Resources {
		distinct[strings.ToLower(site.Resource)] = true
	}
	score += resourceSpreadBonus * float64(len(distinct))

	if report.Port != "" {
		score += portBonus
		if !isGenericPort(report.Port) {
			score += resourcePortBonus
		}
	}

	return score
}

func touchesResource(report *NodeReport, resource string) bool {
	for _, site := range report.Resources {
		if strings.ToLower(site.Resource) == resource {
			return true
		}
	}
	return false
}
