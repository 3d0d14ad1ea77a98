package tools

import (
	"strconv"
	"strings"
	"sync"

	"gameagent/pkg/board"
)

// Library holds the current snapshot with O(1) lookup maps rebuilt on every
// update. Tools read only from these maps and never mutate game state.
type Library struct {
	mu      sync.RWMutex
	nodes   map[int]*board.Node
	sites   map[int]*board.ResourceSite
	nodeIDs []int // Stable iteration order for scans
}

// NewLibrary creates an empty library. UpdateSnapshot must be called before
// tools can return useful results.
func NewLibrary() *Library {
	return &Library{
		nodes: make(map[int]*board.Node),
		sites: make(map[int]*board.ResourceSite),
	}
}

// UpdateSnapshot rebuilds the lookup maps from a new snapshot.
func (l *Library) UpdateSnapshot(snapshot *board.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nodes = make(map[int]*board.Node, len(snapshot.Nodes))
	l.sites = make(map[int]*board.ResourceSite, len(snapshot.Sites))
	l.nodeIDs = make([]int, 0, len(snapshot.Nodes))

	for i := range snapshot.Nodes {
		node := snapshot.Nodes[i]
		l.nodes[node.ID] = &node
		l.nodeIDs = append(l.nodeIDs, node.ID)
	}
	for i := range snapshot.Sites {
		site := snapshot.Sites[i]
		l.sites[site.ID] = &site
	}
}

// node returns the node with the given ID, or nil.
func (l *Library) node(id int) *board.Node {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nodes[id]
}

// site returns the resource site with the given ID, or nil.
func (l *Library) site(id int) *board.ResourceSite {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sites[id]
}

// allNodeIDs returns node IDs in snapshot order.
func (l *Library) allNodeIDs() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]int, len(l.nodeIDs))
	copy(ids, l.nodeIDs)
	return ids
}

// SiteInfo is one adjacent resource site as reported by inspect_node.
type SiteInfo struct {
	Resource string `json:"resource"`
	Number   int    `json:"number"`
	Pips     int    `json:"pips"`
}

// NodeReport is the result of inspecting one node.
type NodeReport struct {
	NodeID    int              `json:"node_id"`
	Exists    bool             `json:"exists"`
	Resources []SiteInfo       `json:"resources,omitempty"`
	TotalPips int              `json:"total_pips"`
	Port      string           `json:"port,omitempty"`
	Neighbors []int            `json:"neighbors,omitempty"`
	Occupied  *board.Structure `json:"occupied,omitempty"`
	Buildable bool             `json:"buildable"`
	Reason    string           `json:"reason,omitempty"`
}

// inspect computes the full report for one node. Shared by all three tools.
func (l *Library) inspect(nodeID int) NodeReport {
	node := l.node(nodeID)
	if node == nil {
		return NodeReport{NodeID: nodeID, Exists: false, Reason: "node does not exist"}
	}

	report := NodeReport{
		NodeID:    nodeID,
		Exists:    true,
		Port:      normalizePort(node.Port),
		Neighbors: append([]int(nil), node.Neighbors...),
		Occupied:  node.Occupied,
	}

	for _, siteID := range node.SiteIDs {
		site := l.site(siteID)
		if site == nil {
			continue
		}
		pips := board.PipWeight(site.Number)
		report.Resources = append(report.Resources, SiteInfo{
			Resource: site.Resource,
			Number:   site.Number,
			Pips:     pips,
		})
		report.TotalPips += pips
	}

	report.Buildable, report.Reason = l.buildability(node)
	return report
}

// buildability applies the adjacency-exclusion rule: a node is blocked when
// it or any neighbor is occupied.
func (l *Library) buildability(node *board.Node) (bool, string) {
	if node.Occupied != nil {
		return false, "occupied by " + node.Occupied.Owner + " (" + node.Occupied.Kind + ")"
	}
	for _, neighborID := range node.Neighbors {
		neighbor := l.node(neighborID)
		if neighbor != nil && neighbor.Occupied != nil {
			return false, "adjacent node " + strconv.Itoa(neighborID) + " is occupied"
		}
	}
	return true, "buildable"
}

// normalizePort flattens a port marker to a lowercase string.
func normalizePort(port string) string {
	return strings.ToLower(strings.TrimSpace(port))
}

// isGenericPort reports whether a port is the generic 3:1 kind rather than
// resource-specific.
func isGenericPort(port string) bool {
	return port == "generic" || strings.HasPrefix(port, "3:1")
}
