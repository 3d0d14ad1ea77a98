// Package board defines the immutable game-state snapshot handed to the
// agent for one turn, plus the probability weights used to value positions.
package board

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ResourceSite is one resource-producing site on the board.
type ResourceSite struct {
	ID       int    `json:"id"`
	Resource string `json:"resource"` // e.g. "wood", "brick", "desert"
	Number   int    `json:"number"`   // Activation roll; 0 for desert
}

// Structure describes a build occupying a node.
type Structure struct {
	Owner string `json:"owner"` // Seat ID of the occupying player
	Kind  string `json:"kind"`  // e.g. "settlement", "city"
}

// Node is one buildable intersection in the node graph.
type Node struct {
	ID        int        `json:"id"`
	SiteIDs   []int      `json:"site_ids"`  // Adjacent resource-production sites
	Neighbors []int      `json:"neighbors"` // Adjacent node IDs
	Port      string     `json:"port,omitempty"`
	Occupied  *Structure `json:"occupied,omitempty"`
}

// Snapshot is a point-in-time view of the board. It is never mutated by the
// agent engine; tools only read from it.
type Snapshot struct {
	Nodes []Node         `json:"nodes"`
	Sites []ResourceSite `json:"sites"`
}

// Fingerprint returns a stable hash of the snapshot, used only for change
// detection between turns.
func (s *Snapshot) Fingerprint() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// pipWeights maps an activation number to its probability weight out of 36
// dice outcomes. Desert and the robber roll carry no weight.
var pipWeights = map[int]int{
	2: 1, 3: 2, 4: 3, 5: 4, 6: 5,
	8: 5, 9: 4, 10: 3, 11: 2, 12: 1,
}

// PipWeight returns the probability weight for an activation number.
// Zero (desert) and unmapped numbers score 0.
func PipWeight(number int) int {
	return pipWeights[number]
}
