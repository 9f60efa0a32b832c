// Package scheduler implements the fabric's node-selection policy: a pure
// function over a node snapshot used by the Command Dispatcher to place
// agent-scoped commands that need a node assignment.
package scheduler

import (
	"sort"

	"github.com/cuemby/nexus/pkg/state"
	"github.com/cuemby/nexus/pkg/types"
)

// Requirement describes what a candidate node must satisfy. Tokens are
// matched against the node's opaque capabilities string; see
// state.HasCapability.
type Requirement struct {
	Capabilities []string
}

func (r Requirement) satisfiedBy(n types.Node) bool {
	if n.Status != types.NodeStatusOnline {
		return false
	}
	for _, want := range r.Capabilities {
		if !state.HasCapability(n, want) {
			return false
		}
	}
	return true
}

// SelectNode implements first-fit-by-capability placement: among the online
// nodes that satisfy req, the candidate with the lowest reported CPU
// fraction wins; ties are broken by ascending (lexicographic) node ID so the
// policy is fully deterministic given the same snapshot. Nodes with no
// telemetry yet are treated as 0 load.
func SelectNode(nodes []types.Node, req Requirement) (string, bool) {
	var candidates []types.Node
	for _, n := range nodes {
		if req.satisfiedBy(n) {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i].CPUFraction(), candidates[j].CPUFraction()
		if ci != cj {
			return ci < cj
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0].ID, true
}
