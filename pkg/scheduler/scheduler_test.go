package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nexus/pkg/types"
)

func node(id string, status types.NodeStatus, cpuFraction float64, capabilities string) types.Node {
	n := types.Node{ID: id, Status: status, Capabilities: capabilities}
	if cpuFraction != 0 {
		n.LatestTelemetry = &types.Telemetry{CPUFraction: cpuFraction}
	}
	return n
}

func TestSelectNode_PicksLeastLoaded(t *testing.T) {
	nodes := []types.Node{
		node("b", types.NodeStatusOnline, 0.8, "gpu=cuda"),
		node("a", types.NodeStatusOnline, 0.2, "gpu=cuda"),
		node("c", types.NodeStatusOnline, 0.5, "gpu=cuda"),
	}

	id, ok := SelectNode(nodes, Requirement{Capabilities: []string{"cuda"}})
	require.True(t, ok)
	assert.Equal(t, "a", id)
}

func TestSelectNode_TieBreaksLexicographically(t *testing.T) {
	nodes := []types.Node{
		node("zebra", types.NodeStatusOnline, 0, ""),
		node("apple", types.NodeStatusOnline, 0, ""),
	}

	id, ok := SelectNode(nodes, Requirement{})
	require.True(t, ok)
	assert.Equal(t, "apple", id)
}

func TestSelectNode_ExcludesOfflineAndMissingCapability(t *testing.T) {
	nodes := []types.Node{
		node("offline", types.NodeStatusOffline, 0, "gpu=cuda"),
		node("no-cuda", types.NodeStatusOnline, 0, "cpu=16"),
	}

	_, ok := SelectNode(nodes, Requirement{Capabilities: []string{"cuda"}})
	assert.False(t, ok)
}

func TestSelectNode_NoCandidates(t *testing.T) {
	_, ok := SelectNode(nil, Requirement{})
	assert.False(t, ok)
}
