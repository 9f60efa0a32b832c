package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nexus/pkg/types"
)

func TestRegisterNode_DistinctIDs(t *testing.T) {
	s := NewStore()
	n1, err := s.RegisterNode(types.NodeKindLightHost, "10.0.0.1:9000", "")
	require.NoError(t, err)
	n2, err := s.RegisterNode(types.NodeKindLightHost, "10.0.0.2:9000", "")
	require.NoError(t, err)
	assert.NotEqual(t, n1.ID, n2.ID)
}

func TestApplyNodeStatus_StaleRejected(t *testing.T) {
	s := NewStore()
	n, err := s.RegisterNode(types.NodeKindHeavyHost, "10.0.0.7:9000", "cpu=16;ram=64G")
	require.NoError(t, err)

	t1 := time.Now()
	_, err = s.ApplyNodeStatus(n.ID, types.NodeStatusOnline, nil, t1)
	require.NoError(t, err)

	earlier := t1.Add(-time.Second)
	_, err = s.ApplyNodeStatus(n.ID, types.NodeStatusDegraded, nil, earlier)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrStale, kind)

	got, _ := s.GetNode(n.ID)
	assert.Equal(t, types.NodeStatusOnline, got.Status, "state unchanged after a stale update")
}

func TestApplyNodeStatus_SameTimestampIsAllowed(t *testing.T) {
	s := NewStore()
	n, err := s.RegisterNode(types.NodeKindLightHost, "10.0.0.1:9000", "")
	require.NoError(t, err)

	ts := time.Now()
	_, err = s.ApplyNodeStatus(n.ID, types.NodeStatusOnline, nil, ts)
	require.NoError(t, err)
	_, err = s.ApplyNodeStatus(n.ID, types.NodeStatusOnline, nil, ts)
	require.NoError(t, err, "a repeated observation at the same timestamp is not stale")
}

func TestApplyNodeStatus_UnknownTarget(t *testing.T) {
	s := NewStore()
	_, err := s.ApplyNodeStatus("does-not-exist", types.NodeStatusOnline, nil, time.Now())
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrUnknownTarget, kind)
}

func TestApplyAgentStatus_TerminalLocked(t *testing.T) {
	s := NewStore()
	a, err := s.RegisterAgent("worker", "")
	require.NoError(t, err)

	now := time.Now()
	_, err = s.ApplyAgentStatus(a.ID, types.AgentStatusError, "", nil, now.Add(time.Second))
	require.NoError(t, err)
	_, err = s.ApplyAgentStatus(a.ID, types.AgentStatusTerminated, "", nil, now.Add(2*time.Second))
	require.NoError(t, err)

	before, _ := s.GetAgent(a.ID)
	_, err = s.ApplyAgentStatus(a.ID, types.AgentStatusRunning, "", nil, now.Add(3*time.Second))
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrTerminalLocked, kind)

	after, _ := s.GetAgent(a.ID)
	assert.Equal(t, before, after, "terminal agent's state is unaffected by a rejected transition")
}

func floatPtr(v float64) *float64 { return &v }

func TestApplyAgentStatus_TaskProgressClamping(t *testing.T) {
	s := NewStore()
	a, err := s.RegisterAgent("worker", "")
	require.NoError(t, err)

	now := time.Now()
	_, err = s.ApplyAgentStatus(a.ID, types.AgentStatusRunning, "task-1", floatPtr(-0.5), now.Add(time.Second))
	require.NoError(t, err)
	got, _ := s.GetAgent(a.ID)
	assert.Equal(t, 0.0, got.TaskProgress)

	_, err = s.ApplyAgentStatus(a.ID, types.AgentStatusIdle, "task-1", floatPtr(1.7), now.Add(2*time.Second))
	require.NoError(t, err)
	got, _ = s.GetAgent(a.ID)
	assert.Equal(t, 1.0, got.TaskProgress)
}

func TestApplyAgentStatus_AbsentTaskProgressLeavesValueUnchanged(t *testing.T) {
	s := NewStore()
	a, err := s.RegisterAgent("worker", "")
	require.NoError(t, err)

	now := time.Now()
	_, err = s.ApplyAgentStatus(a.ID, types.AgentStatusRunning, "task-1", floatPtr(0.6), now.Add(time.Second))
	require.NoError(t, err)

	_, err = s.ApplyAgentStatus(a.ID, types.AgentStatusIdle, "task-1", nil, now.Add(2*time.Second))
	require.NoError(t, err)
	got, _ := s.GetAgent(a.ID)
	assert.Equal(t, 0.6, got.TaskProgress, "a status report with no task_progress field does not reset it to zero")
}

func TestSnapshot_OnlyStatusFieldsChangeAcrossStatusUpdate(t *testing.T) {
	s := NewStore()
	n, err := s.RegisterNode(types.NodeKindLightHost, "10.0.0.1:9000", "cpu=4")
	require.NoError(t, err)

	before, _ := s.Snapshot()
	_, err = s.ApplyNodeStatus(n.ID, types.NodeStatusDegraded, &types.Telemetry{CPUFraction: 0.9}, time.Now().Add(time.Second))
	require.NoError(t, err)
	after, _ := s.Snapshot()

	require.Len(t, before, 1)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[0].Address, after[0].Address)
	assert.Equal(t, before[0].Capabilities, after[0].Capabilities)
	assert.NotEqual(t, before[0].Status, after[0].Status)
}

func TestHasCapability(t *testing.T) {
	n := types.Node{Capabilities: "cpu=16;ram=64G;gpu=a100"}
	assert.True(t, HasCapability(n, "gpu"))
	assert.True(t, HasCapability(n, "CPU=16"))
	assert.False(t, HasCapability(n, "tpu"))
}
