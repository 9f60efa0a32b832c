package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRuntime_DeployLifecycle(t *testing.T) {
	rt := NewFakeRuntime()
	ctx := context.Background()
	spec := DeploySpec{AgentID: "agent-1", AgentKind: "RESEARCH", FabricName: "nexus", Image: "registry.local/agent:v1"}

	_, err := rt.CreateContainer(ctx, spec)
	require.Error(t, err, "creating before pulling the image should fail")

	require.NoError(t, rt.PullImage(ctx, spec.Image))

	id, err := rt.CreateContainer(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, spec.AgentID, id)

	_, err = rt.CreateContainer(ctx, spec)
	assert.Error(t, err, "duplicate container id should be rejected")

	info, err := rt.InspectContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ContainerStatePending, info.State)
	assert.Equal(t, "nexus", info.Labels[LabelManagedBy])
	assert.Equal(t, "agent-1", info.Labels[LabelAgentID])

	require.NoError(t, rt.StartContainer(ctx, id))
	info, err = rt.InspectContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ContainerStateRunning, info.State)
	assert.False(t, info.StartedAt.IsZero())

	require.NoError(t, rt.StopContainer(ctx, id, 5*time.Second))
	info, err = rt.InspectContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ContainerStateExited, info.State)

	require.NoError(t, rt.RemoveContainer(ctx, id))
	_, err = rt.InspectContainer(ctx, id)
	assert.Error(t, err)
}

func TestFakeRuntime_ListManagedFiltersByFabric(t *testing.T) {
	rt := NewFakeRuntime()
	ctx := context.Background()

	specs := []DeploySpec{
		{AgentID: "a1", FabricName: "nexus", Image: "img"},
		{AgentID: "a2", FabricName: "other-fabric", Image: "img"},
	}
	require.NoError(t, rt.PullImage(ctx, "img"))
	for _, s := range specs {
		_, err := rt.CreateContainer(ctx, s)
		require.NoError(t, err)
	}

	managed, err := rt.ListManaged(ctx, "nexus")
	require.NoError(t, err)
	require.Len(t, managed, 1)
	assert.Equal(t, "a1", managed[0].ID)
}

func TestFakeRuntime_StopUnknownContainerIsNoop(t *testing.T) {
	rt := NewFakeRuntime()
	err := rt.StopContainer(context.Background(), "does-not-exist", time.Second)
	assert.NoError(t, err)
}

func TestFakeRuntime_ReadLogsUnknownContainer(t *testing.T) {
	rt := NewFakeRuntime()
	_, err := rt.ReadLogs(context.Background(), "does-not-exist")
	assert.Error(t, err)
}
