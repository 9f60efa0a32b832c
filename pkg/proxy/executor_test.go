package proxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nexus/pkg/runtime"
	"github.com/cuemby/nexus/pkg/types"
)

func newTestProxy() (*Proxy, *runtime.FakeRuntime) {
	rt := runtime.NewFakeRuntime()
	p := New(Config{}, rt)
	return p, rt
}

func TestExecuteCommand_DeployAgent(t *testing.T) {
	p, rt := newTestProxy()
	ctx := context.Background()
	require.NoError(t, rt.PullImage(ctx, "registry.local/agent:v1"))

	cmd := types.Command{
		ID:       "cmd-1",
		Kind:     types.CommandDeployAgent,
		TargetID: "agent-1",
		Parameters: map[string]string{
			"image":      "registry.local/agent:v1",
			"agent_kind": "RESEARCH",
		},
	}

	result := p.executeCommand(ctx, cmd)
	assert.True(t, result.Success, result.Error)
	assert.Equal(t, "cmd-1", result.CommandID)

	p.mu.Lock()
	a, ok := p.agents["agent-1"]
	p.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, types.AgentStatusRunning, a.status)

	info, err := rt.InspectContainer(ctx, a.containerID)
	require.NoError(t, err)
	assert.Equal(t, runtime.ContainerStateRunning, info.State)
}

func TestExecuteCommand_DeployAgentContainerExists(t *testing.T) {
	p, rt := newTestProxy()
	ctx := context.Background()
	require.NoError(t, rt.PullImage(ctx, "registry.local/agent:v1"))
	_, err := rt.CreateContainer(ctx, runtime.DeploySpec{AgentID: "agent-2", Image: "registry.local/agent:v1"})
	require.NoError(t, err)

	cmd := types.Command{
		ID:         "cmd-2",
		Kind:       types.CommandDeployAgent,
		TargetID:   "agent-2",
		Parameters: map[string]string{"image": "registry.local/agent:v1"},
	}

	result := p.executeCommand(ctx, cmd)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	p.mu.Lock()
	a := p.agents["agent-2"]
	p.mu.Unlock()
	require.NotNil(t, a)
	assert.Equal(t, types.AgentStatusError, a.status)
}

func TestExecuteCommand_StopAgent(t *testing.T) {
	p, rt := newTestProxy()
	ctx := context.Background()
	require.NoError(t, rt.PullImage(ctx, "img"))
	deploy := p.executeCommand(ctx, types.Command{
		ID: "d1", Kind: types.CommandDeployAgent, TargetID: "agent-3",
		Parameters: map[string]string{"image": "img"},
	})
	require.True(t, deploy.Success)

	stop := p.executeCommand(ctx, types.Command{ID: "s1", Kind: types.CommandStopAgent, TargetID: "agent-3"})
	assert.True(t, stop.Success, stop.Error)

	p.mu.Lock()
	a := p.agents["agent-3"]
	p.mu.Unlock()
	assert.Equal(t, types.AgentStatusTerminated, a.status)
}

func TestExecuteCommand_StopUnknownAgent(t *testing.T) {
	p, _ := newTestProxy()
	result := p.executeCommand(context.Background(), types.Command{ID: "s2", Kind: types.CommandStopAgent, TargetID: "ghost"})
	assert.False(t, result.Success)
}

func TestExecuteCommand_RebootNodeUnsupported(t *testing.T) {
	p, _ := newTestProxy()
	result := p.executeCommand(context.Background(), types.Command{ID: "r1", Kind: types.CommandRebootNode, TargetID: "node-1"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not supported")
}

func TestExecuteCommand_SetPriorityAcknowledgesOnly(t *testing.T) {
	p, _ := newTestProxy()
	result := p.executeCommand(context.Background(), types.Command{ID: "p1", Kind: types.CommandSetPriority, TargetID: "agent-4"})
	assert.True(t, result.Success)
}

func TestExecuteCommand_MigrateAgentStopsLocally(t *testing.T) {
	p, rt := newTestProxy()
	ctx := context.Background()
	require.NoError(t, rt.PullImage(ctx, "img"))
	deploy := p.executeCommand(ctx, types.Command{
		ID: "d2", Kind: types.CommandDeployAgent, TargetID: "agent-5",
		Parameters: map[string]string{"image": "img"},
	})
	require.True(t, deploy.Success)

	migrate := p.executeCommand(ctx, types.Command{ID: "m1", Kind: types.CommandMigrateAgent, TargetID: "agent-5"})
	assert.True(t, migrate.Success, migrate.Error)

	p.mu.Lock()
	a := p.agents["agent-5"]
	p.mu.Unlock()
	assert.Equal(t, types.AgentStatusTerminated, a.status)
}
