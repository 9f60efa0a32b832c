package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nexus/pkg/events"
	"github.com/cuemby/nexus/pkg/state"
	"github.com/cuemby/nexus/pkg/types"
)

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, *state.Store) {
	t.Helper()
	store := state.NewStore()
	bus := events.NewBus()
	d := New(store, bus, cfg)
	return d, store
}

func TestSubmitCommand_NodeCongested(t *testing.T) {
	d, store := newTestDispatcher(t, Config{CommandQueueDepth: 1})
	n, err := store.RegisterNode(types.NodeKindLightHost, "10.0.0.1:9000", "")
	require.NoError(t, err)

	_, err = d.SubmitCommand(n.ID, types.CommandRebootNode, nil)
	require.NoError(t, err)

	_, err = d.SubmitCommand(n.ID, types.CommandRebootNode, nil)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrCongested, kind)
}

func TestSubmitCommand_UnknownTarget(t *testing.T) {
	d, _ := newTestDispatcher(t, Config{})
	_, err := d.SubmitCommand("no-such-id", types.CommandRestartAgent, nil)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrUnknownTarget, kind)
}

func TestSubmitCommand_AgentNoCapacityAfterDeadline(t *testing.T) {
	d, store := newTestDispatcher(t, Config{CommandDeadline: 30 * time.Millisecond})
	d.Start()
	defer d.Stop()

	a, err := store.RegisterAgent("worker", "")
	require.NoError(t, err)

	sub := d.bus.Subscribe(events.SubscribeOptions{}, nil)
	defer d.bus.Unsubscribe(sub)

	_, err = d.SubmitCommand(a.ID, types.CommandDeployAgent, map[string]string{"capabilities": "cuda"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var sawFailed bool
	for !sawFailed {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		if ev.Kind == types.EventCommandFailed {
			assert.Equal(t, string(types.ErrNoCapacity), ev.Attributes["reason"])
			sawFailed = true
		}
	}
}

func TestSubmitCommand_AgentDeliversOnceNodeAppears(t *testing.T) {
	d, store := newTestDispatcher(t, Config{CommandDeadline: time.Minute})
	d.Start()
	defer d.Stop()

	a, err := store.RegisterAgent("worker", "")
	require.NoError(t, err)

	_, err = d.SubmitCommand(a.ID, types.CommandDeployAgent, nil)
	require.NoError(t, err)

	n, err := store.RegisterNode(types.NodeKindLightHost, "10.0.0.1:9000", "")
	require.NoError(t, err)
	d.NotifyNodeRegistered()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.WaitForDeadline(ctx))

	select {
	case cmd := <-d.Outbound(n.ID):
		assert.Equal(t, types.CommandDeployAgent, cmd.Kind)
	default:
		t.Fatal("expected command delivered to node's outbound queue")
	}
}

func TestSubmitCommand_FabricGlobalFansOutToRegisteredNodes(t *testing.T) {
	d, store := newTestDispatcher(t, Config{})
	n1, err := store.RegisterNode(types.NodeKindLightHost, "10.0.0.1:9000", "")
	require.NoError(t, err)
	n2, err := store.RegisterNode(types.NodeKindLightHost, "10.0.0.2:9000", "")
	require.NoError(t, err)

	_, err = d.SubmitCommand(types.FabricGlobal, types.CommandSetPriority, nil)
	require.NoError(t, err)

	for _, id := range []string{n1.ID, n2.ID} {
		select {
		case cmd := <-d.Outbound(id):
			assert.Equal(t, types.CommandSetPriority, cmd.Kind)
		default:
			t.Fatalf("expected fan-out command on node %s", id)
		}
	}
}
