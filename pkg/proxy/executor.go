package proxy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cuemby/nexus/pkg/runtime"
	"github.com/cuemby/nexus/pkg/types"
)

// executeCommand maps a dispatched Command to a Container Lifecycle Adapter
// operation and returns the outcome to report back over the command
// channel.
func (p *Proxy) executeCommand(ctx context.Context, cmd types.Command) types.CommandResult {
	var err error
	switch cmd.Kind {
	case types.CommandDeployAgent:
		err = p.deployAgent(ctx, cmd)
	case types.CommandStopAgent:
		err = p.stopAgent(ctx, cmd)
	case types.CommandRestartAgent:
		err = p.restartAgent(ctx, cmd)
	case types.CommandMigrateAgent:
		err = p.migrateAgent(ctx, cmd)
	case types.CommandRebootNode:
		err = fmt.Errorf("proxy: REBOOT_NODE is not supported on this platform")
	case types.CommandSetPriority, types.CommandScale:
		err = p.acknowledgeOnly(cmd)
	default:
		err = fmt.Errorf("proxy: unsupported command kind %s", cmd.Kind)
	}

	if err != nil {
		return types.CommandResult{CommandID: cmd.ID, Success: false, Error: err.Error()}
	}
	return types.CommandResult{CommandID: cmd.ID, Success: true}
}

func agentIDFor(cmd types.Command) string {
	if id := cmd.Parameters["agent_id"]; id != "" {
		return id
	}
	return cmd.TargetID
}

func (p *Proxy) deployAgent(ctx context.Context, cmd types.Command) error {
	agentID := agentIDFor(cmd)
	spec := runtime.DeploySpec{
		AgentID:    agentID,
		AgentKind:  cmd.Parameters["agent_kind"],
		FabricName: "nexus",
		Image:      cmd.Parameters["image"],
	}
	if cores, err := strconv.ParseFloat(cmd.Parameters["cpu_cores"], 64); err == nil {
		spec.CPUCores = cores
	}
	if mem, err := strconv.ParseInt(cmd.Parameters["memory_bytes"], 10, 64); err == nil {
		spec.MemoryBytes = mem
	}

	p.setAgentStatus(agentID, types.AgentStatusPending)

	if err := p.runtime.PullImage(ctx, spec.Image); err != nil {
		p.setAgentStatus(agentID, types.AgentStatusError)
		return fmt.Errorf("pull image: %w", err)
	}
	containerID, err := p.runtime.CreateContainer(ctx, spec)
	if err != nil {
		p.setAgentStatus(agentID, types.AgentStatusError)
		return fmt.Errorf("create container: %w", err)
	}
	if err := p.runtime.StartContainer(ctx, containerID); err != nil {
		p.setAgentStatus(agentID, types.AgentStatusError)
		return fmt.Errorf("start container: %w", err)
	}

	p.mu.Lock()
	p.agents[agentID] = &localAgent{agentID: agentID, containerID: containerID, status: types.AgentStatusRunning}
	p.mu.Unlock()
	return nil
}

func (p *Proxy) stopAgent(ctx context.Context, cmd types.Command) error {
	agentID := agentIDFor(cmd)
	p.mu.Lock()
	a, ok := p.agents[agentID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no local agent %s", agentID)
	}

	grace := DefaultCommandGrace
	if err := p.runtime.StopContainer(ctx, a.containerID, grace); err != nil {
		return fmt.Errorf("stop container: %w", err)
	}
	if err := p.runtime.RemoveContainer(ctx, a.containerID); err != nil {
		return fmt.Errorf("remove container: %w", err)
	}
	p.setAgentStatus(agentID, types.AgentStatusTerminated)
	return nil
}

func (p *Proxy) restartAgent(ctx context.Context, cmd types.Command) error {
	agentID := agentIDFor(cmd)
	p.mu.Lock()
	a, ok := p.agents[agentID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no local agent %s", agentID)
	}

	if err := p.runtime.StopContainer(ctx, a.containerID, DefaultCommandGrace); err != nil {
		return fmt.Errorf("stop container: %w", err)
	}
	if err := p.runtime.StartContainer(ctx, a.containerID); err != nil {
		p.setAgentStatus(agentID, types.AgentStatusError)
		return fmt.Errorf("restart container: %w", err)
	}
	p.setAgentStatus(agentID, types.AgentStatusRunning)
	return nil
}

// migrateAgent stops and removes the local agent, exactly as STOP_AGENT
// does. It performs no deploy, and the dispatcher issues no follow-up
// DEPLOY_AGENT when the result is reported, so the agent is not started
// on another node.
func (p *Proxy) migrateAgent(ctx context.Context, cmd types.Command) error {
	return p.stopAgent(ctx, cmd)
}

// acknowledgeOnly backs commands this proxy has no local effect for beyond
// recording receipt (SET_PRIORITY, SCALE): it reports success without
// acting on them.
func (p *Proxy) acknowledgeOnly(cmd types.Command) error {
	return nil
}
