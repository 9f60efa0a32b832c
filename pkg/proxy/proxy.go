// Package proxy implements the Node Proxy: the process a worker host runs to
// register itself with Nexus, report telemetry, receive commands over a
// persistent stream, and drive the local Container Lifecycle Adapter to
// carry them out.
package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/cuemby/nexus/pkg/log"
	"github.com/cuemby/nexus/pkg/runtime"
	"github.com/cuemby/nexus/pkg/types"
	"github.com/cuemby/nexus/pkg/wire"
)

// Defaults for the proxy's loop intervals, matching spec.md §6.3.
const (
	DefaultTelemetryInterval  = 10 * time.Second
	DefaultAgentPollInterval  = 15 * time.Second
	DefaultCommandGrace       = 30 * time.Second
	DefaultDeregisterTimeout  = 5 * time.Second
)

// Config configures a Node Proxy instance.
type Config struct {
	NexusAddr          string
	Kind               types.NodeKind
	Address            string
	Capabilities       string
	TelemetryInterval  time.Duration
	AgentPollInterval  time.Duration
	DialOptions        []grpc.DialOption
}

func (c Config) withDefaults() Config {
	if c.TelemetryInterval <= 0 {
		c.TelemetryInterval = DefaultTelemetryInterval
	}
	if c.AgentPollInterval <= 0 {
		c.AgentPollInterval = DefaultAgentPollInterval
	}
	if c.DialOptions == nil {
		c.DialOptions = []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.CodecName))}
	}
	return c
}

// localAgent is the proxy's bookkeeping for one agent it has been asked to
// run, independent of Nexus's own Agent record.
type localAgent struct {
	agentID     string
	containerID string
	status      types.AgentStatus
	currentTask string
}

// Proxy is the worker-side counterpart to the Nexus RPC Server: it owns one
// gRPC connection, one ContainerRuntime, and the set of agents currently
// scheduled onto this node.
type Proxy struct {
	cfg     Config
	client  wire.NexusFabricClient
	conn    *grpc.ClientConn
	runtime runtime.ContainerRuntime
	logger  zerolog.Logger

	nodeID string

	mu     sync.Mutex
	agents map[string]*localAgent

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Node Proxy. Dial happens lazily in Run.
func New(cfg Config, rt runtime.ContainerRuntime) *Proxy {
	return &Proxy{
		cfg:     cfg.withDefaults(),
		runtime: rt,
		logger:  log.WithComponent("proxy"),
		agents:  make(map[string]*localAgent),
		stop:    make(chan struct{}),
	}
}

// Run dials Nexus, registers this node, and blocks running the telemetry,
// command, and agent-watch loops until ctx is cancelled.
func (p *Proxy) Run(ctx context.Context) error {
	conn, err := grpc.NewClient(p.cfg.NexusAddr, p.cfg.DialOptions...)
	if err != nil {
		return fmt.Errorf("proxy: dial %s: %w", p.cfg.NexusAddr, err)
	}
	p.conn = conn
	defer conn.Close()
	p.client = wire.NewNexusFabricClient(conn)

	regCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	resp, err := p.client.RegisterNode(regCtx, &wire.RegisterNodeRequest{
		Kind:         p.cfg.Kind,
		Address:      p.cfg.Address,
		Capabilities: p.cfg.Capabilities,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("proxy: register node: %w", err)
	}
	p.nodeID = resp.NodeID
	p.logger.Info().Str("node_id", p.nodeID).Msg("registered with nexus")

	p.wg.Add(3)
	go p.telemetryLoop(ctx)
	go p.commandLoop(ctx)
	go p.agentWatchLoop(ctx)

	<-ctx.Done()
	close(p.stop)
	p.wg.Wait()
	return ctx.Err()
}

// telemetryLoop periodically reports this node's liveness and resource
// telemetry via UpdateStatus.
func (p *Proxy) telemetryLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.TelemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			if err := p.reportTelemetry(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("telemetry report failed")
			}
		}
	}
}

func (p *Proxy) reportTelemetry(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.TelemetryInterval)
	defer cancel()
	telemetry := p.sampleTelemetry()
	_, err := p.client.UpdateStatus(callCtx, &wire.UpdateStatusRequest{
		ID:         p.nodeID,
		Target:     types.TargetNode,
		Status:     string(types.NodeStatusOnline),
		ObservedAt: telemetry.Timestamp,
		Telemetry:  telemetry,
	})
	return err
}

// sampleTelemetry is a placeholder resource sampler; a real deployment would
// read /proc or an OS-specific API here.
func (p *Proxy) sampleTelemetry() *types.Telemetry {
	return &types.Telemetry{Timestamp: time.Now()}
}

// commandLoop opens the persistent CommandChannel stream, dispatching each
// received Command to the local executor and reporting its outcome back.
func (p *Proxy) commandLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}

		if err := p.runCommandChannel(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("command channel disconnected, retrying")
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			}
		}
	}
}

func (p *Proxy) runCommandChannel(ctx context.Context) error {
	stream, err := p.client.CommandChannel(ctx)
	if err != nil {
		return fmt.Errorf("open command channel: %w", err)
	}
	if err := stream.Send(&wire.ReportEnvelope{Register: &wire.CommandChannelRegister{NodeID: p.nodeID}}); err != nil {
		return fmt.Errorf("register command channel: %w", err)
	}

	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		if env.Command == nil {
			continue
		}
		cmd := *env.Command
		go func() {
			result := p.executeCommand(ctx, cmd)
			if err := stream.Send(&wire.ReportEnvelope{Result: &result}); err != nil {
				p.logger.Warn().Err(err).Str("command_id", cmd.ID).Msg("failed to report command result")
			}
		}()
	}
}

// agentWatchLoop periodically reports each locally-tracked agent's status,
// independent of whatever triggered the last transition.
func (p *Proxy) agentWatchLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.AgentPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.reportAgents(ctx)
		}
	}
}

func (p *Proxy) reportAgents(ctx context.Context) {
	p.mu.Lock()
	snapshot := make([]*localAgent, 0, len(p.agents))
	for _, a := range p.agents {
		snapshot = append(snapshot, a)
	}
	p.mu.Unlock()

	for _, a := range snapshot {
		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.client.UpdateStatus(callCtx, &wire.UpdateStatusRequest{
			ID:          a.agentID,
			Target:      types.TargetAgent,
			Status:      string(a.status),
			ObservedAt:  time.Now(),
			CurrentTask: a.currentTask,
		})
		cancel()
		if err != nil {
			p.logger.Warn().Err(err).Str("agent_id", a.agentID).Msg("agent status report failed")
		}
	}
}

func (p *Proxy) setAgentStatus(agentID string, status types.AgentStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[agentID]
	if !ok {
		a = &localAgent{agentID: agentID}
		p.agents[agentID] = a
	}
	a.status = status
}
