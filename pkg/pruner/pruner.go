// Package pruner implements the fabric's background stale-entity sweep: it
// removes nodes that have gone quiet, cascades an ERROR/NODE_LOST status to
// their agents, separately retires agents that have stopped reporting in on
// their own, and garbage-collects agents that have sat in TERMINATED for too
// long.
package pruner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/nexus/pkg/events"
	"github.com/cuemby/nexus/pkg/log"
	"github.com/cuemby/nexus/pkg/state"
	"github.com/cuemby/nexus/pkg/types"
)

// Defaults for the sweep's tunables, matching spec.md §6.3.
const (
	DefaultInterval         = 60 * time.Second
	DefaultNodeStaleAfter   = 300 * time.Second
	DefaultAgentStaleAfter  = 600 * time.Second
	DefaultRetainTerminated = 3600 * time.Second
)

// Config tunes the Pruner's sweep interval and thresholds.
type Config struct {
	Interval         time.Duration
	NodeStaleAfter   time.Duration
	AgentStaleAfter  time.Duration
	RetainTerminated time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.NodeStaleAfter <= 0 {
		c.NodeStaleAfter = DefaultNodeStaleAfter
	}
	if c.AgentStaleAfter <= 0 {
		c.AgentStaleAfter = DefaultAgentStaleAfter
	}
	if c.RetainTerminated <= 0 {
		c.RetainTerminated = DefaultRetainTerminated
	}
	return c
}

// Pruner periodically sweeps the Fabric State Store for stale nodes and
// agents past their retention window.
type Pruner struct {
	cfg    Config
	store  *state.Store
	bus    *events.Bus
	logger zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

// New constructs a Pruner bound to store and bus.
func New(store *state.Store, bus *events.Bus, cfg Config) *Pruner {
	return &Pruner{
		cfg:    cfg.withDefaults(),
		store:  store,
		bus:    bus,
		logger: log.WithComponent("pruner"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the sweep loop on a background goroutine.
func (p *Pruner) Start() {
	go p.run()
}

// Stop cancels the sweep loop and blocks until the in-flight sweep, if any,
// finishes.
func (p *Pruner) Stop(ctx context.Context) error {
	close(p.stop)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pruner) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep(time.Now())
		}
	}
}

// sweep performs one pass. It takes a single consistent read snapshot, then
// issues all resulting mutations without re-reading mid-sweep, bounding the
// write-lock hold time to the sum of the individual mutation calls rather
// than the whole sweep.
//
// Three independent checks run per pass:
//
//  1. nodes whose LastSeen gap exceeds NodeStaleAfter are removed, cascading
//     every agent still assigned to them to ERROR with reason=NODE_LOST;
//  2. agents whose own LastSeen gap exceeds AgentStaleAfter are removed
//     outright, regardless of their node's liveness — an agent can go quiet
//     while its node keeps heartbeating fine, and the two clocks are judged
//     independently;
//  3. TERMINATED agents past RetainTerminated are garbage-collected.
func (p *Pruner) sweep(now time.Time) {
	nodes, agents := p.store.Snapshot()

	staleNodes := make(map[string]bool)
	for _, n := range nodes {
		if now.Sub(n.LastSeen) > p.cfg.NodeStaleAfter {
			staleNodes[n.ID] = true
		}
	}

	for nodeID := range staleNodes {
		if _, err := p.store.RemoveNode(nodeID); err != nil {
			p.logger.Warn().Err(err).Str("node_id", nodeID).Msg("failed to remove stale node")
			continue
		}
		p.publish(types.EventNodePruned, "node_id", nodeID, map[string]string{"reason": "stale"})
		p.logger.Info().Str("node_id", nodeID).Msg("pruned stale node")
	}

	for _, a := range agents {
		switch {
		case staleNodes[a.AssignedNode] && !a.Status.Terminal():
			oldStatus := a.Status
			if _, err := p.store.ApplyAgentStatus(a.ID, types.AgentStatusError, a.CurrentTask, nil, now); err != nil {
				p.logger.Warn().Err(err).Str("agent_id", a.ID).Msg("failed to mark agent node-lost")
				continue
			}
			p.publish(types.EventAgentStatusUpdated, "agent_id", a.ID, map[string]string{
				"old_status": string(oldStatus),
				"new_status": string(types.AgentStatusError),
				"reason":     "NODE_LOST",
				"node_id":    a.AssignedNode,
			})
			p.logger.Info().Str("agent_id", a.ID).Str("node_id", a.AssignedNode).Msg("agent lost its node")

		case !a.Status.Terminal() && now.Sub(a.LastSeen) > p.cfg.AgentStaleAfter:
			if _, err := p.store.RemoveAgent(a.ID); err != nil {
				p.logger.Warn().Err(err).Str("agent_id", a.ID).Msg("failed to remove stale agent")
				continue
			}
			p.publish(types.EventAgentPruned, "agent_id", a.ID, map[string]string{"reason": "stale"})
			p.logger.Info().Str("agent_id", a.ID).Msg("pruned stale agent")

		case a.Status == types.AgentStatusTerminated && !a.TerminatedAt.IsZero() && now.Sub(a.TerminatedAt) > p.cfg.RetainTerminated:
			if _, err := p.store.RemoveAgent(a.ID); err != nil {
				p.logger.Warn().Err(err).Str("agent_id", a.ID).Msg("failed to remove terminated agent")
				continue
			}
			p.publish(types.EventAgentPruned, "agent_id", a.ID, map[string]string{"reason": "retention_expired"})
			p.logger.Info().Str("agent_id", a.ID).Msg("pruned terminated agent")
		}
	}
}

func (p *Pruner) publish(kind types.FabricEventKind, idKey, entityID string, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs[idKey] = entityID
	p.bus.Publish(types.FabricEvent{
		EventID:    uuid.NewString(),
		Timestamp:  time.Now(),
		Kind:       kind,
		Source:     "pruner",
		Attributes: attrs,
	})
}
