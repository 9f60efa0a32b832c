// Package dispatcher implements the Command Dispatcher: it accepts
// Commands synchronously, schedules agent-scoped commands that still need a
// node assignment, delivers commands to the right Node Proxy's outbound
// queue, and publishes the terminal COMMAND_COMPLETED/COMMAND_FAILED events
// once a proxy reports back.
package dispatcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/nexus/pkg/events"
	"github.com/cuemby/nexus/pkg/log"
	"github.com/cuemby/nexus/pkg/scheduler"
	"github.com/cuemby/nexus/pkg/state"
	"github.com/cuemby/nexus/pkg/types"
)

// DefaultCommandQueueDepth is the bound on how many undelivered commands a
// single proxy's outbound queue may hold before SubmitCommand fails with
// Congested.
const DefaultCommandQueueDepth = 64

// DefaultCommandDeadline is how long an agent-scoped command with no
// eligible node yet may wait in the pending queue before failing with
// NoCapacity.
const DefaultCommandDeadline = 60 * time.Second

// capabilitiesParam is the SubmitCommand parameter key a caller uses to
// express the capability tokens a DEPLOY_AGENT/MIGRATE_AGENT command's
// target node must satisfy, as a comma-separated list. The wire protocol's
// parameters map is free-form; this is this dispatcher's documented
// convention for it, not something the RPC schema enforces.
const capabilitiesParam = "capabilities"

// Config tunes the Dispatcher's bounds.
type Config struct {
	CommandQueueDepth int
	CommandDeadline   time.Duration
}

func (c Config) withDefaults() Config {
	if c.CommandQueueDepth <= 0 {
		c.CommandQueueDepth = DefaultCommandQueueDepth
	}
	if c.CommandDeadline <= 0 {
		c.CommandDeadline = DefaultCommandDeadline
	}
	return c
}

// outboundQueue is the bounded per-proxy delivery queue.
type outboundQueue struct {
	items chan types.Command
}

func newOutboundQueue(depth int) *outboundQueue {
	return &outboundQueue{items: make(chan types.Command, depth)}
}

func (q *outboundQueue) tryPush(cmd types.Command) bool {
	select {
	case q.items <- cmd:
		return true
	default:
		return false
	}
}

// pendingCommand is an agent-scoped command still waiting for an eligible
// node.
type pendingCommand struct {
	cmd         types.Command
	agentID     string
	req         scheduler.Requirement
	submittedAt time.Time
}

// Dispatcher owns the per-proxy outbound queues and the pending-placement
// queue for agent-scoped commands.
type Dispatcher struct {
	cfg    Config
	store  *state.Store
	bus    *events.Bus
	logger zerolog.Logger

	mu       sync.Mutex
	outbound map[string]*outboundQueue // node id -> queue
	pending  []*pendingCommand

	reeval chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Dispatcher bound to store and bus.
func New(store *state.Store, bus *events.Bus, cfg Config) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg.withDefaults(),
		store:    store,
		bus:      bus,
		logger:   log.WithComponent("dispatcher"),
		outbound: make(map[string]*outboundQueue),
		reeval:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start launches the background goroutine that re-evaluates the pending
// queue whenever a node registers and at a fallback interval, expiring
// commands that exceed CommandDeadline.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop halts the background goroutine and waits for it to exit.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-d.reeval:
			d.reevaluatePending()
		case <-ticker.C:
			d.reevaluatePending()
		}
	}
}

// NotifyNodeRegistered wakes the pending-queue re-evaluation; it is called
// by the API server immediately after a successful RegisterNode.
func (d *Dispatcher) NotifyNodeRegistered() {
	select {
	case d.reeval <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) queueFor(nodeID string) *outboundQueue {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.outbound[nodeID]
	if !ok {
		q = newOutboundQueue(d.cfg.CommandQueueDepth)
		d.outbound[nodeID] = q
	}
	return q
}

// Outbound returns the channel a Node Proxy's CommandChannel handler should
// read from for nodeID, creating the queue if this is the first time the
// node has been seen.
func (d *Dispatcher) Outbound(nodeID string) <-chan types.Command {
	return d.queueFor(nodeID).items
}

func newCommand(kind types.CommandKind, targetID string, params map[string]string) types.Command {
	return types.Command{
		ID:         uuid.NewString(),
		Kind:       kind,
		TargetID:   targetID,
		Parameters: params,
		IssuedAt:   time.Now(),
	}
}

func requirementFromParams(params map[string]string) scheduler.Requirement {
	raw, ok := params[capabilitiesParam]
	if !ok || raw == "" {
		return scheduler.Requirement{}
	}
	var tokens []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return scheduler.Requirement{Capabilities: tokens}
}

// SubmitCommand is the single entry point matching the wire protocol's
// SubmitCommand RPC. targetID is resolved against the state store to decide
// how the command is routed:
//
//   - FABRIC_GLOBAL fans the command out to every node registered at the
//     moment of submission;
//   - a known Agent ID is delivered to that agent's assigned node, or
//     queued for placement if the agent has none yet;
//   - a known Node ID is delivered directly;
//   - anything else fails with UnknownTarget.
func (d *Dispatcher) SubmitCommand(targetID string, kind types.CommandKind, params map[string]string) (types.Command, error) {
	if targetID == types.FabricGlobal {
		cmd := newCommand(kind, targetID, params)
		for _, n := range d.store.ListNodes() {
			d.deliver(n.ID, cmd)
		}
		d.publish(types.EventCommandSubmitted, cmd.ID, nil)
		return cmd, nil
	}

	if agent, ok := d.store.GetAgent(targetID); ok {
		cmd := newCommand(kind, targetID, params)
		d.publish(types.EventCommandSubmitted, cmd.ID, nil)

		if agent.AssignedNode != "" {
			if !d.deliver(agent.AssignedNode, cmd) {
				d.publish(types.EventCommandFailed, cmd.ID, map[string]string{"reason": string(types.ErrCongested)})
				return types.Command{}, types.NewError(types.ErrCongested, "proxy queue for node %s is full", agent.AssignedNode)
			}
			return cmd, nil
		}

		d.mu.Lock()
		d.pending = append(d.pending, &pendingCommand{
			cmd:         cmd,
			agentID:     targetID,
			req:         requirementFromParams(params),
			submittedAt: time.Now(),
		})
		d.mu.Unlock()
		d.NotifyNodeRegistered()
		return cmd, nil
	}

	if _, ok := d.store.GetNode(targetID); ok {
		cmd := newCommand(kind, targetID, params)
		d.publish(types.EventCommandSubmitted, cmd.ID, nil)
		if !d.deliver(targetID, cmd) {
			d.publish(types.EventCommandFailed, cmd.ID, map[string]string{"reason": string(types.ErrCongested)})
			return types.Command{}, types.NewError(types.ErrCongested, "proxy queue for node %s is full", targetID)
		}
		return cmd, nil
	}

	return types.Command{}, types.NewError(types.ErrUnknownTarget, "no such node or agent %s", targetID)
}

func (d *Dispatcher) deliver(nodeID string, cmd types.Command) bool {
	if d.queueFor(nodeID).tryPush(cmd) {
		d.publish(types.EventCommandDelivered, cmd.ID, map[string]string{"node_id": nodeID})
		return true
	}
	return false
}

func (d *Dispatcher) reevaluatePending() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	var stillPending []*pendingCommand
	nodes := d.store.ListNodes()
	now := time.Now()
	for _, p := range pending {
		nodeID, ok := scheduler.SelectNode(nodes, p.req)
		if ok {
			if d.deliver(nodeID, p.cmd) {
				if _, err := d.store.AssignNode(p.agentID, nodeID); err != nil {
					d.logger.Warn().Err(err).Str("agent_id", p.agentID).Msg("failed to record agent node assignment")
				}
				continue
			}
		}
		if now.Sub(p.submittedAt) >= d.cfg.CommandDeadline {
			d.publish(types.EventCommandFailed, p.cmd.ID, map[string]string{"reason": string(types.ErrNoCapacity)})
			continue
		}
		stillPending = append(stillPending, p)
	}

	if len(stillPending) > 0 {
		d.mu.Lock()
		d.pending = append(stillPending, d.pending...)
		d.mu.Unlock()
	}
}

// ReportResult records a Node Proxy's outcome for a dispatched command and
// publishes the matching terminal event.
func (d *Dispatcher) ReportResult(result types.CommandResult) {
	if result.Success {
		d.publish(types.EventCommandCompleted, result.CommandID, nil)
		return
	}
	d.publish(types.EventCommandFailed, result.CommandID, map[string]string{"reason": result.Error})
}

func (d *Dispatcher) publish(kind types.FabricEventKind, commandID string, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["command_id"] = commandID
	d.bus.Publish(types.FabricEvent{
		EventID:    uuid.NewString(),
		Timestamp:  time.Now(),
		Kind:       kind,
		Source:     "dispatcher",
		Attributes: attrs,
	})
}

// WaitForDeadline is a test/diagnostic helper blocking until ctx is done or
// the pending queue drains to empty.
func (d *Dispatcher) WaitForDeadline(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		d.mu.Lock()
		empty := len(d.pending) == 0
		d.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
