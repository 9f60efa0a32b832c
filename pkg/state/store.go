// Package state implements the Fabric State Store: the single in-memory,
// single-writer source of truth for Nodes and Agents. The store performs no
// I/O and publishes nothing itself; every mutation method returns a
// post-image view of the affected entity so the caller (the API server) can
// decide what, if anything, to publish to the Event Bus.
package state

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/nexus/pkg/types"
)

// Store holds every Node and Agent currently known to Nexus behind one
// RWMutex. There is no persistence: a freshly constructed Store is always
// empty.
type Store struct {
	mu     sync.RWMutex
	nodes  map[string]*types.Node
	agents map[string]*types.Agent
}

// NewStore returns an empty Fabric State Store.
func NewStore() *Store {
	return &Store{
		nodes:  make(map[string]*types.Node),
		agents: make(map[string]*types.Agent),
	}
}

// RegisterNode admits a new Node and always assigns it a fresh ID.
// Idempotency is not provided at this layer: a proxy that restarts is a new
// registration, not a merge into its previous identity.
func (s *Store) RegisterNode(kind types.NodeKind, address, capabilities string) (types.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	id := uuid.NewString()
	node := &types.Node{
		ID:           id,
		Kind:         kind,
		Address:      address,
		Capabilities: capabilities,
		Status:       types.NodeStatusOnline,
		LastSeen:     now,
		RegisteredAt: now,
	}
	s.nodes[id] = node
	return *node, nil
}

// ApplyNodeStatus merges a status/telemetry report into an existing node.
// observedAt older than the node's current LastSeen is rejected as Stale so
// that out-of-order delivery can never roll a node's apparent state
// backwards.
func (s *Store) ApplyNodeStatus(id string, status types.NodeStatus, telemetry *types.Telemetry, observedAt time.Time) (types.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return types.Node{}, types.NewError(types.ErrUnknownTarget, "no such node %s", id)
	}
	if observedAt.Before(node.LastSeen) {
		return types.Node{}, types.NewError(types.ErrStale, "observation for node %s at %s is older than last_seen %s", id, observedAt, node.LastSeen)
	}

	node.Status = status
	if telemetry != nil {
		node.LatestTelemetry = telemetry
	}
	node.LastSeen = observedAt
	return *node, nil
}

// RemoveNode deletes a node outright. It returns UnknownTarget if the node
// does not exist so pruner/API callers can distinguish "already gone" from
// a real failure.
func (s *Store) RemoveNode(id string) (types.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return types.Node{}, types.NewError(types.ErrUnknownTarget, "no such node %s", id)
	}
	delete(s.nodes, id)
	return *node, nil
}

// RegisterAgent admits a new Agent in PENDING status and always assigns it a
// fresh ID.
func (s *Store) RegisterAgent(kind, displayName string) (types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	id := uuid.NewString()
	agent := &types.Agent{
		ID:          id,
		Kind:        kind,
		DisplayName: displayName,
		Status:      types.AgentStatusPending,
		LastSeen:    now,
		CreatedAt:   now,
	}
	s.agents[id] = agent
	return *agent, nil
}

// AssignNode records the node an agent has been scheduled onto, independent
// of any status report.
func (s *Store) AssignNode(agentID, nodeID string) (types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return types.Agent{}, types.NewError(types.ErrUnknownTarget, "no such agent %s", agentID)
	}
	agent.AssignedNode = nodeID
	return *agent, nil
}

// agentTransitions is the closed set of legal AgentStatus transitions per
// the lifecycle diagram:
//
//	PENDING  -> RUNNING, ERROR
//	RUNNING  -> IDLE, ERROR
//	IDLE     -> RUNNING, ERROR
//	ERROR    -> TERMINATED
//
// Any non-terminal status may additionally transition to ERROR, covering
// node-lost and other fault reports regardless of the agent's current phase.
var agentTransitions = map[types.AgentStatus]map[types.AgentStatus]bool{
	types.AgentStatusPending: {
		types.AgentStatusRunning: true,
	},
	types.AgentStatusRunning: {
		types.AgentStatusIdle: true,
	},
	types.AgentStatusIdle: {
		types.AgentStatusRunning: true,
	},
	types.AgentStatusError: {
		types.AgentStatusTerminated: true,
	},
}

func transitionAllowed(from, to types.AgentStatus) bool {
	if from == to {
		return true
	}
	if to == types.AgentStatusError && !from.Terminal() {
		return true
	}
	return agentTransitions[from][to]
}

// ApplyAgentStatus transitions an agent's lifecycle status and merges in
// whatever telemetry fields accompany the report. taskProgress is clamped
// into the stored agent only when non-nil; a nil taskProgress leaves the
// previously stored value untouched, so a status report with no progress
// field does not reset it to zero. TERMINATED is a dead end: any further
// status report is rejected with TerminalLocked. observedAt older than the
// agent's current LastSeen is rejected as Stale.
func (s *Store) ApplyAgentStatus(id string, status types.AgentStatus, currentTask string, taskProgress *float64, observedAt time.Time) (types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok {
		return types.Agent{}, types.NewError(types.ErrUnknownTarget, "no such agent %s", id)
	}
	if agent.Status.Terminal() {
		return types.Agent{}, types.NewError(types.ErrTerminalLocked, "agent %s is terminated", id)
	}
	if observedAt.Before(agent.LastSeen) {
		return types.Agent{}, types.NewError(types.ErrStale, "observation for agent %s at %s is older than last_seen %s", id, observedAt, agent.LastSeen)
	}
	if !transitionAllowed(agent.Status, status) {
		return types.Agent{}, types.NewError(types.ErrValidation, "agent %s cannot transition %s -> %s", id, agent.Status, status)
	}

	agent.Status = status
	if currentTask != "" {
		agent.CurrentTask = currentTask
	}
	if taskProgress != nil {
		agent.TaskProgress = types.ClampTaskProgress(*taskProgress)
	}
	agent.LastSeen = observedAt
	if status == types.AgentStatusTerminated {
		agent.TerminatedAt = observedAt
	}
	return *agent, nil
}

// RemoveAgent deletes an agent outright.
func (s *Store) RemoveAgent(id string) (types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok {
		return types.Agent{}, types.NewError(types.ErrUnknownTarget, "no such agent %s", id)
	}
	delete(s.agents, id)
	return *agent, nil
}

// GetNode returns a copy of the node with the given ID.
func (s *Store) GetNode(id string) (types.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	if !ok {
		return types.Node{}, false
	}
	return *node, true
}

// GetAgent returns a copy of the agent with the given ID.
func (s *Store) GetAgent(id string) (types.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return types.Agent{}, false
	}
	return *agent, true
}

// ListNodes returns a snapshot copy of every known node.
func (s *Store) ListNodes() []types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, *n)
	}
	return out
}

// ListAgents returns a snapshot copy of every known agent.
func (s *Store) ListAgents() []types.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, *a)
	}
	return out
}

// AgentsByNode returns a snapshot copy of every agent currently assigned to
// nodeID.
func (s *Store) AgentsByNode(nodeID string) []types.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Agent
	for _, a := range s.agents {
		if a.AssignedNode == nodeID {
			out = append(out, *a)
		}
	}
	return out
}

// Snapshot returns a consistent read of both entity collections in one
// mutex acquisition, for callers (e.g. the pruner, snapshot-prelude
// subscriptions) that need both at once.
func (s *Store) Snapshot() (nodes []types.Node, agents []types.Agent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes = make([]types.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, *n)
	}
	agents = make([]types.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, *a)
	}
	return nodes, agents
}

// HasCapability reports whether a node's opaque, self-reported capabilities
// string contains tok. Capabilities are a free-form JSON or CSV blob rather
// than structured data, so matching is a simple case-insensitive substring
// test; it is a deliberately loose policy, documented as an interpretive
// choice rather than something the wire protocol mandates.
func HasCapability(n types.Node, tok string) bool {
	return strings.Contains(strings.ToLower(n.Capabilities), strings.ToLower(tok))
}
