// Package types defines the domain model shared by every component of the
// fabric: nodes, the agents scheduled onto them, the telemetry they report,
// the commands dispatched to them, and the events the bus fans out about
// all of the above.
package types

import "time"

// NodeKind is the closed set of worker kinds a Node Proxy can register as.
type NodeKind string

const (
	NodeKindHeavyHost NodeKind = "HEAVY_HOST"
	NodeKindLightHost NodeKind = "LIGHT_HOST"
	NodeKindAgentProxy NodeKind = "AGENT_PROXY"
	NodeKindUnknown    NodeKind = "UNKNOWN"
)

// NodeStatus is the liveness state Nexus assigns to a Node.
type NodeStatus string

const (
	NodeStatusOnline   NodeStatus = "ONLINE"
	NodeStatusDegraded NodeStatus = "DEGRADED"
	NodeStatusOffline  NodeStatus = "OFFLINE"
)

// Telemetry is an immutable snapshot attached to a status update.
type Telemetry struct {
	CPUFraction    float64   `json:"cpu_fraction"`
	MemoryFraction float64   `json:"memory_fraction"`
	NetInBps       int64     `json:"net_in_bps,omitempty"`
	NetOutBps      int64     `json:"net_out_bps,omitempty"`
	DiskUsedBytes  int64     `json:"disk_used_bytes,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Node represents a single worker machine fronted by a Node Proxy.
//
// Capabilities is the proxy's self-reported opaque string (JSON or CSV,
// e.g. "cpu=16;ram=64G;gpu=a100") rather than a structured type; the
// scheduling policy matches against it by substring containment.
type Node struct {
	ID              string     `json:"id"`
	Kind            NodeKind   `json:"kind"`
	Address         string     `json:"address"`
	Capabilities    string     `json:"capabilities"`
	Status          NodeStatus `json:"status"`
	LastSeen        time.Time  `json:"last_seen"`
	RegisteredAt    time.Time  `json:"registered_at"`
	LatestTelemetry *Telemetry `json:"latest_telemetry,omitempty"`
}

// CPUFraction returns the node's most recently reported CPU load, or 0 if
// no telemetry has been reported yet.
func (n *Node) CPUFraction() float64 {
	if n.LatestTelemetry == nil {
		return 0
	}
	return n.LatestTelemetry.CPUFraction
}

// AgentStatus is the lifecycle state of an Agent:
//
//	PENDING ──deploy-ok──► RUNNING ──update──► IDLE
//	   │                      │  ▲                │
//	   │                      │  └──update────────┘
//	   │                      ▼
//	   └──deploy-fail──► ERROR ──stop──► TERMINATED (terminal)
//	                       ▲
//	                       └──node-lost──(any non-terminal state)
type AgentStatus string

const (
	AgentStatusPending    AgentStatus = "PENDING"
	AgentStatusRunning    AgentStatus = "RUNNING"
	AgentStatusIdle       AgentStatus = "IDLE"
	AgentStatusError      AgentStatus = "ERROR"
	AgentStatusTerminated AgentStatus = "TERMINATED"
)

// Terminal reports whether no further status transitions are accepted from s.
func (s AgentStatus) Terminal() bool {
	return s == AgentStatusTerminated
}

// Agent represents a single managed workload unit, 1:1 with a container on
// its assigned node.
type Agent struct {
	ID           string      `json:"id"`
	DisplayName  string      `json:"display_name,omitempty"`
	Kind         string      `json:"kind,omitempty"`
	AssignedNode string      `json:"assigned_node_id,omitempty"`
	Status       AgentStatus `json:"status"`
	CurrentTask  string      `json:"current_task,omitempty"`
	TaskProgress float64     `json:"task_progress"`
	LastSeen     time.Time   `json:"last_seen"`
	CreatedAt    time.Time   `json:"created_at"`
	TerminatedAt time.Time   `json:"terminated_at,omitempty"`
}

// ClampTaskProgress clamps v to the [0,1] range invariant task_progress must
// always satisfy.
func ClampTaskProgress(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// StatusTarget discriminates which map an UpdateStatus call addresses.
type StatusTarget string

const (
	TargetNode  StatusTarget = "NODE"
	TargetAgent StatusTarget = "AGENT"
)

// CommandKind is the closed set of operations Nexus can dispatch to a Node
// Proxy.
type CommandKind string

const (
	CommandDeployAgent  CommandKind = "DEPLOY_AGENT"
	CommandStopAgent    CommandKind = "STOP_AGENT"
	CommandRestartAgent CommandKind = "RESTART_AGENT"
	CommandMigrateAgent CommandKind = "MIGRATE_AGENT"
	CommandRebootNode   CommandKind = "REBOOT_NODE"
	CommandSetPriority  CommandKind = "SET_PRIORITY"
	CommandScale        CommandKind = "SCALE"
)

// FabricGlobal is the sentinel target ID meaning "every currently
// registered node", as opposed to a single Node or Agent ID.
const FabricGlobal = "FABRIC_GLOBAL"

// Command is an operator-initiated action the dispatcher routes to a proxy.
type Command struct {
	ID         string            `json:"id"`
	TargetID   string            `json:"target_id"`
	Kind       CommandKind       `json:"kind"`
	Parameters map[string]string `json:"parameters,omitempty"`
	IssuedAt   time.Time         `json:"issued_at"`
}

// CommandResult is what a Node Proxy reports back after attempting to carry
// out a Command, sent up the wire protocol's CommandChannel stream.
type CommandResult struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// FabricEventKind is the closed set of event kinds the Event Bus can carry.
type FabricEventKind string

const (
	EventNodeRegistered    FabricEventKind = "NODE_REGISTERED"
	EventNodeStatusUpdated FabricEventKind = "NODE_STATUS_UPDATED"
	EventNodePruned        FabricEventKind = "NODE_PRUNED"
	EventAgentRegistered   FabricEventKind = "AGENT_REGISTERED"
	EventAgentStatusUpdated FabricEventKind = "AGENT_STATUS_UPDATED"
	EventAgentPruned       FabricEventKind = "AGENT_PRUNED"
	EventCommandSubmitted  FabricEventKind = "COMMAND_SUBMITTED"
	EventCommandDelivered  FabricEventKind = "COMMAND_DELIVERED"
	EventCommandCompleted  FabricEventKind = "COMMAND_COMPLETED"
	EventCommandFailed     FabricEventKind = "COMMAND_FAILED"
	EventStreamLagged      FabricEventKind = "STREAM_LAGGED"
	EventSnapshotBegin     FabricEventKind = "SNAPSHOT_BEGIN"
	EventSnapshotEnd       FabricEventKind = "SNAPSHOT_END"
)

// FabricEvent is the unit of information the Event Bus fans out to
// subscribers.
type FabricEvent struct {
	EventID    string            `json:"event_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Kind       FabricEventKind   `json:"kind"`
	Source     string            `json:"source"`
	Message    string            `json:"message,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Telemetry  *Telemetry        `json:"telemetry,omitempty"`
}
