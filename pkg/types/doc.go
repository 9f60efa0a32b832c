/*
Package types defines the core data model shared across the fabric:
Nodes, Agents, Commands, and FabricEvents, plus the closed enumerations
that constrain their valid states.

# Core Types

Fabric Topology:
  - Node: a registered worker host (NodeKind, NodeStatus, Telemetry)
  - Agent: a workload scheduled onto a Node (AgentStatus)

Control:
  - Command: an operation dispatched to a Node or Agent (CommandKind)
  - CommandResult: what a Node Proxy reports back after executing one

Observability:
  - FabricEvent: one entry in the Event Bus's stream (FabricEventKind)

# State Machines

Agent status follows:

	PENDING --deploy ok--> RUNNING <--> IDLE
	PENDING --deploy fail--> ERROR
	RUNNING/IDLE --node lost--> ERROR
	ERROR --stop--> TERMINATED (terminal)

There is no distinct "node lost" status: a lost node is reported as
AGENT_STATUS_UPDATED with new_status=ERROR and a NODE_LOST reason
attribute, since ERROR is already the closed set's failure state.

# Enumeration Pattern

All enums use typed string constants, matching the convention used
throughout this package's consumers:

	type AgentStatus string
	const (
		AgentStatusPending AgentStatus = "PENDING"
		AgentStatusRunning AgentStatus = "RUNNING"
	)

# Thread Safety

Types in this package carry no synchronization of their own — they are
plain value/struct types. Mutation is always mediated by pkg/state's
single-writer Store; callers never mutate a Node or Agent in place.
*/
package types
