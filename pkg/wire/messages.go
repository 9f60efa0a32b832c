package wire

import (
	"time"

	"github.com/cuemby/nexus/pkg/types"
)

// RegisterNodeRequest is the payload for the RegisterNode RPC.
type RegisterNodeRequest struct {
	Kind         types.NodeKind `json:"kind"`
	Address      string         `json:"address"`
	Capabilities string         `json:"capabilities"`
}

// RegisterNodeResponse echoes the assigned ID and the store's decision.
type RegisterNodeResponse struct {
	NodeID     string `json:"node_id"`
	StatusCode string `json:"status_code"`
	Message    string `json:"message,omitempty"`
}

// RegisterAgentRequest is the payload for the RegisterAgent RPC. An agent is
// admitted in PENDING status ahead of any placement; a later SubmitCommand
// targeting the returned AgentID is what schedules it onto a node.
type RegisterAgentRequest struct {
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name,omitempty"`
}

// RegisterAgentResponse echoes the assigned ID and the store's decision.
type RegisterAgentResponse struct {
	AgentID    string `json:"agent_id"`
	StatusCode string `json:"status_code"`
	Message    string `json:"message,omitempty"`
}

// UpdateStatusRequest reports a status transition for a Node or an Agent.
// ObservedAt is the timestamp the caller attaches to this observation; the
// store rejects the update as STALE if it is older than the entity's
// last_seen. A zero ObservedAt is treated as "now" at the server, so
// existing callers that never set it keep working.
type UpdateStatusRequest struct {
	ID           string             `json:"id"`
	Target       types.StatusTarget `json:"target"`
	Status       string             `json:"status"`
	ObservedAt   time.Time          `json:"observed_at,omitempty"`
	Telemetry    *types.Telemetry   `json:"telemetry,omitempty"`
	CurrentTask  string             `json:"current_task,omitempty"`
	TaskProgress *float64           `json:"task_progress,omitempty"`
}

// UpdateStatusResponse carries the store's verdict: OK, STALE,
// UNKNOWN_TARGET, or TERMINAL_LOCKED.
type UpdateStatusResponse struct {
	StatusCode string `json:"status_code"`
	Message    string `json:"message,omitempty"`
}

// SubmitCommandRequest targets a Node ID, an Agent ID, or FABRIC_GLOBAL.
type SubmitCommandRequest struct {
	TargetID   string            `json:"target_id"`
	Kind       types.CommandKind `json:"kind"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// SubmitCommandResponse reports whether the command was accepted for
// delivery or placement; Reason is populated only when Accepted is false.
type SubmitCommandResponse struct {
	CommandID string `json:"command_id,omitempty"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
}

// StreamEventsRequest configures a subscription opened by StreamEvents.
type StreamEventsRequest struct {
	IncludeSnapshot bool `json:"include_snapshot"`
}

// CommandEnvelope is what the server pushes down a CommandChannel stream: a
// Command for the proxy to execute.
type CommandEnvelope struct {
	Command *types.Command `json:"command,omitempty"`
}

// ReportEnvelope is what a Node Proxy pushes up a CommandChannel stream
// after registering (Register set) or finishing a command (Result set).
type ReportEnvelope struct {
	Register *CommandChannelRegister `json:"register,omitempty"`
	Result   *types.CommandResult    `json:"result,omitempty"`
}

// CommandChannelRegister opens a proxy's long-lived command stream, binding
// it to a previously registered node ID.
type CommandChannelRegister struct {
	NodeID string `json:"node_id"`
}

// Status codes returned in UpdateStatusResponse.StatusCode and
// RegisterNodeResponse.StatusCode.
const (
	StatusOK             = "OK"
	StatusStale          = "STALE"
	StatusUnknownTarget  = "UNKNOWN_TARGET"
	StatusTerminalLocked = "TERMINAL_LOCKED"
)
