// Package runtime implements the Container Lifecycle Adapter: an abstract
// interface a Node Proxy uses to manage containers, with a containerd-backed
// implementation for real nodes and an in-memory fake for tests.
package runtime

import (
	"context"
	"io"
	"time"
)

// LabelManagedBy, LabelAgentID, and LabelAgentKind are the label convention
// every container created through this package carries, so any container on
// a host can be traced back to the fabric and agent that own it.
const (
	LabelManagedBy = "managed_by"
	LabelAgentID   = "agent_id"
	LabelAgentKind = "agent_kind"
)

// ContainerState is the lifecycle state the adapter reports for a managed
// container, independent of the Agent-level lifecycle it backs.
type ContainerState string

const (
	ContainerStatePending ContainerState = "PENDING"
	ContainerStateRunning ContainerState = "RUNNING"
	ContainerStateExited  ContainerState = "EXITED"
	ContainerStateFailed  ContainerState = "FAILED"
	ContainerStateUnknown ContainerState = "UNKNOWN"
)

// DeploySpec describes the container a DEPLOY_AGENT command asks a proxy to
// create, built from the command's Parameters map by the proxy's command
// executor.
type DeploySpec struct {
	AgentID     string
	AgentKind   string
	FabricName  string
	Image       string
	Env         []string
	CPUCores    float64
	MemoryBytes int64
	Labels      map[string]string
}

// ContainerInfo is a point-in-time read of a managed container.
type ContainerInfo struct {
	ID        string
	State     ContainerState
	ExitCode  int
	StartedAt time.Time
	Labels    map[string]string
}

// ContainerRuntime is the Container Lifecycle Adapter's abstract interface.
// A Node Proxy drives an agent's container entirely through these eight
// operations; it never talks to a concrete runtime directly.
type ContainerRuntime interface {
	PullImage(ctx context.Context, imageRef string) error
	CreateContainer(ctx context.Context, spec DeploySpec) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, grace time.Duration) error
	RemoveContainer(ctx context.Context, containerID string) error
	InspectContainer(ctx context.Context, containerID string) (ContainerInfo, error)
	ReadLogs(ctx context.Context, containerID string) (io.ReadCloser, error)
	ListManaged(ctx context.Context, fabricName string) ([]ContainerInfo, error)
}

// labelsFor builds the standard label set for a container backing spec,
// merging in any caller-supplied labels without letting them override the
// fabric's own identity labels.
func labelsFor(spec DeploySpec) map[string]string {
	labels := make(map[string]string, len(spec.Labels)+3)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[LabelManagedBy] = spec.FabricName
	labels[LabelAgentID] = spec.AgentID
	labels[LabelAgentKind] = spec.AgentKind
	return labels
}
