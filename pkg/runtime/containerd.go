package runtime

import (
	"context"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
)

const (
	// DefaultNamespace is the containerd namespace the fabric's containers
	// live under, isolating them from anything else on the host.
	DefaultNamespace = "nexus"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdRuntime implements ContainerRuntime against a local containerd
// daemon.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime dials the containerd socket at socketPath (or
// DefaultSocketPath if empty).
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("runtime: connect to containerd: %w", err)
	}

	return &ContainerdRuntime{client: client, namespace: DefaultNamespace}, nil
}

// Close releases the underlying containerd client.
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ContainerdRuntime) ns(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, r.namespace)
}

// PullImage pulls and unpacks imageRef.
func (r *ContainerdRuntime) PullImage(ctx context.Context, imageRef string) error {
	ctx = r.ns(ctx)
	if _, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("runtime: pull image %s: %w", imageRef, err)
	}
	return nil
}

// CreateContainer builds an OCI container from spec, applying CPU/memory
// limits and the fabric's identity labels.
func (r *ContainerdRuntime) CreateContainer(ctx context.Context, spec DeploySpec) (string, error) {
	ctx = r.ns(ctx)

	image, err := r.client.GetImage(ctx, spec.Image)
	if err != nil {
		return "", fmt.Errorf("runtime: get image %s: %w", spec.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(spec.Env),
	}
	if spec.CPUCores > 0 {
		shares := uint64(spec.CPUCores * 1024)
		quota := int64(spec.CPUCores * 100000)
		period := uint64(100000)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, period))
	}
	if spec.MemoryBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(spec.MemoryBytes)))
	}

	id := spec.AgentID
	ctrdContainer, err := r.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(labelsFor(spec)),
	)
	if err != nil {
		return "", fmt.Errorf("runtime: create container: %w", err)
	}

	return ctrdContainer.ID(), nil
}

// StartContainer creates and starts a task for an already-created container.
func (r *ContainerdRuntime) StartContainer(ctx context.Context, containerID string) error {
	ctx = r.ns(ctx)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("runtime: create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("runtime: start task: %w", err)
	}
	return nil
}

// StopContainer sends SIGTERM, waits up to grace for exit, then escalates to
// SIGKILL.
func (r *ContainerdRuntime) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	ctx = r.ns(ctx)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("runtime: kill task: %w", err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("runtime: wait for task: %w", err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("runtime: force kill task: %w", err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("runtime: delete task: %w", err)
	}
	return nil
}

// RemoveContainer stops (if needed) and deletes a container and its
// snapshot.
func (r *ContainerdRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	ctx = r.ns(ctx)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil
	}

	if err := r.StopContainer(ctx, containerID, 10*time.Second); err != nil {
		return fmt.Errorf("runtime: stop before remove: %w", err)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("runtime: delete container: %w", err)
	}
	return nil
}

// InspectContainer reports a container's current lifecycle state.
func (r *ContainerdRuntime) InspectContainer(ctx context.Context, containerID string) (ContainerInfo, error) {
	ctx = r.ns(ctx)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}

	labels, err := container.Labels(ctx)
	if err != nil {
		labels = nil
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return ContainerInfo{ID: containerID, State: ContainerStatePending, Labels: labels}, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("runtime: task status: %w", err)
	}

	info := ContainerInfo{ID: containerID, Labels: labels, ExitCode: int(status.ExitStatus)}
	switch status.Status {
	case containerd.Running, containerd.Paused:
		info.State = ContainerStateRunning
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			info.State = ContainerStateExited
		} else {
			info.State = ContainerStateFailed
		}
	default:
		info.State = ContainerStateUnknown
	}
	return info, nil
}

// ReadLogs is not yet backed by a persisted log sink; containerd tasks in
// this adapter run with cio.NullIO, so there is nothing to stream from.
func (r *ContainerdRuntime) ReadLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("runtime: logs not available for %s", containerID)
}

// ListManaged lists every container in the fabric's namespace whose
// managed_by label matches fabricName.
func (r *ContainerdRuntime) ListManaged(ctx context.Context, fabricName string) ([]ContainerInfo, error) {
	ctx = r.ns(ctx)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("runtime: list containers: %w", err)
	}

	out := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		labels, err := c.Labels(ctx)
		if err != nil || labels[LabelManagedBy] != fabricName {
			continue
		}
		info, err := r.InspectContainer(ctx, c.ID())
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}
