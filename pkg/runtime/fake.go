package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// FakeRuntime is a pure in-memory ContainerRuntime for tests: it has no
// teacher analog, since the teacher always drove a real containerd daemon,
// but the Node Proxy's command executor needs something deterministic and
// dependency-free to run its tests against.
type FakeRuntime struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	pulled     map[string]bool
}

type fakeContainer struct {
	info ContainerInfo
	spec DeploySpec
}

// NewFakeRuntime returns an empty fake runtime.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		containers: make(map[string]*fakeContainer),
		pulled:     make(map[string]bool),
	}
}

func (f *FakeRuntime) PullImage(ctx context.Context, imageRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled[imageRef] = true
	return nil
}

func (f *FakeRuntime) CreateContainer(ctx context.Context, spec DeploySpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.pulled[spec.Image] {
		return "", fmt.Errorf("runtime: image %s not pulled", spec.Image)
	}
	id := spec.AgentID
	if _, exists := f.containers[id]; exists {
		return "", fmt.Errorf("runtime: container %s already exists", id)
	}
	f.containers[id] = &fakeContainer{
		info: ContainerInfo{ID: id, State: ContainerStatePending, Labels: labelsFor(spec)},
		spec: spec,
	}
	return id, nil
}

func (f *FakeRuntime) StartContainer(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[containerID]
	if !ok {
		return fmt.Errorf("runtime: no such container %s", containerID)
	}
	c.info.State = ContainerStateRunning
	c.info.StartedAt = time.Now()
	return nil
}

func (f *FakeRuntime) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[containerID]
	if !ok {
		return nil
	}
	c.info.State = ContainerStateExited
	return nil
}

func (f *FakeRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, containerID)
	return nil
}

func (f *FakeRuntime) InspectContainer(ctx context.Context, containerID string) (ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[containerID]
	if !ok {
		return ContainerInfo{}, fmt.Errorf("runtime: no such container %s", containerID)
	}
	return c.info, nil
}

func (f *FakeRuntime) ReadLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[containerID]; !ok {
		return nil, fmt.Errorf("runtime: no such container %s", containerID)
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *FakeRuntime) ListManaged(ctx context.Context, fabricName string) ([]ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ContainerInfo
	for _, c := range f.containers {
		if c.info.Labels[LabelManagedBy] == fabricName {
			out = append(out, c.info)
		}
	}
	return out, nil
}
