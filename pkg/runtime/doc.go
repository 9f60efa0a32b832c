/*
Package runtime implements the Container Lifecycle Adapter: the Node
Proxy's interface onto whatever actually runs agent containers on a
worker host.

# ContainerRuntime

ContainerRuntime is the seam between pkg/proxy's command executor and
the host's container engine. ContainerdRuntime is the production
implementation, wrapping containerd's client API directly — pulling
images, creating and starting containers from a DeploySpec, stopping
them with a graceful SIGTERM/SIGKILL sequence, and inspecting their
current ContainerState. FakeRuntime is an in-memory implementation of
the same interface used by pkg/proxy's tests, requiring no containerd
socket.

# Container Identity

Every container created through this package carries a
managed_by=<fabric name> label plus agent_id and agent_kind labels (see
labelsFor), so ListManaged can
recover exactly the set of containers belonging to a given fabric
without depending on naming conventions.

# Namespace Isolation

ContainerdRuntime scopes all operations to the "nexus" containerd
namespace via namespaces.WithNamespace, so it never touches containers
created by another consumer of the same containerd daemon.

# Usage

	rt, err := runtime.NewContainerdRuntime("")
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

	if err := rt.PullImage(ctx, spec.Image); err != nil {
		log.Fatal(err)
	}
	id, err := rt.CreateContainer(ctx, spec)
	if err != nil {
		log.Fatal(err)
	}
	if err := rt.StartContainer(ctx, id); err != nil {
		log.Fatal(err)
	}
*/
package runtime
