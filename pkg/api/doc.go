/*
Package api implements the Nexus RPC Server: the gRPC-facing adapter
between the wire protocol (pkg/wire) and the fabric's internal
components (Fabric State Store, Event Bus, Command Dispatcher), plus a
plain HTTP liveness/readiness server for whatever process supervisor
or load balancer probes Nexus.

# RPC Methods

	RegisterNode    - a Node Proxy announces itself and receives a Node ID
	UpdateStatus    - a Node or Agent reports its current status/telemetry
	SubmitCommand   - an operator or Node Proxy submits a command for a target
	StreamEvents    - a subscriber opens a long-lived FabricEvent stream
	CommandChannel  - a Node Proxy's persistent bidirectional command feed

# Usage

	store := state.NewStore()
	bus := events.NewBus()
	disp := dispatcher.New(store, bus, dispatcher.Config{})
	disp.Start()

	srv := api.NewServer(store, bus, disp, api.Config{ListenAddr: ":50053"})
	if err := srv.Serve(ctx); err != nil {
		log.Fatal(err)
	}

# Error Handling

Handlers translate internal errors via wire.ErrorFromKind, mapping the
closed ErrorKind taxonomy in pkg/types/errors.go to gRPC status codes,
rather than matching on error strings. UpdateStatus instead returns a
domain-level status code (StatusStale, StatusUnknownTarget,
StatusTerminalLocked) in its response body, since those are expected
outcomes a caller should branch on, not exceptional transport errors.
*/
package api
