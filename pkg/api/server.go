// Package api implements the Nexus RPC Server: the gRPC-facing adapter
// between the wire protocol (pkg/wire) and the fabric's internal components
// (state store, event bus, command dispatcher).
package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/cuemby/nexus/pkg/dispatcher"
	"github.com/cuemby/nexus/pkg/events"
	"github.com/cuemby/nexus/pkg/log"
	"github.com/cuemby/nexus/pkg/state"
	"github.com/cuemby/nexus/pkg/types"
	"github.com/cuemby/nexus/pkg/wire"
)

// Config tunes the server's listener and snapshot-prelude default.
type Config struct {
	ListenAddr                 string
	SnapshotPreludeOnSubscribe bool
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = ":50053"
	}
	return c
}

// Server implements wire.NexusFabricServer against the fabric's Store, Bus,
// and Dispatcher.
type Server struct {
	cfg    Config
	store  *state.Store
	bus    *events.Bus
	disp   *dispatcher.Dispatcher
	logger zerolog.Logger
	grpc   *grpc.Server
}

// NewServer constructs a Nexus RPC Server bound to the given components.
func NewServer(store *state.Store, bus *events.Bus, disp *dispatcher.Dispatcher, cfg Config) *Server {
	return &Server{
		cfg:    cfg.withDefaults(),
		store:  store,
		bus:    bus,
		disp:   disp,
		logger: log.WithComponent("api"),
	}
}

// Serve starts the gRPC listener and blocks until it stops or ctx is
// cancelled. Requests are decoded with the wire protocol's JSON codec,
// which gRPC selects from the fabric-json content-subtype each client
// dials with; no protobuf messages exist in this service.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.cfg.ListenAddr, err)
	}

	s.grpc = grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingUnaryInterceptor(s.logger)),
		grpc.ChainStreamInterceptor(loggingStreamInterceptor(s.logger)),
	)
	wire.RegisterNexusFabricServer(s.grpc, s)

	go func() {
		<-ctx.Done()
		s.grpc.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("nexus rpc server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server, if running.
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

// publish stamps and emits a FabricEvent sourced from the API server.
func (s *Server) publish(kind types.FabricEventKind, message string, attrs map[string]string, telemetry *types.Telemetry) {
	s.bus.Publish(types.FabricEvent{
		EventID:    uuid.NewString(),
		Timestamp:  time.Now(),
		Kind:       kind,
		Source:     "api",
		Message:    message,
		Attributes: attrs,
		Telemetry:  telemetry,
	})
}

// RegisterNode admits a new Node. It always assigns a fresh ID; no
// idempotency is offered at this layer.
func (s *Server) RegisterNode(ctx context.Context, req *wire.RegisterNodeRequest) (*wire.RegisterNodeResponse, error) {
	node, err := s.store.RegisterNode(req.Kind, req.Address, req.Capabilities)
	if err != nil {
		return nil, wire.ErrorFromKind(types.ErrValidation, err.Error())
	}

	s.publish(types.EventNodeRegistered, fmt.Sprintf("node %s registered", node.ID), map[string]string{
		"node_id": node.ID,
		"kind":    string(node.Kind),
		"address": node.Address,
	}, nil)
	s.disp.NotifyNodeRegistered()

	return &wire.RegisterNodeResponse{NodeID: node.ID, StatusCode: wire.StatusOK}, nil
}

// RegisterAgent admits a new Agent in PENDING status. It always assigns a
// fresh ID; an agent must exist in the store before a SubmitCommand can
// target it for placement.
func (s *Server) RegisterAgent(ctx context.Context, req *wire.RegisterAgentRequest) (*wire.RegisterAgentResponse, error) {
	agent, err := s.store.RegisterAgent(req.Kind, req.DisplayName)
	if err != nil {
		return nil, wire.ErrorFromKind(types.ErrValidation, err.Error())
	}

	s.publish(types.EventAgentRegistered, fmt.Sprintf("agent %s registered", agent.ID), map[string]string{
		"agent_id": agent.ID,
		"kind":     agent.Kind,
	}, nil)

	return &wire.RegisterAgentResponse{AgentID: agent.ID, StatusCode: wire.StatusOK}, nil
}

// UpdateStatus applies a Node or Agent status/telemetry report. observedAt
// is taken from the request so that an out-of-order report can actually
// trigger the store's STALE rejection; a caller that leaves it zero-valued
// is treated as reporting as of now.
func (s *Server) UpdateStatus(ctx context.Context, req *wire.UpdateStatusRequest) (*wire.UpdateStatusResponse, error) {
	observedAt := req.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	switch req.Target {
	case types.TargetNode:
		return s.updateNodeStatus(req, observedAt)
	case types.TargetAgent:
		return s.updateAgentStatus(req, observedAt)
	default:
		return &wire.UpdateStatusResponse{StatusCode: wire.StatusUnknownTarget, Message: "unknown status target"}, nil
	}
}

func (s *Server) updateNodeStatus(req *wire.UpdateStatusRequest, observedAt time.Time) (*wire.UpdateStatusResponse, error) {
	node, err := s.store.ApplyNodeStatus(req.ID, types.NodeStatus(req.Status), req.Telemetry, observedAt)
	if err != nil {
		return statusResponseFor(err), nil
	}
	s.publish(types.EventNodeStatusUpdated, "", map[string]string{
		"node_id": node.ID,
		"status":  string(node.Status),
	}, req.Telemetry)
	return &wire.UpdateStatusResponse{StatusCode: wire.StatusOK}, nil
}

func (s *Server) updateAgentStatus(req *wire.UpdateStatusRequest, observedAt time.Time) (*wire.UpdateStatusResponse, error) {
	agent, err := s.store.ApplyAgentStatus(req.ID, types.AgentStatus(req.Status), req.CurrentTask, req.TaskProgress, observedAt)
	if err != nil {
		return statusResponseFor(err), nil
	}
	s.publish(types.EventAgentStatusUpdated, "", map[string]string{
		"agent_id":   agent.ID,
		"new_status": string(agent.Status),
	}, nil)
	return &wire.UpdateStatusResponse{StatusCode: wire.StatusOK}, nil
}

func statusResponseFor(err error) *wire.UpdateStatusResponse {
	kind, ok := types.KindOf(err)
	if !ok {
		return &wire.UpdateStatusResponse{StatusCode: wire.StatusUnknownTarget, Message: err.Error()}
	}
	switch kind {
	case types.ErrStale:
		return &wire.UpdateStatusResponse{StatusCode: wire.StatusStale, Message: err.Error()}
	case types.ErrTerminalLocked:
		return &wire.UpdateStatusResponse{StatusCode: wire.StatusTerminalLocked, Message: err.Error()}
	default:
		return &wire.UpdateStatusResponse{StatusCode: wire.StatusUnknownTarget, Message: err.Error()}
	}
}

// SubmitCommand routes an operator command through the Command Dispatcher.
func (s *Server) SubmitCommand(ctx context.Context, req *wire.SubmitCommandRequest) (*wire.SubmitCommandResponse, error) {
	cmd, err := s.disp.SubmitCommand(req.TargetID, req.Kind, req.Parameters)
	if err != nil {
		kind, _ := types.KindOf(err)
		return &wire.SubmitCommandResponse{Accepted: false, Reason: string(kind)}, nil
	}
	return &wire.SubmitCommandResponse{CommandID: cmd.ID, Accepted: true}, nil
}

// StreamEvents serves a long-lived subscription, optionally prefixed with a
// snapshot prelude, until the client disconnects.
func (s *Server) StreamEvents(req *wire.StreamEventsRequest, stream wire.FabricEventsServer) error {
	includeSnapshot := req.IncludeSnapshot && s.cfg.SnapshotPreludeOnSubscribe
	sub := s.bus.Subscribe(events.SubscribeOptions{IncludeSnapshot: includeSnapshot}, s.snapshotFunc)
	defer s.bus.Unsubscribe(sub)

	ctx := stream.Context()
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if err == events.ErrClosed || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := stream.Send(&ev); err != nil {
			return err
		}
	}
}

func (s *Server) snapshotFunc() []types.FabricEvent {
	nodes, agents := s.store.Snapshot()
	out := make([]types.FabricEvent, 0, len(nodes)+len(agents))
	for _, n := range nodes {
		out = append(out, types.FabricEvent{
			Kind:   types.EventNodeRegistered,
			Source: "snapshot",
			Attributes: map[string]string{
				"node_id": n.ID,
				"kind":    string(n.Kind),
				"status":  string(n.Status),
			},
		})
	}
	for _, a := range agents {
		out = append(out, types.FabricEvent{
			Kind:   types.EventAgentRegistered,
			Source: "snapshot",
			Attributes: map[string]string{
				"agent_id": a.ID,
				"status":   string(a.Status),
			},
		})
	}
	return out
}

// CommandChannel is the persistent, bidirectional stream a Node Proxy opens
// once after registering: the server pushes Commands down it as the
// dispatcher delivers them, and the proxy reports results back up.
func (s *Server) CommandChannel(stream wire.CommandChannelServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if first.Register == nil {
		return wire.ErrorFromKind(types.ErrValidation, "CommandChannel must open with a register envelope")
	}
	nodeID := first.Register.NodeID
	if _, ok := s.store.GetNode(nodeID); !ok {
		return wire.ErrorFromKind(types.ErrUnknownTarget, "no such node "+nodeID)
	}

	ctx := stream.Context()
	errCh := make(chan error, 1)
	go func() {
		for {
			env, err := stream.Recv()
			if err != nil {
				errCh <- err
				return
			}
			if env.Result != nil {
				s.disp.ReportResult(*env.Result)
			}
		}
	}()

	outbound := s.disp.Outbound(nodeID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case cmd, ok := <-outbound:
			if !ok {
				return nil
			}
			if err := stream.Send(&wire.CommandEnvelope{Command: &cmd}); err != nil {
				return err
			}
		}
	}
}
