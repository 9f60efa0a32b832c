package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/nexus/pkg/types"
)

// ServiceName is the gRPC service path every RPC in this package is
// registered under, in place of a protoc-generated package.Service name.
const ServiceName = "nexus.Fabric"

// NexusFabricServer is implemented by pkg/api.Server. It mirrors exactly
// the six RPCs the wire protocol exposes; StreamEvents and CommandChannel
// are streaming and receive a typed stream wrapper instead of a single
// request/response pair.
type NexusFabricServer interface {
	RegisterNode(context.Context, *RegisterNodeRequest) (*RegisterNodeResponse, error)
	RegisterAgent(context.Context, *RegisterAgentRequest) (*RegisterAgentResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*UpdateStatusResponse, error)
	SubmitCommand(context.Context, *SubmitCommandRequest) (*SubmitCommandResponse, error)
	StreamEvents(*StreamEventsRequest, FabricEventsServer) error
	CommandChannel(CommandChannelServer) error
}

// FabricEventsServer is the server side of the StreamEvents server-stream.
type FabricEventsServer interface {
	Send(*types.FabricEvent) error
	grpc.ServerStream
}

type fabricEventsServer struct {
	grpc.ServerStream
}

func (s *fabricEventsServer) Send(ev *types.FabricEvent) error {
	return s.ServerStream.SendMsg(ev)
}

// CommandChannelServer is the server side of the CommandChannel bidi-stream:
// a Node Proxy's persistent command-delivery connection.
type CommandChannelServer interface {
	Send(*CommandEnvelope) error
	Recv() (*ReportEnvelope, error)
	grpc.ServerStream
}

type commandChannelServer struct {
	grpc.ServerStream
}

func (s *commandChannelServer) Send(e *CommandEnvelope) error {
	return s.ServerStream.SendMsg(e)
}

func (s *commandChannelServer) Recv() (*ReportEnvelope, error) {
	m := new(ReportEnvelope)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func registerNodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RegisterNodeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NexusFabricServer).RegisterNode(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RegisterNode"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NexusFabricServer).RegisterNode(ctx, req.(*RegisterNodeRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func registerAgentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RegisterAgentRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NexusFabricServer).RegisterAgent(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RegisterAgent"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NexusFabricServer).RegisterAgent(ctx, req.(*RegisterAgentRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func updateStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(UpdateStatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NexusFabricServer).UpdateStatus(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/UpdateStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NexusFabricServer).UpdateStatus(ctx, req.(*UpdateStatusRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func submitCommandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(SubmitCommandRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NexusFabricServer).SubmitCommand(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/SubmitCommand"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NexusFabricServer).SubmitCommand(ctx, req.(*SubmitCommandRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	req := new(StreamEventsRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(NexusFabricServer).StreamEvents(req, &fabricEventsServer{stream})
}

func commandChannelHandler(srv any, stream grpc.ServerStream) error {
	return srv.(NexusFabricServer).CommandChannel(&commandChannelServer{stream})
}

// ServiceDesc is the hand-written equivalent of a protoc-gen-go-grpc
// _grpc.pb.go's ServiceDesc: it wires method/stream names to handlers so
// grpc.Server.RegisterService can dispatch without generated code.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NexusFabricServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterNode", Handler: registerNodeHandler},
		{MethodName: "RegisterAgent", Handler: registerAgentHandler},
		{MethodName: "UpdateStatus", Handler: updateStatusHandler},
		{MethodName: "SubmitCommand", Handler: submitCommandHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "CommandChannel",
			Handler:       commandChannelHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "nexus/fabric.proto",
}

// RegisterNexusFabricServer registers srv with s using ServiceDesc, exactly
// as generated code's RegisterXServer function would.
func RegisterNexusFabricServer(s grpc.ServiceRegistrar, srv NexusFabricServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NexusFabricClient is the client side of the wire protocol, equivalent to
// a protoc-gen-go-grpc client stub.
type NexusFabricClient interface {
	RegisterNode(ctx context.Context, in *RegisterNodeRequest, opts ...grpc.CallOption) (*RegisterNodeResponse, error)
	RegisterAgent(ctx context.Context, in *RegisterAgentRequest, opts ...grpc.CallOption) (*RegisterAgentResponse, error)
	UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*UpdateStatusResponse, error)
	SubmitCommand(ctx context.Context, in *SubmitCommandRequest, opts ...grpc.CallOption) (*SubmitCommandResponse, error)
	StreamEvents(ctx context.Context, in *StreamEventsRequest, opts ...grpc.CallOption) (FabricEventsClient, error)
	CommandChannel(ctx context.Context, opts ...grpc.CallOption) (CommandChannelClient, error)
}

type nexusFabricClient struct {
	cc grpc.ClientConnInterface
}

// NewNexusFabricClient wraps a dialed connection in the typed client stub.
func NewNexusFabricClient(cc grpc.ClientConnInterface) NexusFabricClient {
	return &nexusFabricClient{cc: cc}
}

func (c *nexusFabricClient) RegisterNode(ctx context.Context, in *RegisterNodeRequest, opts ...grpc.CallOption) (*RegisterNodeResponse, error) {
	out := new(RegisterNodeResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/RegisterNode", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nexusFabricClient) RegisterAgent(ctx context.Context, in *RegisterAgentRequest, opts ...grpc.CallOption) (*RegisterAgentResponse, error) {
	out := new(RegisterAgentResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/RegisterAgent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nexusFabricClient) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*UpdateStatusResponse, error) {
	out := new(UpdateStatusResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/UpdateStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nexusFabricClient) SubmitCommand(ctx context.Context, in *SubmitCommandRequest, opts ...grpc.CallOption) (*SubmitCommandResponse, error) {
	out := new(SubmitCommandResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/SubmitCommand", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// FabricEventsClient is the client side of the StreamEvents server-stream.
type FabricEventsClient interface {
	Recv() (*types.FabricEvent, error)
	grpc.ClientStream
}

type fabricEventsClient struct {
	grpc.ClientStream
}

func (c *fabricEventsClient) Recv() (*types.FabricEvent, error) {
	m := new(types.FabricEvent)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *nexusFabricClient) StreamEvents(ctx context.Context, in *StreamEventsRequest, opts ...grpc.CallOption) (FabricEventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/StreamEvents", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &fabricEventsClient{stream}, nil
}

// CommandChannelClient is the client side of a Node Proxy's persistent
// command stream.
type CommandChannelClient interface {
	Send(*ReportEnvelope) error
	Recv() (*CommandEnvelope, error)
	grpc.ClientStream
}

type commandChannelClient struct {
	grpc.ClientStream
}

func (c *commandChannelClient) Send(e *ReportEnvelope) error {
	return c.ClientStream.SendMsg(e)
}

func (c *commandChannelClient) Recv() (*CommandEnvelope, error) {
	m := new(CommandEnvelope)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *nexusFabricClient) CommandChannel(ctx context.Context, opts ...grpc.CallOption) (CommandChannelClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], "/"+ServiceName+"/CommandChannel", opts...)
	if err != nil {
		return nil, err
	}
	return &commandChannelClient{stream}, nil
}

// ErrorFromKind maps a types.ErrorKind to the gRPC status code the wire
// protocol surfaces it as.
func ErrorFromKind(kind types.ErrorKind, msg string) error {
	switch kind {
	case types.ErrValidation:
		return status.Error(codes.InvalidArgument, msg)
	case types.ErrUnknownTarget:
		return status.Error(codes.NotFound, msg)
	case types.ErrStale:
		return status.Error(codes.FailedPrecondition, msg)
	case types.ErrTerminalLocked:
		return status.Error(codes.FailedPrecondition, msg)
	case types.ErrCongested:
		return status.Error(codes.ResourceExhausted, msg)
	case types.ErrNoCapacity:
		return status.Error(codes.ResourceExhausted, msg)
	case types.ErrTimeout:
		return status.Error(codes.DeadlineExceeded, msg)
	case types.ErrTransport:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
