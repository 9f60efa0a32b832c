// Package client is a thin wrapper around the wire protocol's generated
// client stub, used by fabricctl. Authentication (mTLS, tokens) is assumed
// to be handled outside this package, by whatever grpc.DialOption the
// caller supplies.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/nexus/pkg/types"
	"github.com/cuemby/nexus/pkg/wire"
)

// Client wraps a dialed connection to a Nexus RPC Server.
type Client struct {
	conn   *grpc.ClientConn
	client wire.NexusFabricClient
}

// Dial connects to addr using opts, or plaintext if none are supplied. The
// wire protocol's JSON codec is always used as the default call content
// subtype.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.CodecName)))

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, client: wire.NewNexusFabricClient(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RegisterNode registers a new Node with Nexus.
func (c *Client) RegisterNode(ctx context.Context, kind types.NodeKind, address, capabilities string) (*wire.RegisterNodeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.client.RegisterNode(ctx, &wire.RegisterNodeRequest{Kind: kind, Address: address, Capabilities: capabilities})
}

// RegisterAgent registers a new Agent with Nexus, ahead of any placement.
func (c *Client) RegisterAgent(ctx context.Context, kind, displayName string) (*wire.RegisterAgentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.client.RegisterAgent(ctx, &wire.RegisterAgentRequest{Kind: kind, DisplayName: displayName})
}

// SubmitCommand submits an operator command against targetID.
func (c *Client) SubmitCommand(ctx context.Context, targetID string, kind types.CommandKind, params map[string]string) (*wire.SubmitCommandResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.client.SubmitCommand(ctx, &wire.SubmitCommandRequest{TargetID: targetID, Kind: kind, Parameters: params})
}

// StreamEvents opens a long-lived subscription and invokes onEvent for each
// FabricEvent received, until ctx is cancelled or the stream ends.
func (c *Client) StreamEvents(ctx context.Context, includeSnapshot bool, onEvent func(types.FabricEvent) error) error {
	stream, err := c.client.StreamEvents(ctx, &wire.StreamEventsRequest{IncludeSnapshot: includeSnapshot})
	if err != nil {
		return fmt.Errorf("client: open event stream: %w", err)
	}
	for {
		ev, err := stream.Recv()
		if err != nil {
			return err
		}
		if err := onEvent(*ev); err != nil {
			return err
		}
	}
}
