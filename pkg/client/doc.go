/*
Package client provides a Go client library for the Nexus RPC Server.

It wraps the hand-rolled wire protocol (pkg/wire) with a convenient,
idiomatic interface for registering nodes, submitting commands, and
consuming the fabric event stream. Authentication is left entirely to the
caller's grpc.DialOption list — this package assumes it is handed a
transport that is already secured, or deliberately insecure for local
development.

# Usage

Dialing:

	c, err := client.Dial("nexus.local:50053")
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

Submitting a command:

	resp, err := c.SubmitCommand(ctx, agentID, types.CommandRestartAgent, nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(resp.Accepted, resp.CommandID)

Streaming events:

	err := c.StreamEvents(ctx, true, func(ev types.FabricEvent) error {
		fmt.Printf("%s %s\n", ev.Kind, ev.Message)
		return nil
	})

# Thread Safety

Client is safe for concurrent use: its methods only read the underlying
grpc.ClientConn, which is itself thread-safe.
*/
package client
