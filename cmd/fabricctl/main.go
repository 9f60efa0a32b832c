// Command fabricctl is a thin operator CLI over the Nexus RPC Server: submit
// commands against a Node or Agent, and tail the fabric event stream.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/nexus/pkg/client"
	"github.com/cuemby/nexus/pkg/types"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fabricctl",
	Short: "fabricctl is an operator CLI for a Nexus fabric",
}

func init() {
	rootCmd.PersistentFlags().String("nexus", "127.0.0.1:50053", "Nexus gRPC address")
	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(registerAgentCmd)
}

var registerAgentCmd = &cobra.Command{
	Use:   "register-agent KIND [DISPLAY_NAME]",
	Short: "Register a new Agent ahead of any placement",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusAddr, _ := cmd.Flags().GetString("nexus")
		kind := args[0]
		var displayName string
		if len(args) == 2 {
			displayName = args[1]
		}

		c, err := client.Dial(nexusAddr)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.RegisterAgent(context.Background(), kind, displayName)
		if err != nil {
			return err
		}
		fmt.Printf("agent_id=%s status=%s\n", resp.AgentID, resp.StatusCode)
		return nil
	},
}

var commandCmd = &cobra.Command{
	Use:   "command TARGET_ID KIND [KEY=VALUE ...]",
	Short: "Submit a command against a Node or Agent",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusAddr, _ := cmd.Flags().GetString("nexus")
		targetID := args[0]
		kind := types.CommandKind(args[1])
		params := make(map[string]string)
		for _, kv := range args[2:] {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("invalid parameter %q, expected KEY=VALUE", kv)
			}
			params[parts[0]] = parts[1]
		}

		c, err := client.Dial(nexusAddr)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.SubmitCommand(context.Background(), targetID, kind, params)
		if err != nil {
			return err
		}
		if !resp.Accepted {
			return fmt.Errorf("command rejected: %s", resp.Reason)
		}
		fmt.Printf("accepted, command_id=%s\n", resp.CommandID)
		return nil
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Tail the fabric event stream as newline-delimited JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusAddr, _ := cmd.Flags().GetString("nexus")
		snapshot, _ := cmd.Flags().GetBool("snapshot")

		c, err := client.Dial(nexusAddr)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		enc := json.NewEncoder(os.Stdout)
		err = c.StreamEvents(ctx, snapshot, func(ev types.FabricEvent) error {
			return enc.Encode(ev)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	streamCmd.Flags().Bool("snapshot", false, "Request a snapshot prelude before live events")
}
