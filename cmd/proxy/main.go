package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/nexus/pkg/config"
	"github.com/cuemby/nexus/pkg/log"
	"github.com/cuemby/nexus/pkg/proxy"
	"github.com/cuemby/nexus/pkg/runtime"
	"github.com/cuemby/nexus/pkg/types"
	"github.com/cuemby/nexus/pkg/wire"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "nexus-proxy",
	Short:   "Node Proxy registers a worker host with Nexus and runs its agents",
	Version: Version,
	RunE:    runProxy,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("nexus-proxy version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("config", "", "Path to a YAML config file")
	rootCmd.Flags().String("nexus-addr", "", "Override nexus_addr")
	rootCmd.Flags().String("node-kind", string(types.NodeKindLightHost), "Node kind: HEAVY_HOST, LIGHT_HOST, or AGENT_PROXY")
	rootCmd.Flags().String("address", "", "This node's externally reachable address")
	rootCmd.Flags().String("capabilities", "", "Override capabilities")
	rootCmd.Flags().String("containerd-socket", "", "Override containerd_socket")
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func runProxy(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProxyConfig(configPath)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("nexus-addr"); v != "" {
		cfg.NexusAddr = v
	}
	if v, _ := cmd.Flags().GetString("capabilities"); v != "" {
		cfg.Capabilities = v
	}
	if v, _ := cmd.Flags().GetString("containerd-socket"); v != "" {
		cfg.ContainerdSocket = v
	}

	kindFlag, _ := cmd.Flags().GetString("node-kind")
	address, _ := cmd.Flags().GetString("address")

	rt, err := runtime.NewContainerdRuntime(cfg.ContainerdSocket)
	if err != nil {
		return fmt.Errorf("connect to containerd: %w", err)
	}
	defer rt.Close()

	p := proxy.New(proxy.Config{
		NexusAddr:         cfg.NexusAddr,
		Kind:              types.NodeKind(kindFlag),
		Address:           address,
		Capabilities:      cfg.Capabilities,
		TelemetryInterval: config.Seconds(cfg.TelemetryIntervalSeconds),
		AgentPollInterval: config.Seconds(cfg.AgentPollIntervalSeconds),
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.CodecName)),
		},
	}, rt)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Logger.Info().Str("nexus_addr", cfg.NexusAddr).Str("kind", kindFlag).Msg("node proxy starting")
	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Logger.Info().Msg("node proxy stopped")
	return nil
}
