package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/nexus/pkg/api"
	"github.com/cuemby/nexus/pkg/config"
	"github.com/cuemby/nexus/pkg/dispatcher"
	"github.com/cuemby/nexus/pkg/events"
	"github.com/cuemby/nexus/pkg/log"
	"github.com/cuemby/nexus/pkg/pruner"
	"github.com/cuemby/nexus/pkg/state"
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
	Use:     "nexus",
	Short:   "Nexus is the compute-fabric coordinator for AI-agent workloads",
	Version: Version,
	RunE:    runNexus,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("nexus version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("config", "", "Path to a YAML config file")
	rootCmd.Flags().String("grpc-listen-addr", "", "Override grpc_listen_addr")
	rootCmd.Flags().String("health-listen-addr", "", "Override health_listen_addr")
	rootCmd.Flags().Bool("snapshot-prelude", false, "Override snapshot_prelude_on_subscribe")
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func runNexus(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadNexusConfig(configPath)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("grpc-listen-addr"); v != "" {
		cfg.GRPCListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("health-listen-addr"); v != "" {
		cfg.HealthListenAddr = v
	}
	if v, _ := cmd.Flags().GetBool("snapshot-prelude"); v {
		cfg.SnapshotPreludeOnSubscribe = true
	}

	store := state.NewStore()
	bus := events.NewBus()
	disp := dispatcher.New(store, bus, dispatcher.Config{
		CommandQueueDepth: cfg.CommandQueueDepth,
		CommandDeadline:   config.Seconds(cfg.CommandDeadlineSeconds),
	})

	disp.Start()
	defer disp.Stop()

	prune := pruner.New(store, bus, pruner.Config{
		Interval:         config.Seconds(cfg.PruneIntervalSeconds),
		NodeStaleAfter:   config.Seconds(cfg.StaleAfterNodeSeconds),
		AgentStaleAfter:  config.Seconds(cfg.StaleAfterAgentSeconds),
		RetainTerminated: config.Seconds(cfg.RetainTerminatedSeconds),
	})
	prune.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = prune.Stop(stopCtx)
	}()

	server := api.NewServer(store, bus, disp, api.Config{
		ListenAddr:                 cfg.GRPCListenAddr,
		SnapshotPreludeOnSubscribe: cfg.SnapshotPreludeOnSubscribe,
	})

	health := api.NewHealthServer(store, bus)
	errCh := make(chan error, 2)
	go func() {
		if err := health.Start(cfg.HealthListenAddr); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := server.Serve(ctx); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	log.Logger.Info().Str("grpc_addr", cfg.GRPCListenAddr).Str("health_addr", cfg.HealthListenAddr).Msg("nexus started")

	select {
	case <-ctx.Done():
		log.Logger.Info().Msg("shutting down")
	case err := <-errCh:
		return err
	}

	server.Stop()
	return nil
}
