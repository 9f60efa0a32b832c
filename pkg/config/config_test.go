package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNexusConfig_Defaults(t *testing.T) {
	cfg, err := LoadNexusConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":50053", cfg.GRPCListenAddr)
	assert.Equal(t, 256, cfg.StreamBuffer)
	assert.Equal(t, 64, cfg.CommandQueueDepth)
	assert.Equal(t, 60, cfg.CommandDeadlineSeconds)
	assert.Equal(t, 300, cfg.StaleAfterNodeSeconds)
	assert.Equal(t, 600, cfg.StaleAfterAgentSeconds)
	assert.Equal(t, 3600, cfg.RetainTerminatedSeconds)
	assert.Equal(t, 60, cfg.PruneIntervalSeconds)
	assert.False(t, cfg.SnapshotPreludeOnSubscribe)
}

func TestLoadNexusConfig_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadNexusConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultNexusConfig(), cfg)
}

func TestLoadNexusConfig_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexus.yaml")
	contents := "grpc_listen_addr: \":9999\"\nstream_buffer: 512\nsnapshot_prelude_on_subscribe: true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadNexusConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.GRPCListenAddr)
	assert.Equal(t, 512, cfg.StreamBuffer)
	assert.True(t, cfg.SnapshotPreludeOnSubscribe)
	assert.Equal(t, 64, cfg.CommandQueueDepth, "fields absent from the file keep their default")
}

func TestLoadNexusConfig_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grpc_listen_addr: \":9999\"\n"), 0o644))

	t.Setenv("NEXUS_GRPC_LISTEN_ADDR", ":7777")
	t.Setenv("NEXUS_COMMAND_QUEUE_DEPTH", "128")

	cfg, err := LoadNexusConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.GRPCListenAddr)
	assert.Equal(t, 128, cfg.CommandQueueDepth)
}

func TestLoadNexusConfig_InvalidEnvIntIgnored(t *testing.T) {
	t.Setenv("NEXUS_STREAM_BUFFER", "not-a-number")
	cfg, err := LoadNexusConfig("")
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.StreamBuffer)
}

func TestLoadProxyConfig_Defaults(t *testing.T) {
	cfg, err := LoadProxyConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:50053", cfg.NexusAddr)
	assert.Equal(t, 10, cfg.TelemetryIntervalSeconds)
	assert.Equal(t, 15, cfg.AgentPollIntervalSeconds)
}

func TestLoadProxyConfig_EnvOverride(t *testing.T) {
	t.Setenv("NEXUS_NEXUS_ADDR", "10.0.0.5:50053")
	cfg, err := LoadProxyConfig("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:50053", cfg.NexusAddr)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, int64(5_000_000_000), Seconds(5).Nanoseconds())
}
