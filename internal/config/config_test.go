package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Counters)
	assert.Equal(t, "GRBM_COUNT", cfg.ReferenceCounter)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, "librocprofiler-sdk.so", cfg.RocprofilerLibrary)
	assert.Empty(t, cfg.ListenAddress)
	assert.False(t, cfg.Parallel)
}

func TestLoadConfigPositionalCounters(t *testing.T) {
	cfg, err := LoadConfig([]string{"SQ_WAVES", "SQ_INSTS_VALU"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SQ_WAVES", "SQ_INSTS_VALU"}, cfg.Counters)
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := LoadConfig([]string{
		"--counter", "SQ_WAVES",
		"--interval", "250ms",
		"--listen-address", ":9090",
		"--parallel",
		"TA_BUSY_avr",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SQ_WAVES", "TA_BUSY_avr"}, cfg.Counters)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.Equal(t, ":9090", cfg.ListenAddress)
	assert.True(t, cfg.Parallel)
}

func TestLoadConfigYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
counters: [SQ_WAVES, SQ_INSTS]
interval: 2s
listen_address: ":8001"
parallel: true
`), 0o644))

	cfg, err := LoadConfig([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, []string{"SQ_WAVES", "SQ_INSTS"}, cfg.Counters)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, ":8001", cfg.ListenAddress)
	assert.True(t, cfg.Parallel)
}

func TestLoadConfigFlagOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval: 2s\n"), 0o644))

	cfg, err := LoadConfig([]string{"--config", path, "--interval", "100ms"})
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.Interval)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PMC_COLLECTOR_LISTEN_ADDRESS", ":7777")
	t.Setenv("PMC_COLLECTOR_INTERVAL", "3s")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddress)
	assert.Equal(t, 3*time.Second, cfg.Interval)

	// Flags beat the environment.
	cfg, err = LoadConfig([]string{"--interval", "500ms"})
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Interval)
}

func TestLoadConfigRejectsMalformedEnvInterval(t *testing.T) {
	t.Setenv("PMC_COLLECTOR_INTERVAL", "not-a-duration")

	_, err := LoadConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PMC_COLLECTOR_INTERVAL")
}

func TestLoadConfigRejectsBadInterval(t *testing.T) {
	_, err := LoadConfig([]string{"--interval", "0s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval must be positive")
}
