package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ndjobi.org/internal/realtime"
)

func TestLoadDefaultsMatchSimulatorDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "/v1/realtime", cfg.RealtimeURL)
	require.False(t, cfg.Simulator.Autostart)
	require.Equal(t, realtime.DefaultConfig(), cfg.SimulatorConfig())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("NDJOBI_HTTP_ADDR", ":9999")
	t.Setenv("NDJOBI_PG_DSN", "postgres://localhost/ndjobi")
	t.Setenv("NDJOBI_SIM_AUTOSTART", "true")
	t.Setenv("NDJOBI_SIM_MESSAGE_MIN", "1s")
	t.Setenv("NDJOBI_SIM_MESSAGE_MAX", "2s")
	t.Setenv("NDJOBI_SIM_MESSAGE_PROBABILITY", "1")
	t.Setenv("NDJOBI_AUTH_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTPAddr)
	require.Equal(t, "postgres://localhost/ndjobi", cfg.PGDSN)
	require.True(t, cfg.Simulator.Autostart)
	require.Equal(t, "s3cret", cfg.AuthSecret)

	sim := cfg.SimulatorConfig()
	require.Equal(t, realtime.Range{Min: time.Second, Max: 2 * time.Second}, sim.MessageInterval)
	require.Equal(t, 1.0, sim.MessageProbability)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("NDJOBI_SIM_THREAD_PROBABILITY", "1.5")
	_, err := Load()
	require.ErrorIs(t, err, realtime.ErrInvalidConfig)

	t.Setenv("NDJOBI_SIM_THREAD_PROBABILITY", "0.3")
	t.Setenv("NDJOBI_RATE_BURST", "0")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("NDJOBI_RATE_BURST", "abc")
	_, err = Load()
	require.Error(t, err)
}
