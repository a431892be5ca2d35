package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Normalize_RejectsNoServers(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Normalize()
	assert.Error(t, err)
}

func TestConfig_Normalize_AppliesDefaults(t *testing.T) {
	cfg := Config{Servers: []ServerConfig{{IP: "127.0.0.1", Port: 53}}}
	require.NoError(t, cfg.Normalize())

	assert.Equal(t, SelectionPriority, cfg.SelectionMode)
	assert.Equal(t, DefaultRRHashSize, cfg.RRHashSize)
	assert.Equal(t, DefaultQHashSize, cfg.QHashSize)
	assert.Equal(t, time.Duration(DefaultWaitResponseMS)*time.Millisecond, cfg.WaitResponseTimeout)
	assert.Equal(t, time.Duration(DefaultQuarantineMS)*time.Millisecond, cfg.QuarantineTimeout)
	assert.Equal(t, DefaultQuarantineThreshold, cfg.QuarantineThreshold)
	assert.Equal(t, DefaultMaxAllowedServerPerQuery, cfg.MaxAllowedServerPerQuery)
}

func TestConfig_Normalize_TruncatesExcessServers(t *testing.T) {
	cfg := Config{Servers: []ServerConfig{
		{IP: "127.0.0.1", Port: 1},
		{IP: "127.0.0.1", Port: 2},
		{IP: "127.0.0.1", Port: 3},
		{IP: "127.0.0.1", Port: 4},
	}}
	require.NoError(t, cfg.Normalize())
	assert.Len(t, cfg.Servers, MaxServers)
}

func TestConfig_Normalize_RejectsUnknownSelectionMode(t *testing.T) {
	cfg := Config{
		Servers:      []ServerConfig{{IP: "127.0.0.1", Port: 53}},
		SelectionRaw: "WEIGHTED",
	}
	assert.Error(t, cfg.Normalize())
}

func TestConfig_Normalize_ParsesRoundRobin(t *testing.T) {
	cfg := Config{
		Servers:      []ServerConfig{{IP: "127.0.0.1", Port: 53}},
		SelectionRaw: "ROUND_ROBIN",
	}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, SelectionRoundRobin, cfg.SelectionMode)
}
