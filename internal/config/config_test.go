package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RESOLVERD_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Resolver.Servers, 2)
	assert.Equal(t, "8.8.8.8", cfg.Resolver.Servers[0].IP)
	assert.Equal(t, "PRIORITY", cfg.Resolver.SelectionMode)
	assert.Equal(t, 3000, cfg.Resolver.WaitResponseMS)
	assert.Equal(t, 300000, cfg.Resolver.QuarantineMS)
	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, "resolverd.db", cfg.Store.Path)
}

func TestLoadFromFile(t *testing.T) {
	content := `
resolver:
  servers:
    - ip: "127.0.0.1"
      port: 5300
      priority: 1
  selection_mode: "round_robin"
  wait_response_ms: 1500
  quarantine_threshold: 5

logging:
  level: "DEBUG"
  structured: true
  structured_format: "json"

store:
  path: "/tmp/resolverd-test.db"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Resolver.Servers, 1)
	assert.Equal(t, "127.0.0.1", cfg.Resolver.Servers[0].IP)
	assert.Equal(t, 5300, cfg.Resolver.Servers[0].Port)
	assert.Equal(t, "ROUND_ROBIN", cfg.Resolver.SelectionMode)
	assert.Equal(t, 1500, cfg.Resolver.WaitResponseMS)
	assert.Equal(t, 5, cfg.Resolver.QuarantineThreshold)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "/tmp/resolverd-test.db", cfg.Store.Path)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resolver:\n  servers: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeRejectsEmptyServers(t *testing.T) {
	content := "resolver:\n  servers: []\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeRejectsInvalidAPIPort(t *testing.T) {
	content := `
resolver:
  servers:
    - ip: "8.8.8.8"
      port: 53
      priority: 1
api:
  enabled: true
  port: 0
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESOLVERD_LOGGING_LEVEL", "debug")
	t.Setenv("RESOLVERD_STORE_PATH", "/custom/path.db")
	t.Setenv("RESOLVERD_API_ENABLED", "true")
	t.Setenv("RESOLVERD_API_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "/custom/path.db", cfg.Store.Path)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestToResolverConfig_Converts(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	rc := cfg.Resolver.ToResolverConfig()
	require.Len(t, rc.Servers, 2)
	assert.Equal(t, "8.8.8.8", rc.Servers[0].IP)
	assert.Equal(t, uint16(53), rc.Servers[0].Port)

	require.NoError(t, rc.Normalize())
}
