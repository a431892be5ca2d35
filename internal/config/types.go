// Package config loads resolverd's configuration using Viper from a YAML
// file with environment variable overrides.
//
// Environment variables use the RESOLVERD_ prefix and underscore-separated
// keys, e.g. RESOLVERD_RESOLVER_WAIT_RESPONSE_MS overrides
// resolver.wait_response_ms.
package config

import (
	"os"
	"strings"

	"github.com/jroosing/resolverd/internal/resolver"
)

// ServerEntry is one upstream name server as written in YAML/env, before
// being resolved into a resolver.ServerConfig.
type ServerEntry struct {
	IP       string `yaml:"ip"       mapstructure:"ip"`
	Port     int    `yaml:"port"     mapstructure:"port"`
	Priority int    `yaml:"priority" mapstructure:"priority"`
}

// ResolverConfig mirrors resolver.Config's shape in YAML-friendly types
// (plain int instead of time.Duration, for instance).
type ResolverConfig struct {
	Servers                  []ServerEntry `yaml:"servers"                      mapstructure:"servers"`
	SelectionMode            string        `yaml:"selection_mode"               mapstructure:"selection_mode"`
	RRHashSize               int           `yaml:"rr_hash_size"                 mapstructure:"rr_hash_size"`
	QHashSize                int           `yaml:"q_hash_size"                  mapstructure:"q_hash_size"`
	WaitResponseMS           int           `yaml:"wait_response_ms"             mapstructure:"wait_response_ms"`
	QuarantineMS             int           `yaml:"quarantine_ms"                mapstructure:"quarantine_ms"`
	QuarantineThreshold      int           `yaml:"quarantine_threshold"         mapstructure:"quarantine_threshold"`
	MaxAllowedServerPerQuery int           `yaml:"max_allowed_server_per_query" mapstructure:"max_allowed_server_per_query"`
	LocalAddr                string        `yaml:"local_addr"                   mapstructure:"local_addr"`
	VerifyTransactionID      bool          `yaml:"verify_transaction_id"        mapstructure:"verify_transaction_id"`
}

// ToResolverConfig converts the YAML-shaped settings into resolver.Config.
// Normalize() is left to the caller, matching resolver.Config's own
// load-then-normalize convention.
func (r ResolverConfig) ToResolverConfig() resolver.Config {
	servers := make([]resolver.ServerConfig, 0, len(r.Servers))
	for _, s := range r.Servers {
		servers = append(servers, resolver.ServerConfig{
			IP:       s.IP,
			Port:     uint16(s.Port),
			Priority: uint8(s.Priority),
		})
	}
	return resolver.Config{
		Servers:                  servers,
		SelectionRaw:             r.SelectionMode,
		RRHashSize:               uint32(r.RRHashSize),
		QHashSize:                uint32(r.QHashSize),
		WaitResponseMS:           r.WaitResponseMS,
		QuarantineMS:             r.QuarantineMS,
		QuarantineThreshold:      r.QuarantineThreshold,
		MaxAllowedServerPerQuery: r.MaxAllowedServerPerQuery,
		LocalAddr:                r.LocalAddr,
		VerifyTransactionID:      r.VerifyTransactionID,
	}
}

// LoggingConfig controls internal/logging's slog setup.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// StoreConfig points at the SQLite database used to persist server-pool
// health and query statistics across restarts (internal/store).
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// APIConfig controls the optional introspection HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	// APIKey, when non-empty, requires every request to carry a matching
	// X-API-Key header. Empty leaves the API unauthenticated.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// Config is the root configuration structure for resolverd.
type Config struct {
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Logging  LoggingConfig  `yaml:"logging"  mapstructure:"logging"`
	Store    StoreConfig    `yaml:"store"    mapstructure:"store"`
	API      APIConfig      `yaml:"api"      mapstructure:"api"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("RESOLVERD_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable
// overrides. Configuration priority (highest to lowest): environment
// variables (RESOLVERD_*), config file values, hardcoded defaults.
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
