// Package config provides configuration loading and validation for
// resolverd.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/resolverd/main.go)
//  2. Environment variables (RESOLVERD_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Load() checks that at least one resolver server is configured and
// normalizes the logging, store and API sections; the remaining resolver
// fields are defaulted and validated by resolver.Config.Normalize.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RESOLVERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("resolver.servers", []map[string]any{
		{"ip": "8.8.8.8", "port": 53, "priority": 1},
		{"ip": "1.1.1.1", "port": 53, "priority": 2},
	})
	v.SetDefault("resolver.selection_mode", "PRIORITY")
	v.SetDefault("resolver.rr_hash_size", 256)
	v.SetDefault("resolver.q_hash_size", 256)
	v.SetDefault("resolver.wait_response_ms", 3000)
	v.SetDefault("resolver.quarantine_ms", 300000)
	v.SetDefault("resolver.quarantine_threshold", 3)
	v.SetDefault("resolver.max_allowed_server_per_query", 2)
	v.SetDefault("resolver.local_addr", "")
	v.SetDefault("resolver.verify_transaction_id", false)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	v.SetDefault("store.path", "resolverd.db")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	loadResolverConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadStoreConfig(v, cfg)
	loadAPIConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadResolverConfig(v *viper.Viper, cfg *Config) {
	if err := v.UnmarshalKey("resolver.servers", &cfg.Resolver.Servers); err != nil {
		cfg.Resolver.Servers = nil
	}
	cfg.Resolver.SelectionMode = strings.ToUpper(v.GetString("resolver.selection_mode"))
	cfg.Resolver.RRHashSize = v.GetInt("resolver.rr_hash_size")
	cfg.Resolver.QHashSize = v.GetInt("resolver.q_hash_size")
	cfg.Resolver.WaitResponseMS = v.GetInt("resolver.wait_response_ms")
	cfg.Resolver.QuarantineMS = v.GetInt("resolver.quarantine_ms")
	cfg.Resolver.QuarantineThreshold = v.GetInt("resolver.quarantine_threshold")
	cfg.Resolver.MaxAllowedServerPerQuery = v.GetInt("resolver.max_allowed_server_per_query")
	cfg.Resolver.LocalAddr = v.GetString("resolver.local_addr")
	cfg.Resolver.VerifyTransactionID = v.GetBool("resolver.verify_transaction_id")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadStoreConfig(v *viper.Viper, cfg *Config) {
	cfg.Store.Path = v.GetString("store.path")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Enabled = v.GetBool("api.enabled")
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
}

// normalizeConfig validates and normalizes the configuration. Resolver
// field defaulting/validation itself is left to resolver.Config.Normalize,
// called by the caller after ToResolverConfig; this only checks the parts
// config owns outright.
func normalizeConfig(cfg *Config) error {
	if len(cfg.Resolver.Servers) == 0 {
		return errors.New("resolver.servers must contain at least one entry")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "resolverd.db"
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	return nil
}
