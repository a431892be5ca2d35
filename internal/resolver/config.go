package resolver

import (
	"fmt"
	"time"
)

// SelectionMode is the server pool's selection strategy.
type SelectionMode int

const (
	SelectionPriority SelectionMode = iota
	SelectionRoundRobin
)

// MaxServers mirrors the original source's DNS_MAX_SERVER_NUM: at most 3
// upstream servers may be configured for a single resolver instance.
const MaxServers = 3

// ServerConfig is one configured upstream name server.
type ServerConfig struct {
	IP       string `yaml:"ip"       mapstructure:"ip"`
	Port     uint16 `yaml:"port"     mapstructure:"port"`
	Priority uint8  `yaml:"priority" mapstructure:"priority"`
}

// Config is the resolver's ResolverConfig, extended with a local bind
// address pulled from the original source's dnsConfig_t.localSockAddr.
type Config struct {
	Servers       []ServerConfig `yaml:"servers"        mapstructure:"servers"`
	SelectionMode SelectionMode  `yaml:"-"              mapstructure:"-"`
	SelectionRaw  string         `yaml:"selection_mode" mapstructure:"selection_mode"`

	RRHashSize uint32 `yaml:"rr_hash_size" mapstructure:"rr_hash_size"`
	QHashSize  uint32 `yaml:"q_hash_size"  mapstructure:"q_hash_size"`

	WaitResponseTimeout time.Duration `yaml:"-" mapstructure:"-"`
	WaitResponseMS      int           `yaml:"wait_response_ms" mapstructure:"wait_response_ms"`

	QuarantineTimeout time.Duration `yaml:"-" mapstructure:"-"`
	QuarantineMS      int           `yaml:"quarantine_ms" mapstructure:"quarantine_ms"`

	QuarantineThreshold      int `yaml:"quarantine_threshold"          mapstructure:"quarantine_threshold"`
	MaxAllowedServerPerQuery int `yaml:"max_allowed_server_per_query"  mapstructure:"max_allowed_server_per_query"`

	// LocalAddr optionally binds the outbound UDP socket to a specific
	// local address (original source: dnsConfig_t.localSockAddr). Empty
	// lets the OS pick an ephemeral port.
	LocalAddr string `yaml:"local_addr" mapstructure:"local_addr"`

	// VerifyTransactionID additionally checks response.ID == entry.TrID
	// before accepting a datagram. Optional hardening, not required; off
	// by default to match the original source exactly.
	VerifyTransactionID bool `yaml:"verify_transaction_id" mapstructure:"verify_transaction_id"`
}

// Default values, matching the original source's dnsConfig_t defaults.
const (
	DefaultWaitResponseMS             = 3000
	DefaultQuarantineMS               = 300000
	DefaultQuarantineThreshold        = 3
	DefaultMaxAllowedServerPerQuery   = 2
	DefaultRRHashSize           uint32 = 256
	DefaultQHashSize            uint32 = 256
)

// DefaultConfig returns a Config with every default applied and no servers
// configured; callers must set Servers before use.
func DefaultConfig() Config {
	return Config{
		SelectionMode:            SelectionPriority,
		RRHashSize:               DefaultRRHashSize,
		QHashSize:                DefaultQHashSize,
		WaitResponseTimeout:      DefaultWaitResponseMS * time.Millisecond,
		WaitResponseMS:           DefaultWaitResponseMS,
		QuarantineTimeout:        DefaultQuarantineMS * time.Millisecond,
		QuarantineMS:             DefaultQuarantineMS,
		QuarantineThreshold:      DefaultQuarantineThreshold,
		MaxAllowedServerPerQuery: DefaultMaxAllowedServerPerQuery,
	}
}

// Normalize applies defaults for zero-valued fields, parses SelectionRaw,
// derives the time.Duration fields from their millisecond counterparts, and
// validates the server list. Called once after loading from config.Config.
func (c *Config) Normalize() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("resolver: at least one server must be configured")
	}
	if len(c.Servers) > MaxServers {
		c.Servers = c.Servers[:MaxServers]
	}

	switch c.SelectionRaw {
	case "", "PRIORITY":
		c.SelectionMode = SelectionPriority
	case "ROUND_ROBIN":
		c.SelectionMode = SelectionRoundRobin
	default:
		return fmt.Errorf("resolver: unknown selection_mode %q", c.SelectionRaw)
	}

	if c.RRHashSize == 0 {
		c.RRHashSize = DefaultRRHashSize
	}
	if c.QHashSize == 0 {
		c.QHashSize = DefaultQHashSize
	}
	if c.WaitResponseMS == 0 {
		c.WaitResponseMS = DefaultWaitResponseMS
	}
	c.WaitResponseTimeout = time.Duration(c.WaitResponseMS) * time.Millisecond

	if c.QuarantineMS == 0 {
		c.QuarantineMS = DefaultQuarantineMS
	}
	c.QuarantineTimeout = time.Duration(c.QuarantineMS) * time.Millisecond

	if c.QuarantineThreshold == 0 {
		c.QuarantineThreshold = DefaultQuarantineThreshold
	}
	if c.MaxAllowedServerPerQuery == 0 {
		c.MaxAllowedServerPerQuery = DefaultMaxAllowedServerPerQuery
	}

	return nil
}
