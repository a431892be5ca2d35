package resolver

import (
	"fmt"
	"net"
	"sort"
)

// ServerInfo is one entry in the server pool. It is owned exclusively by
// the Resolver's event loop goroutine; nothing else touches it.
type ServerInfo struct {
	Addr              *net.UDPAddr
	Priority          uint8
	NoRspCount        int
	QuarantineTimerID uint64 // 0 == healthy
}

func (s *ServerInfo) quarantined() bool {
	return s.QuarantineTimerID != 0
}

// ServerPool ranks and selects upstream servers, grounded on the original
// source's dnsGetServer/dnsResolverInit.
type ServerPool struct {
	servers []*ServerInfo
	mode    SelectionMode
	cursor  int
}

// NewServerPool resolves each configured server's address and sorts the
// pool ascending by priority with a stable sort, so servers of equal
// priority keep their configured order.
func NewServerPool(cfgs []ServerConfig, mode SelectionMode) (*ServerPool, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("resolver: server pool requires at least one server")
	}
	if len(cfgs) > MaxServers {
		cfgs = cfgs[:MaxServers]
	}

	servers := make([]*ServerInfo, 0, len(cfgs))
	for _, c := range cfgs {
		addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", c.IP, c.Port))
		if err != nil {
			return nil, fmt.Errorf("resolver: resolving server %s:%d: %w", c.IP, c.Port, err)
		}
		servers = append(servers, &ServerInfo{Addr: addr, Priority: c.Priority})
	}

	sort.SliceStable(servers, func(i, j int) bool {
		return servers[i].Priority < servers[j].Priority
	})

	return &ServerPool{servers: servers, mode: mode}, nil
}

// Pick returns a non-quarantined server, or nil if every configured server
// is currently quarantined.
func (p *ServerPool) Pick() *ServerInfo {
	switch p.mode {
	case SelectionRoundRobin:
		return p.pickRoundRobin()
	default:
		return p.pickPriority()
	}
}

func (p *ServerPool) pickPriority() *ServerInfo {
	for _, s := range p.servers {
		if !s.quarantined() {
			return s
		}
	}
	return nil
}

// pickRoundRobin starts at cursor%N, advances cursor, then scans forward
// wrapping once in search of a non-quarantined server.
func (p *ServerPool) pickRoundRobin() *ServerInfo {
	n := len(p.servers)
	if n == 0 {
		return nil
	}
	start := p.cursor % n
	p.cursor++
	for i := range n {
		s := p.servers[(start+i)%n]
		if !s.quarantined() {
			return s
		}
	}
	return nil
}

// RecordNoResponse increments a server's consecutive no-response count and
// reports whether it now exceeds the quarantine threshold.
func (p *ServerPool) RecordNoResponse(s *ServerInfo, threshold int) bool {
	s.NoRspCount++
	return s.NoRspCount > threshold
}

// RecordSuccess unconditionally resets a server's no-response count on any
// positive response.
func (p *ServerPool) RecordSuccess(s *ServerInfo) {
	s.NoRspCount = 0
}

// Quarantine marks s quarantined under the given timer id.
func (p *ServerPool) Quarantine(s *ServerInfo, timerID uint64) {
	s.QuarantineTimerID = timerID
}

// EndQuarantine clears s's quarantine and resets its no-response count, the
// same recovery dnsOnServerQuarantineTimeout performs in the original source.
func (p *ServerPool) EndQuarantine(s *ServerInfo) {
	s.QuarantineTimerID = 0
	s.NoRspCount = 0
}

// Servers returns the pool's ranked server list, for introspection only.
func (p *ServerPool) Servers() []*ServerInfo {
	return p.servers
}
