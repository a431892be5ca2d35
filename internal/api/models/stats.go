package models

import "time"

// CPUStats contains system CPU statistics.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains system memory statistics.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// ResolverStatsResponse mirrors resolver.StatsSnapshot for JSON consumers.
type ResolverStatsResponse struct {
	QueriesSubmitted   uint64 `json:"queries_submitted"`
	QueriesSent        uint64 `json:"queries_sent"`
	QueriesRetried     uint64 `json:"queries_retried"`
	QueriesDelivered   uint64 `json:"queries_delivered"`
	QueriesFailed      uint64 `json:"queries_failed"`
	CacheHits          uint64 `json:"cache_hits"`
	SendErrors         uint64 `json:"send_errors"`
	MalformedResponses uint64 `json:"malformed_responses"`
	ServersQuarantined uint64 `json:"servers_quarantined"`
}

// ServerStatsResponse contains process and resolver runtime statistics.
type ServerStatsResponse struct {
	NodeID        string                `json:"node_id"`
	Uptime        string                `json:"uptime"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     time.Time             `json:"start_time"`
	CPU           CPUStats              `json:"cpu"`
	Memory        MemoryStats           `json:"memory"`
	Resolver      ResolverStatsResponse `json:"resolver"`
}

// ServerEntryResponse is one upstream server's current pool state.
type ServerEntryResponse struct {
	Addr        string `json:"addr"`
	Priority    int    `json:"priority"`
	NoRspCount  int    `json:"no_rsp_count"`
	Quarantined bool   `json:"quarantined"`
}

// ServerPoolResponse lists every configured upstream server.
type ServerPoolResponse struct {
	Servers []ServerEntryResponse `json:"servers"`
}

// CacheEntryResponse identifies one cached answer without its record data
// (the cache exists for dedup/TTL bookkeeping, not as a browsable zone).
type CacheEntryResponse struct {
	Name  string `json:"name"`
	QType uint16 `json:"qtype"`
}

// CacheResponse summarizes the resolver's answer cache.
type CacheResponse struct {
	Size     int                  `json:"size"`
	InFlight int                  `json:"in_flight"`
	Entries  []CacheEntryResponse `json:"entries"`
}
