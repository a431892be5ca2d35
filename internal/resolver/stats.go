package resolver

import "sync/atomic"

// Stats holds atomic counters tracking resolver activity, adapted from the
// listener-side stats block this codebase otherwise keeps per-connection:
// here everything is scoped to one Resolver instance instead of one socket.
type Stats struct {
	queriesSubmitted  atomic.Uint64
	queriesSent       atomic.Uint64
	queriesRetried    atomic.Uint64
	queriesDelivered  atomic.Uint64
	queriesFailed     atomic.Uint64
	cacheHits         atomic.Uint64
	sendErrors        atomic.Uint64
	malformedResponse atomic.Uint64
	serversQuarantined atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{}
}

// StatsSnapshot is a point-in-time copy of Stats, safe to serialize.
type StatsSnapshot struct {
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

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		QueriesSubmitted:   s.queriesSubmitted.Load(),
		QueriesSent:        s.queriesSent.Load(),
		QueriesRetried:     s.queriesRetried.Load(),
		QueriesDelivered:   s.queriesDelivered.Load(),
		QueriesFailed:      s.queriesFailed.Load(),
		CacheHits:          s.cacheHits.Load(),
		SendErrors:         s.sendErrors.Load(),
		MalformedResponses: s.malformedResponse.Load(),
		ServersQuarantined: s.serversQuarantined.Load(),
	}
}
