package resolver

import (
	"math"

	"github.com/jroosing/resolverd/internal/dns"
)

// REntry is a cached answer. Unlike a typical LRU cache,
// eviction is timer-driven rather than lazy-on-lookup: TTLTimerID names the
// TimerService entry that will call back into the event loop and delete this
// REntry the instant its TTL expires, so Lookup never has to compare against
// wall-clock time.
type REntry struct {
	Key        Key
	Msg        dns.Packet
	TTLTimerID uint64
}

// RRTable is the answer cache, keyed the same way as QTable. It is touched
// only from the Resolver's event loop goroutine.
type RRTable struct {
	entries map[Key]*REntry
}

func NewRRTable(sizeHint uint32) *RRTable {
	return &RRTable{entries: make(map[Key]*REntry, sizeHint)}
}

func (t *RRTable) Lookup(key Key) (*REntry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

func (t *RRTable) Insert(e *REntry) {
	t.entries[e.Key] = e
}

func (t *RRTable) Delete(key Key) {
	delete(t.entries, key)
}

func (t *RRTable) Len() int {
	return len(t.entries)
}

// Snapshot returns every cached key, for introspection only.
func (t *RRTable) Snapshot() []Key {
	keys := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}

// minimumTTL returns the smallest TTL across every answer RR in msg. The
// original source instead used the first answer's TTL; RFC 1035 section 5.2
// recommends the minimum across the RRset as the safer, more conservative
// choice for cache lifetime. A message with no answers is not cacheable;
// callers must check len(msg.Answers) > 0 before calling this.
func minimumTTL(msg dns.Packet) uint32 {
	min := uint32(math.MaxUint32)
	for _, rr := range msg.Answers {
		if rr.TTL < min {
			min = rr.TTL
		}
	}
	return min
}
