package resolver

// QEntryState is the QEntry lifecycle state.
type QEntryState int

const (
	StateCreated QEntryState = iota
	StateSent
	StateDelivered
	StateFailed
)

// QEntry is an in-flight query. It is owned by the
// qTable until delivery or failure moves it out for final callback fan-out.
type QEntry struct {
	Key Key

	// Question is the owned, wire-encoded header+question buffer, retained
	// so the identical bytes (including transaction id) can be re-sent to
	// an alternate server on timeout.
	Question []byte
	TrID     uint16

	Server        *ServerInfo
	ServerQueried int

	WaitTimerID uint64

	// CacheOnSuccess is sticky: once any caller on this entry asked for
	// cacheRR=true, the eventual success is cached even if other callers
	// on the same entry asked for cacheRR=false.
	CacheOnSuccess bool

	// ResolveAll is sticky the same way: once any caller asked for
	// resolve-all, the recursive walker runs for this entry.
	ResolveAll bool

	Callers []CallerRecord
	State   QEntryState

	// walkWaiters holds zero or more recursive walks that spawned this
	// QEntry as a NAPTR/SRV/A chain step, or that coalesced onto it because
	// another query for the same key was already in flight. A plain
	// caller-issued query has no walk waiters at all; an entry can carry
	// both ordinary Callers and walk waiters at once if the two happen to
	// share a key.
	walkWaiters []*walkChild
}

// walkChild links a QEntry back to the WalkCtx waiting on its result, so the
// resolver's inbound/timeout handlers can route the outcome into the
// recursive walk's aggregation instead of (or in addition to) the entry's
// own Callers.
type walkChild struct {
	ctx *WalkCtx
}

// QTable is the in-flight query index, keyed by (lowercased name, qtype).
// It is touched only from the Resolver's event loop goroutine; no locking
// is needed at this level.
type QTable struct {
	entries map[Key]*QEntry
}

func NewQTable(sizeHint uint32) *QTable {
	return &QTable{entries: make(map[Key]*QEntry, sizeHint)}
}

func (t *QTable) Lookup(key Key) (*QEntry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

func (t *QTable) Insert(e *QEntry) {
	t.entries[e.Key] = e
}

func (t *QTable) Delete(key Key) {
	delete(t.entries, key)
}

func (t *QTable) Len() int {
	return len(t.entries)
}

// Snapshot returns a point-in-time copy of the in-flight keys, for
// introspection endpoints only.
func (t *QTable) Snapshot() []Key {
	keys := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}
