package resolver

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"

	"github.com/jroosing/resolverd/internal/dns"
)

// event is anything the Resolver's single loop goroutine can process. Every
// producer outside that goroutine (Transport's read loop, TimerService
// callbacks, Query callers) only ever constructs an event and sends it on
// Resolver.events; only the loop goroutine dereferences qTable, rrTable, or
// the server pool, so none of that state needs a mutex.
type event interface {
	handle(r *Resolver)
}

// Resolver is a client-side DNS stub resolver instance.
// All of its mutable state, the in-flight query table, the answer cache,
// and the server pool, is owned by a single event loop goroutine started by
// New. Create one Resolver per independently-scheduled event loop; do not
// share a Resolver across goroutines that each expect to drive it.
type Resolver struct {
	cfg Config

	qt   *QTable
	rrt  *RRTable
	pool *ServerPool

	transport Transport
	timer     TimerService
	logger    *slog.Logger
	stats     *Stats

	nextID uint16 // monotonic transaction id counter, loop-owned

	events chan event
	stop   chan struct{}
	done   chan struct{}
}

// New constructs a Resolver and starts its event loop goroutine. The
// Resolver takes ownership of transport and timer: it registers the inbound
// callback on transport and expects exclusive use of both for its lifetime.
func New(cfg Config, transport Transport, timer TimerService, logger *slog.Logger) (*Resolver, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	serverPool, err := NewServerPool(cfg.Servers, cfg.SelectionMode)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{
		cfg:       cfg,
		qt:        NewQTable(cfg.QHashSize),
		rrt:       NewRRTable(cfg.RRHashSize),
		pool:      serverPool,
		transport: transport,
		timer:     timer,
		logger:    logger,
		stats:     NewStats(),
		events:    make(chan event, 64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	transport.SetInbound(func(data []byte, peer *net.UDPAddr) {
		r.post(&inboundEvent{data: data, peer: peer})
	})

	go r.run()
	return r, nil
}

// post enqueues an event for the loop goroutine. It never blocks the caller
// beyond channel backpressure; callbacks from Transport/TimerService must
// only ever call post, never touch Resolver state themselves.
func (r *Resolver) post(ev event) {
	select {
	case r.events <- ev:
	case <-r.stop:
	}
}

func (r *Resolver) run() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.events:
			ev.handle(r)
		case <-r.stop:
			return
		}
	}
}

// Close stops the event loop and releases the transport. Pending queries'
// callers are never notified; callers should have their own shutdown
// ordering if that matters to them.
func (r *Resolver) Close() error {
	close(r.stop)
	<-r.done
	return r.transport.Close()
}

// Stats returns the resolver's live counters.
func (r *Resolver) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

// nextTrID returns the next transaction id, wrapping at 0xFFFF back to 1 so
// 0 stays reserved as a sentinel for "no transaction," mirroring the
// original source's dnsCreateTrId monotonic counter.
func (r *Resolver) nextTrID() uint16 {
	r.nextID++
	if r.nextID == 0 {
		r.nextID = 1
	}
	return r.nextID
}

// buildQuery encodes a single-question query message (RD set, one question,
// no other sections) under the given transaction id and returns the wire
// bytes, which the caller stashes on the QEntry for retransmission.
func buildQuery(name string, qtype uint16, trID uint16) ([]byte, error) {
	h := dns.Header{
		ID:      trID,
		Flags:   dns.RDFlag,
		QDCount: 1,
	}
	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}

	q := dns.Question{Name: name, Type: qtype, Class: uint16(dns.ClassIN)}
	qb, err := q.Marshal()
	if err != nil {
		return nil, fmt.Errorf("resolver: encoding question for %q: %w", name, err)
	}

	return append(hb, qb...), nil
}

// rewriteTrID patches just the ID field of an already-built query buffer.
func rewriteTrID(query []byte, trID uint16) {
	binary.BigEndian.PutUint16(query[0:2], trID)
}

// syncEvent is a no-op event used only by Sync.
type syncEvent struct {
	done chan struct{}
}

func (e *syncEvent) handle(r *Resolver) {
	close(e.done)
}

// Sync blocks until every event posted before this call has been processed
// by the event loop. It exists for deterministic testing against a fake
// Transport/TimerService; production callers have no need for it.
func (r *Resolver) Sync() {
	done := make(chan struct{})
	r.post(&syncEvent{done: done})
	<-done
}

// ServerSnapshot is a read-only view of one pool server, safe to hand to
// callers outside the event loop goroutine.
type ServerSnapshot struct {
	Addr        string
	IP          string
	Port        uint16
	Priority    uint8
	NoRspCount  int
	Quarantined bool
}

// CacheEntrySnapshot is a read-only view of one cached answer.
type CacheEntrySnapshot struct {
	Name  string
	QType uint16
}

// IntrospectionSnapshot is the combined read-only view returned by
// Introspect, assembled entirely on the event loop goroutine so it never
// races with query processing.
type IntrospectionSnapshot struct {
	Servers   []ServerSnapshot
	CacheSize int
	InFlight  int
	CacheKeys []CacheEntrySnapshot
}

// snapshotEvent collects pool/cache/qTable state on the loop goroutine and
// hands it back over reply, the same post-and-wait shape Query uses.
type snapshotEvent struct {
	reply chan IntrospectionSnapshot
}

func (e *snapshotEvent) handle(r *Resolver) {
	snap := IntrospectionSnapshot{
		CacheSize: r.rrt.Len(),
		InFlight:  r.qt.Len(),
	}
	for _, s := range r.pool.Servers() {
		snap.Servers = append(snap.Servers, ServerSnapshot{
			Addr:        s.Addr.String(),
			IP:          s.Addr.IP.String(),
			Port:        uint16(s.Addr.Port),
			Priority:    s.Priority,
			NoRspCount:  s.NoRspCount,
			Quarantined: s.quarantined(),
		})
	}
	for _, k := range r.rrt.Snapshot() {
		snap.CacheKeys = append(snap.CacheKeys, CacheEntrySnapshot{Name: k.Name, QType: k.QType})
	}
	e.reply <- snap
}

// Introspect returns a consistent read-only snapshot of the server pool and
// answer cache, for use by the optional HTTP introspection API.
func (r *Resolver) Introspect() IntrospectionSnapshot {
	reply := make(chan IntrospectionSnapshot, 1)
	r.post(&snapshotEvent{reply: reply})
	return <-reply
}
