package resolver

import (
	"errors"
	"net"
	"time"

	"github.com/jroosing/resolverd/internal/dns"
)

// submitEvent carries a Query() call into the event loop.
type submitEvent struct {
	name       string
	qtype      uint16
	resolveAll bool
	cacheRR    bool
	cb         Callback
	ctx        any
	reply      chan submitResult
}

type submitResult struct {
	status SubmitStatus
	err    error
}

func (e *submitEvent) handle(r *Resolver) {
	status, err := r.handleSubmit(e.name, e.qtype, e.resolveAll, e.cacheRR, e.cb, e.ctx)
	e.reply <- submitResult{status: status, err: err}
}

// inboundEvent carries one received datagram into the event loop.
type inboundEvent struct {
	data []byte
	peer *net.UDPAddr
}

func (e *inboundEvent) handle(r *Resolver) {
	r.handleInbound(e.data, e.peer)
}

// queryTimeoutEvent fires when a QEntry's wait timer expires.
type queryTimeoutEvent struct {
	key     Key
	timerID uint64
}

func (e *queryTimeoutEvent) handle(r *Resolver) {
	r.handleQueryTimeout(e.key, e.timerID)
}

// quarantineTimeoutEvent fires when a quarantined server's cooldown elapses.
type quarantineTimeoutEvent struct {
	server  *ServerInfo
	timerID uint64
}

func (e *quarantineTimeoutEvent) handle(r *Resolver) {
	r.handleQuarantineTimeout(e.server, e.timerID)
}

// ttlExpireEvent fires when a cached REntry's TTL elapses.
type ttlExpireEvent struct {
	key     Key
	timerID uint64
}

func (e *ttlExpireEvent) handle(r *Resolver) {
	r.handleTTLExpire(e.key, e.timerID)
}

// Query submits a query for name/qtype. If resolveAll
// is set, a successful answer triggers the NAPTR->SRV->A recursive walk
// before delivery; if cacheRR is set, the final successful answer is stored
// in the answer cache under its TTL. cb is invoked exactly once, either
// synchronously before Query returns (an rrTable hit) or later from the
// event loop goroutine.
//
// The returned SubmitStatus is DONE when cb has already been called
// synchronously, ONGOING when the query was accepted and cb will fire
// later, and FAIL when the query could not even be submitted (in which case
// cb is never called and the returned error explains why).
func (r *Resolver) Query(name string, qtype uint16, resolveAll, cacheRR bool, cb Callback, ctx any) (SubmitStatus, error) {
	reply := make(chan submitResult, 1)
	r.post(&submitEvent{
		name: name, qtype: qtype, resolveAll: resolveAll, cacheRR: cacheRR,
		cb: cb, ctx: ctx, reply: reply,
	})
	res := <-reply
	return res.status, res.err
}

func (r *Resolver) handleSubmit(name string, qtype uint16, resolveAll, cacheRR bool, cb Callback, ctx any) (SubmitStatus, error) {
	r.stats.queriesSubmitted.Add(1)

	if len(name) > dns.MaxNameSize {
		return Fail, dns.ErrEncodeTooLong
	}

	key := newKey(name, qtype)

	if re, ok := r.rrt.Lookup(key); ok {
		r.stats.cacheHits.Add(1)
		if cb != nil {
			cb(Response{Kind: KindMsg, Msg: re.Msg}, ctx)
		}
		return Done, nil
	}

	if qe, ok := r.qt.Lookup(key); ok {
		qe.Callers = append(qe.Callers, CallerRecord{CB: cb, Ctx: ctx})
		if cacheRR {
			qe.CacheOnSuccess = true
		}
		if resolveAll {
			qe.ResolveAll = true
		}
		return Ongoing, nil
	}

	server := r.pool.Pick()
	if server == nil {
		return Fail, ErrNoServer
	}

	trID := r.nextTrID()
	query, err := buildQuery(key.Name, qtype, trID)
	if err != nil {
		return Fail, err
	}

	qe := &QEntry{
		Key:            key,
		Question:       query,
		TrID:           trID,
		Server:         server,
		ServerQueried:  1,
		CacheOnSuccess: cacheRR,
		ResolveAll:     resolveAll,
		Callers:        []CallerRecord{{CB: cb, Ctx: ctx}},
		State:          StateCreated,
	}

	if err := r.send(qe); err != nil {
		return Fail, err
	}

	r.qt.Insert(qe)
	return Ongoing, nil
}

// send transmits qe.Question to qe.Server and arms the wait-response timer.
func (r *Resolver) send(qe *QEntry) error {
	if err := r.transport.Send(qe.Server.Addr, qe.Question); err != nil {
		r.stats.sendErrors.Add(1)
		return ErrTransportSendFailed
	}

	qe.State = StateSent

	var id uint64
	id = r.timer.Start(r.cfg.WaitResponseTimeout, func() {
		r.post(&queryTimeoutEvent{key: qe.Key, timerID: id})
	})
	qe.WaitTimerID = id

	r.stats.queriesSent.Add(1)
	return nil
}

// handleQueryTimeout implements the retry-or-fail transition: a stale timer
// id (already superseded by a response or an
// earlier retry) is ignored, a server that just crossed the quarantine
// threshold is quarantined, and the query either retries against the next
// healthy server or fails outright once MaxAllowedServerPerQuery is spent.
func (r *Resolver) handleQueryTimeout(key Key, timerID uint64) {
	qe, ok := r.qt.Lookup(key)
	if !ok || qe.WaitTimerID != timerID {
		return
	}

	if r.pool.RecordNoResponse(qe.Server, r.cfg.QuarantineThreshold) {
		r.quarantineServer(qe.Server)
	}

	if qe.ServerQueried >= r.cfg.MaxAllowedServerPerQuery {
		r.finalizeEntry(qe, dns.Packet{}, ErrNoServer, StatusNoResponse)
		return
	}

	next := r.pool.Pick()
	if next == qe.Server {
		for _, s := range r.pool.servers {
			if s != qe.Server && !s.quarantined() {
				next = s
				break
			}
		}
	}
	if next == nil {
		r.finalizeEntry(qe, dns.Packet{}, ErrNoServer, StatusNoResponse)
		return
	}

	qe.Server = next
	qe.ServerQueried++

	if err := r.send(qe); err != nil {
		r.finalizeEntry(qe, dns.Packet{}, err, StatusSocket)
		return
	}
	r.stats.queriesRetried.Add(1)
}

func (r *Resolver) quarantineServer(s *ServerInfo) {
	var id uint64
	id = r.timer.Start(r.cfg.QuarantineTimeout, func() {
		r.post(&quarantineTimeoutEvent{server: s, timerID: id})
	})
	r.pool.Quarantine(s, id)
	r.stats.serversQuarantined.Add(1)
}

func (r *Resolver) handleQuarantineTimeout(s *ServerInfo, timerID uint64) {
	if s.QuarantineTimerID != timerID {
		return
	}
	r.pool.EndQuarantine(s)
}

func (r *Resolver) handleTTLExpire(key Key, timerID uint64) {
	re, ok := r.rrt.Lookup(key)
	if !ok || re.TTLTimerID != timerID {
		return
	}
	r.rrt.Delete(key)
}

// handleInbound decodes a datagram and routes it to the QEntry whose
// question it answers. Anything that cannot be matched to a live entry, a
// malformed datagram, a reply to a query that already timed out or was
// already delivered, an unsolicited packet, is dropped silently: the
// originating query (if any) is left to time out and retry on its own.
func (r *Resolver) handleInbound(data []byte, peer *net.UDPAddr) {
	msg, decodeErr := dns.DecodeResponse(data)
	rejected := errors.Is(decodeErr, dns.ErrServerRejected)
	if decodeErr != nil && !rejected {
		r.stats.malformedResponse.Add(1)
		return
	}
	if len(msg.Questions) != 1 {
		return
	}

	q := msg.Questions[0]
	key := newKey(q.Name, q.Type)

	qe, ok := r.qt.Lookup(key)
	if !ok {
		return
	}

	if r.cfg.VerifyTransactionID && msg.Header.ID != qe.TrID {
		return
	}

	r.pool.RecordSuccess(qe.Server)

	if rejected {
		r.finalizeEntry(qe, dns.Packet{}, dns.ErrServerRejected, StatusOther)
		return
	}

	r.finalizeEntry(qe, msg, nil, StatusOK)
}

// finalizeEntry removes qe from the query table and delivers its outcome to
// every ordinary caller and every recursive-walk waiter attached to it. err
// == nil means msg is a successful NOERROR-or-not response to hand callers
// directly; err != nil means status explains why no usable message exists.
func (r *Resolver) finalizeEntry(qe *QEntry, msg dns.Packet, err error, status StatusCode) {
	if qe.WaitTimerID != 0 {
		r.timer.Stop(qe.WaitTimerID)
		qe.WaitTimerID = 0
	}
	r.qt.Delete(qe.Key)

	if err == nil && qe.ResolveAll {
		r.startWalk(qe, msg)
	} else if err == nil {
		r.deliverMessage(qe.Callers, msg, qe.CacheOnSuccess, qe.Key)
	} else {
		r.deliverFailure(qe.Callers, status)
	}

	for _, w := range qe.walkWaiters {
		r.completeChild(w.ctx, qe.Key.QType, msg, err)
	}
}

func (r *Resolver) deliverMessage(callers []CallerRecord, msg dns.Packet, cache bool, key Key) {
	if cache && dns.RCodeFromFlags(msg.Header.Flags) == dns.RCodeNoError && len(msg.Answers) > 0 {
		r.cacheAnswer(key, msg)
	}
	resp := Response{Kind: KindMsg, Msg: msg}
	for _, c := range callers {
		if c.CB != nil {
			c.CB(resp, c.Ctx)
		}
	}
	r.stats.queriesDelivered.Add(1)
}

func (r *Resolver) deliverFailure(callers []CallerRecord, status StatusCode) {
	resp := Response{Kind: KindStatus, Status: status}
	for _, c := range callers {
		if c.CB != nil {
			c.CB(resp, c.Ctx)
		}
	}
	r.stats.queriesFailed.Add(1)
}

// cacheAnswer stores msg under key and arms a TTL timer sized to the
// minimum TTL across its answers. A zero TTL is treated as explicitly
// non-cacheable rather than as an instantly-expiring entry.
func (r *Resolver) cacheAnswer(key Key, msg dns.Packet) {
	ttl := minimumTTL(msg)
	if ttl == 0 {
		return
	}

	re := &REntry{Key: key, Msg: msg}
	var id uint64
	id = r.timer.Start(time.Duration(ttl)*time.Second, func() {
		r.post(&ttlExpireEvent{key: key, timerID: id})
	})
	re.TTLTimerID = id
	r.rrt.Insert(re)
}
