package resolver

import "github.com/jroosing/resolverd/internal/dns"

// WalkCtx aggregates one resolveAll chain: a NAPTR answer fans out into SRV
// (flag S) or A (flag A) lookups, each SRV answer fans out into an A lookup. Grounded on the
// original source's dnsRecurQuery.c: a child failure does not abort the
// walk, it is recorded and the remaining pending children are still drained
// before the aggregate result is delivered.
type WalkCtx struct {
	callers []CallerRecord

	// additionals is the root response's Additional section. It is
	// consulted at every layer of the chain, never a child's own
	// response - the original source only ever reuses the initial
	// query's Additional records.
	additionals []dns.Record

	results    []dns.Packet
	pending    int
	failed     bool
	failStatus StatusCode
}

// childProbe is one derived (name, type) lookup one layer down the chain.
type childProbe struct {
	name  string
	qtype uint16
}

// nextQType returns the record type one level down the NAPTR->SRV->A chain,
// or false if qtype is already the bottom of the chain.
func nextQType(qtype uint16) (uint16, bool) {
	switch dns.RecordType(qtype) {
	case dns.TypeNAPTR:
		return uint16(dns.TypeSRV), true
	case dns.TypeSRV:
		return uint16(dns.TypeA), true
	default:
		return 0, false
	}
}

// childNames extracts the next layer's query names from a parent answer
// set: a NAPTR record's replacement field, or an SRV record's target.
func childNames(qtype uint16, msg dns.Packet) []string {
	var names []string
	switch dns.RecordType(qtype) {
	case dns.TypeNAPTR:
		for _, rr := range msg.Answers {
			naptr, ok := rr.NAPTR()
			if !ok {
				continue
			}
			// An empty/root replacement means the NAPTR terminates the
			// chain via its regexp field instead of pointing onward.
			if naptr.Replacement != "" && naptr.Replacement != "." {
				names = append(names, naptr.Replacement)
			}
		}
	case dns.TypeSRV:
		for _, rr := range msg.Answers {
			if srv, ok := rr.SRV(); ok {
				names = append(names, srv.Target)
			}
		}
	}
	return names
}

// deriveProbes turns one layer's answer set into the next layer's probes.
// A NAPTR record with flag S leads to an SRV lookup and one with flag A to
// an A lookup; NAPTR records with any other flag are not followed.
func deriveProbes(qtype uint16, msg dns.Packet) []childProbe {
	if dns.RecordType(qtype) == dns.TypeNAPTR {
		var probes []childProbe
		for _, rr := range msg.Answers {
			naptr, ok := rr.NAPTR()
			if !ok || naptr.Replacement == "" || naptr.Replacement == "." {
				continue
			}
			if naptr.Flag == dns.NaptrFlagS {
				probes = append(probes, childProbe{name: naptr.Replacement, qtype: uint16(dns.TypeSRV)})
			} else if naptr.Flag == dns.NaptrFlagA {
				probes = append(probes, childProbe{name: naptr.Replacement, qtype: uint16(dns.TypeA)})
			}
		}
		return probes
	}
	nextType, ok := nextQType(qtype)
	if !ok {
		return nil
	}
	names := childNames(qtype, msg)
	if len(names) == 0 {
		return nil
	}
	probes := make([]childProbe, 0, len(names))
	for _, name := range names {
		probes = append(probes, childProbe{name: name, qtype: nextType})
	}
	return probes
}

// findAdditional looks for a (name, qtype) match in additional, the same
// reuse isRspHasNextLayerQ performs in the original source before issuing a
// brand new query.
func findAdditional(additional []dns.Record, name string, qtype uint16) (dns.Record, bool) {
	target := dns.NormalizeName(name)
	for _, rr := range additional {
		if rr.Type == qtype && dns.NormalizeName(rr.Name) == target {
			return rr, true
		}
	}
	return dns.Record{}, false
}

// resolveFromAdditional attempts to fully resolve probe p from additional.
// An SRV probe is resolved only if its matching record's target also has an
// A record in additional (the nested probe one layer further down); when the
// SRV record itself is present but its target isn't, the SRV need not be
// re-queried - only the target A is deferred. A probe that has no match at
// all in additional is deferred as-is.
func resolveFromAdditional(additional []dns.Record, p childProbe) (resolved bool, deferred []childProbe) {
	rr, found := findAdditional(additional, p.name, p.qtype)
	if !found {
		return false, []childProbe{p}
	}
	if dns.RecordType(p.qtype) != dns.TypeSRV {
		return true, nil
	}
	srv, ok := rr.SRV()
	if !ok {
		return true, nil
	}
	aProbe := childProbe{name: srv.Target, qtype: uint16(dns.TypeA)}
	if _, found := findAdditional(additional, aProbe.name, aProbe.qtype); found {
		return true, nil
	}
	return false, []childProbe{aProbe}
}

// startWalk begins a resolveAll chain from qe's own successful answer. qe
// has already been removed from the query table by the caller.
func (r *Resolver) startWalk(qe *QEntry, msg dns.Packet) {
	if qe.CacheOnSuccess {
		r.deliverMessage(nil, msg, true, qe.Key) // cache the root answer only; callers are notified via finishWalk
	}

	wc := &WalkCtx{callers: qe.Callers, results: []dns.Packet{msg}, additionals: msg.Additionals}

	if dns.RCodeFromFlags(msg.Header.Flags) != dns.RCodeNoError {
		wc.failed = true
		wc.failStatus = StatusOther
		r.finishWalk(wc)
		return
	}

	probes := deriveProbes(qe.Key.QType, msg)
	if len(probes) == 0 {
		r.finishWalk(wc)
		return
	}

	wc.pending++ // hold the walk open while this layer is dispatched
	r.dispatchProbes(wc, probes)
	wc.pending--
	if wc.pending == 0 {
		r.finishWalk(wc)
	}
}

// dispatchProbes resolves each probe from the walk's root additional section
// where possible - those never become a child and contribute no result
// message - and spawns a live query for the rest. wc.pending is seeded with
// the full live count before any of them can complete synchronously, so
// finishWalk can never fire before every sibling at this layer has been
// accounted for.
func (r *Resolver) dispatchProbes(wc *WalkCtx, probes []childProbe) {
	var live []childProbe
	for _, p := range probes {
		resolved, deferred := resolveFromAdditional(wc.additionals, p)
		if resolved {
			continue
		}
		live = append(live, deferred...)
	}
	if len(live) == 0 {
		return
	}

	wc.pending += len(live)
	for _, p := range live {
		r.spawnChild(wc, p.name, p.qtype)
	}
}

// spawnChild issues (or reuses) one live query for a single probe that
// dispatchProbes could not resolve from additional. The caller has already
// accounted for this child in wc.pending.
func (r *Resolver) spawnChild(wc *WalkCtx, name string, qtype uint16) {
	key := newKey(name, qtype)

	if re, found := r.rrt.Lookup(key); found {
		r.stats.cacheHits.Add(1)
		r.completeChild(wc, qtype, re.Msg, nil)
		return
	}

	if existing, found := r.qt.Lookup(key); found {
		existing.walkWaiters = append(existing.walkWaiters, &walkChild{ctx: wc})
		return
	}

	server := r.pool.Pick()
	if server == nil {
		r.completeChild(wc, qtype, dns.Packet{}, ErrNoServer)
		return
	}

	trID := r.nextTrID()
	query, err := buildQuery(key.Name, qtype, trID)
	if err != nil {
		r.completeChild(wc, qtype, dns.Packet{}, err)
		return
	}

	child := &QEntry{
		Key:           key,
		Question:      query,
		TrID:          trID,
		Server:        server,
		ServerQueried: 1,
		State:         StateCreated,
		walkWaiters:   []*walkChild{{ctx: wc}},
	}

	if err := r.send(child); err != nil {
		r.completeChild(wc, qtype, dns.Packet{}, err)
		return
	}

	r.qt.Insert(child)
}

// completeChild records one live child's outcome, expands it into the next
// layer on success, and, once every pending child has reported in, delivers
// the aggregate result. It is only ever called for a probe that actually
// went out as a live query (or cache lookup) - a probe resolved straight
// from additional never reaches here and never contributes a result
// message.
func (r *Resolver) completeChild(wc *WalkCtx, qtype uint16, msg dns.Packet, err error) {
	ok := err == nil && dns.RCodeFromFlags(msg.Header.Flags) == dns.RCodeNoError

	if !ok {
		wc.failed = true
		if wc.failStatus == StatusOK {
			wc.failStatus = StatusRecursive
		}
	} else {
		wc.results = append(wc.results, msg)
		if probes := deriveProbes(qtype, msg); len(probes) > 0 {
			r.dispatchProbes(wc, probes)
		}
	}

	wc.pending--
	if wc.pending == 0 {
		r.finishWalk(wc)
	}
}

// finishWalk delivers the walk's aggregate outcome to its original callers.
// A walk that recorded any failure reports STATUS, even when other branches
// succeeded; only a walk with no failure delivers its collected messages as
// a MSGLIST.
func (r *Resolver) finishWalk(wc *WalkCtx) {
	var resp Response
	if wc.failed {
		resp = Response{Kind: KindStatus, Status: wc.failStatus}
	} else {
		resp = Response{Kind: KindMsgList, List: wc.results}
	}

	for _, c := range wc.callers {
		if c.CB != nil {
			c.CB(resp, c.Ctx)
		}
	}
	r.stats.queriesDelivered.Add(1)
}
