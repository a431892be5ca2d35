package resolver

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/resolverd/internal/dns"
)

func oneServer() []ServerConfig {
	return []ServerConfig{{IP: "127.0.0.1", Port: 5300, Priority: 1}}
}

func twoServers() []ServerConfig {
	return []ServerConfig{
		{IP: "127.0.0.1", Port: 5300, Priority: 1},
		{IP: "127.0.0.1", Port: 5301, Priority: 2},
	}
}

func lastSentTrID(t *testing.T, ft *fakeTransport) uint16 {
	t.Helper()
	s := ft.lastSent()
	require.GreaterOrEqual(t, len(s.payload), 2)
	return uint16(s.payload[0])<<8 | uint16(s.payload[1])
}

type callbackCollector struct {
	mu   sync.Mutex
	resp []Response
}

func (c *callbackCollector) cb(resp Response, ctx any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resp = append(c.resp, resp)
}

func (c *callbackCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resp)
}

func (c *callbackCollector) last() Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resp[len(c.resp)-1]
}

func TestQuery_CacheMiss_SendsAndDelivers(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	cc := &callbackCollector{}
	status, err := r.Query("example.com", uint16(dns.TypeA), false, true, cc.cb, nil)
	require.NoError(t, err)
	assert.Equal(t, Ongoing, status)
	require.Equal(t, 1, ft.sentCount())

	trID := lastSentTrID(t, ft)
	resp := buildAResponse(trID, "example.com", [4]byte{93, 184, 216, 34}, 300)
	ft.deliver(resp, ft.lastSent().peer)
	r.Sync()

	require.Equal(t, 1, cc.count())
	got := cc.last()
	require.Equal(t, KindMsg, got.Kind)
	assert.True(t, got.IsNoError())
	ip, ok := got.Msg.Answers[0].IPv4()
	require.True(t, ok)
	assert.Equal(t, "93.184.216.34", ip)
}

func TestQuery_CacheHit_DeliversSynchronously(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	first := &callbackCollector{}
	_, err := r.Query("cached.example.com", uint16(dns.TypeA), false, true, first.cb, nil)
	require.NoError(t, err)

	trID := lastSentTrID(t, ft)
	resp := buildAResponse(trID, "cached.example.com", [4]byte{1, 2, 3, 4}, 300)
	ft.deliver(resp, ft.lastSent().peer)
	r.Sync()
	require.Equal(t, 1, first.count())

	second := &callbackCollector{}
	status, err := r.Query("cached.example.com", uint16(dns.TypeA), false, false, second.cb, nil)
	require.NoError(t, err)
	assert.Equal(t, Done, status)
	require.Equal(t, 1, second.count())
	assert.Equal(t, 1, ft.sentCount(), "cache hit must not issue a new query")
}

func TestQuery_DedupsConcurrentCallers(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	a := &callbackCollector{}
	b := &callbackCollector{}

	status1, err := r.Query("dup.example.com", uint16(dns.TypeA), false, false, a.cb, nil)
	require.NoError(t, err)
	assert.Equal(t, Ongoing, status1)

	status2, err := r.Query("dup.example.com", uint16(dns.TypeA), false, false, b.cb, "ctx-b")
	require.NoError(t, err)
	assert.Equal(t, Ongoing, status2)

	assert.Equal(t, 1, ft.sentCount(), "a second caller on the same key must not resend")

	trID := lastSentTrID(t, ft)
	resp := buildAResponse(trID, "dup.example.com", [4]byte{5, 6, 7, 8}, 60)
	ft.deliver(resp, ft.lastSent().peer)
	r.Sync()

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestQuery_NameTooLong_FailsAtSubmission(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	long := ""
	for len(long) <= dns.MaxNameSize {
		long += "a"
	}

	status, err := r.Query(long, uint16(dns.TypeA), false, false, nil, nil)
	assert.Equal(t, Fail, status)
	assert.ErrorIs(t, err, dns.ErrEncodeTooLong)
	assert.Equal(t, 0, ft.sentCount())
}

func TestQuery_TimeoutRetriesThenFails(t *testing.T) {
	r, ft, tm := newTestResolver(t, twoServers())
	defer r.Close()

	cc := &callbackCollector{}
	_, err := r.Query("flaky.example.com", uint16(dns.TypeA), false, false, cc.cb, nil)
	require.NoError(t, err)
	require.Equal(t, 1, ft.sentCount())

	firstTimerID := tm.lastID()
	tm.fire(firstTimerID)
	r.Sync()

	require.Equal(t, 2, ft.sentCount(), "first timeout should retry against the second server")
	assert.Equal(t, 0, cc.count())

	secondTimerID := tm.lastID()
	tm.fire(secondTimerID)
	r.Sync()

	require.Equal(t, 1, cc.count())
	got := cc.last()
	assert.Equal(t, KindStatus, got.Kind)
	assert.Equal(t, StatusNoResponse, got.Status)
}

func TestQuery_ServerRejected_DeliversStatusOther(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	cc := &callbackCollector{}
	_, err := r.Query("rejected.example.com", uint16(dns.TypeA), false, false, cc.cb, nil)
	require.NoError(t, err)

	trID := lastSentTrID(t, ft)
	pkt := dns.Packet{
		Header: dns.Header{
			ID:      trID,
			Flags:   dns.QRFlag | uint16(dns.RCodeFormErr),
			QDCount: 1,
		},
		Questions: []dns.Question{{Name: "rejected.example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}},
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)

	ft.deliver(raw, ft.lastSent().peer)
	r.Sync()

	require.Equal(t, 1, cc.count())
	got := cc.last()
	assert.Equal(t, KindStatus, got.Kind)
	assert.Equal(t, StatusOther, got.Status)
}

func TestQuery_UnsolicitedResponse_Dropped(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	resp := buildAResponse(999, "nobodyasked.example.com", [4]byte{1, 1, 1, 1}, 60)
	ft.deliver(resp, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5300})
	r.Sync()
	assert.Equal(t, 0, r.qt.Len())
}

func TestQuery_ResolveAll_NAPTRtoSRVtoAChain(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	cc := &callbackCollector{}
	_, err := r.Query("_service.example.com", uint16(dns.TypeNAPTR), true, false, cc.cb, nil)
	require.NoError(t, err)
	require.Equal(t, 1, ft.sentCount())

	naptrTrID := lastSentTrID(t, ft)
	naptrResp := buildResponse(naptrTrID, "_service.example.com", uint16(dns.TypeNAPTR), []dns.Record{
		{
			Name: "_service.example.com", Type: uint16(dns.TypeNAPTR), Class: uint16(dns.ClassIN), TTL: 300,
			Data: dns.NAPTRData{Order: 1, Preference: 1, Flag: dns.NaptrFlagS, Service: "SIP+D2U", Replacement: "_sip._udp.example.com"},
		},
	}, nil)
	ft.deliver(naptrResp, ft.lastSent().peer)
	r.Sync()

	require.Equal(t, 2, ft.sentCount(), "a NAPTR answer should spawn a follow-up SRV query")
	srvTrID := lastSentTrID(t, ft)
	srvResp := buildResponse(srvTrID, "_sip._udp.example.com", uint16(dns.TypeSRV), []dns.Record{
		{
			Name: "_sip._udp.example.com", Type: uint16(dns.TypeSRV), Class: uint16(dns.ClassIN), TTL: 120,
			Data: dns.SRVData{Priority: 0, Weight: 0, Port: 5060, Target: "sipserver.example.com"},
		},
	}, nil)
	ft.deliver(srvResp, ft.lastSent().peer)
	r.Sync()

	require.Equal(t, 3, ft.sentCount(), "an SRV answer should spawn a follow-up A query")
	aTrID := lastSentTrID(t, ft)
	aResp := buildAResponse(aTrID, "sipserver.example.com", [4]byte{10, 0, 0, 1}, 60)
	ft.deliver(aResp, ft.lastSent().peer)
	r.Sync()

	require.Equal(t, 1, cc.count())
	got := cc.last()
	require.Equal(t, KindMsgList, got.Kind)
	require.Len(t, got.List, 3)
	assert.True(t, got.IsNoError())
}

func TestQuery_ResolveAll_ReusesAdditionalSection(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	cc := &callbackCollector{}
	_, err := r.Query("_service2.example.com", uint16(dns.TypeNAPTR), true, false, cc.cb, nil)
	require.NoError(t, err)

	trID := lastSentTrID(t, ft)
	resp := buildResponse(trID, "_service2.example.com", uint16(dns.TypeNAPTR),
		[]dns.Record{
			{
				Name: "_service2.example.com", Type: uint16(dns.TypeNAPTR), Class: uint16(dns.ClassIN), TTL: 300,
				Data: dns.NAPTRData{Order: 1, Preference: 1, Flag: dns.NaptrFlagS, Replacement: "_sip._udp.example.com"},
			},
		},
		[]dns.Record{
			{
				Name: "_sip._udp.example.com", Type: uint16(dns.TypeSRV), Class: uint16(dns.ClassIN), TTL: 120,
				Data: dns.SRVData{Priority: 0, Weight: 0, Port: 5060, Target: "sipserver.example.com"},
			},
		},
	)
	ft.deliver(resp, ft.lastSent().peer)
	r.Sync()

	// The SRV answer came from the additional section, so only the
	// follow-up A query should actually go over the wire.
	require.Equal(t, 2, ft.sentCount())

	aTrID := lastSentTrID(t, ft)
	aResp := buildAResponse(aTrID, "sipserver.example.com", [4]byte{10, 0, 0, 2}, 60)
	ft.deliver(aResp, ft.lastSent().peer)
	r.Sync()

	require.Equal(t, 1, cc.count())
	got := cc.last()
	require.Equal(t, KindMsgList, got.Kind)
	// Only the NAPTR response and the live A response are real messages;
	// the SRV resolved straight from additional contributes no entry.
	require.Len(t, got.List, 2)
}

func TestQuery_ResolveAll_FirstSiblingSynchronous_CallbackFiresOnce(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	// Pre-seed the cache so the first SRV target resolves synchronously,
	// while the second has to go out as a live query. This is the ordering
	// finishWalk must survive: pending must already account for both
	// siblings before the first one's synchronous completion can run.
	cachedKey := newKey("cached-a.example.com", uint16(dns.TypeA))
	r.rrt.Insert(&REntry{
		Key: cachedKey,
		Msg: buildAResponseMsg("cached-a.example.com", [4]byte{10, 0, 0, 9}, 300),
	})

	cc := &callbackCollector{}
	_, err := r.Query("_sip._tcp.sync.example.com", uint16(dns.TypeSRV), true, false, cc.cb, nil)
	require.NoError(t, err)
	require.Equal(t, 1, ft.sentCount())

	trID := lastSentTrID(t, ft)
	resp := buildResponse(trID, "_sip._tcp.sync.example.com", uint16(dns.TypeSRV), []dns.Record{
		{
			Name: "_sip._tcp.sync.example.com", Type: uint16(dns.TypeSRV), Class: uint16(dns.ClassIN), TTL: 120,
			Data: dns.SRVData{Priority: 0, Weight: 0, Port: 5060, Target: "cached-a.example.com"},
		},
		{
			Name: "_sip._tcp.sync.example.com", Type: uint16(dns.TypeSRV), Class: uint16(dns.ClassIN), TTL: 120,
			Data: dns.SRVData{Priority: 1, Weight: 0, Port: 5060, Target: "live-b.example.com"},
		},
	}, nil)
	ft.deliver(resp, ft.lastSent().peer)
	r.Sync()

	// The first target resolved straight from cache; the callback must not
	// have fired yet even though that sibling already "completed" - the
	// second target's live A query is still outstanding.
	require.Equal(t, 2, ft.sentCount(), "the second SRV target's A lookup should be the only follow-up query")
	assert.Equal(t, 0, cc.count(), "finishWalk must not fire before every sibling has been spawned")

	aTrID := lastSentTrID(t, ft)
	aResp := buildAResponse(aTrID, "live-b.example.com", [4]byte{10, 0, 0, 10}, 60)
	ft.deliver(aResp, ft.lastSent().peer)
	r.Sync()

	require.Equal(t, 1, cc.count(), "the caller must receive exactly one terminal callback")
	got := cc.last()
	require.Equal(t, KindMsgList, got.Kind)
	require.Len(t, got.List, 3)
}

func TestQuery_ResolveAll_FullyResolvedFromAdditional_NoFollowUpQuery(t *testing.T) {
	r, ft, _ := newTestResolver(t, oneServer())
	defer r.Close()

	cc := &callbackCollector{}
	_, err := r.Query("mtas.ims.example.com", uint16(dns.TypeNAPTR), true, false, cc.cb, nil)
	require.NoError(t, err)
	require.Equal(t, 1, ft.sentCount())

	trID := lastSentTrID(t, ft)
	resp := buildResponse(trID, "mtas.ims.example.com", uint16(dns.TypeNAPTR),
		[]dns.Record{
			{
				Name: "mtas.ims.example.com", Type: uint16(dns.TypeNAPTR), Class: uint16(dns.ClassIN), TTL: 300,
				Data: dns.NAPTRData{Order: 1, Preference: 1, Flag: dns.NaptrFlagS, Replacement: "_sip._tcp.mtas.ims.example.com"},
			},
		},
		[]dns.Record{
			{
				Name: "_sip._tcp.mtas.ims.example.com", Type: uint16(dns.TypeSRV), Class: uint16(dns.ClassIN), TTL: 120,
				Data: dns.SRVData{Priority: 0, Weight: 0, Port: 5060, Target: "host1.ims.example.com"},
			},
			{
				Name: "host1.ims.example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN), TTL: 60,
				Data: []byte{10, 0, 0, 3},
			},
		},
	)
	ft.deliver(resp, ft.lastSent().peer)
	r.Sync()

	require.Equal(t, 1, ft.sentCount(), "both SRV and A are in additional; no follow-up query should be issued")
	require.Equal(t, 1, cc.count())
	got := cc.last()
	require.Equal(t, KindMsgList, got.Kind)
	require.Len(t, got.List, 1, "only the original NAPTR message should be reported")
}

func TestQuery_ResolveAll_RecursiveFailure_StickyStatus(t *testing.T) {
	r, ft, tm := newTestResolver(t, oneServer())
	defer r.Close()

	cc := &callbackCollector{}
	_, err := r.Query("_sip._tcp.example.com", uint16(dns.TypeSRV), true, false, cc.cb, nil)
	require.NoError(t, err)
	require.Equal(t, 1, ft.sentCount())

	trID := lastSentTrID(t, ft)
	resp := buildResponse(trID, "_sip._tcp.example.com", uint16(dns.TypeSRV),
		[]dns.Record{
			{
				Name: "_sip._tcp.example.com", Type: uint16(dns.TypeSRV), Class: uint16(dns.ClassIN), TTL: 120,
				Data: dns.SRVData{Priority: 0, Weight: 0, Port: 5060, Target: "a.example.com"},
			},
			{
				Name: "_sip._tcp.example.com", Type: uint16(dns.TypeSRV), Class: uint16(dns.ClassIN), TTL: 120,
				Data: dns.SRVData{Priority: 1, Weight: 0, Port: 5060, Target: "b.example.com"},
			},
		},
		[]dns.Record{
			{
				Name: "a.example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN), TTL: 60,
				Data: []byte{10, 0, 0, 4},
			},
		},
	)
	ft.deliver(resp, ft.lastSent().peer)
	r.Sync()

	// a.example.com resolved straight from additional; only b's A query
	// should have gone out, and the callback must not have fired yet even
	// though the additional-resolved sibling already "completed".
	require.Equal(t, 2, ft.sentCount(), "only b's follow-up A query should be issued")
	assert.Equal(t, 0, cc.count(), "callback must wait for every sibling, not fire as soon as the first one resolves")

	// b's query retries once against the (sole) server before giving up.
	tm.fire(tm.lastID())
	r.Sync()
	assert.Equal(t, 0, cc.count())

	tm.fire(tm.lastID())
	r.Sync()

	require.Equal(t, 1, cc.count(), "the caller must receive exactly one terminal callback")
	got := cc.last()
	assert.Equal(t, KindStatus, got.Kind)
	assert.Equal(t, StatusRecursive, got.Status)
}
