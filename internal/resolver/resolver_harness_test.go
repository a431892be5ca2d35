package resolver

import (
	"net"
	"sync"
	"time"

	"github.com/jroosing/resolverd/internal/dns"
)

// fakeTransport records every datagram handed to Send and lets tests inject
// inbound datagrams synchronously, instead of opening a real socket.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []fakeSend
	onRecv func(data []byte, peer *net.UDPAddr)
	closed bool
}

type fakeSend struct {
	peer    *net.UDPAddr
	payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Send(peer *net.UDPAddr, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), payload...)
	f.sent = append(f.sent, fakeSend{peer: peer, payload: cp})
	return nil
}

func (f *fakeTransport) SetInbound(cb func(data []byte, peer *net.UDPAddr)) {
	f.mu.Lock()
	f.onRecv = cb
	f.mu.Unlock()
}

func (f *fakeTransport) LocalAddr() string { return "127.0.0.1:0" }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) deliver(data []byte, peer *net.UDPAddr) {
	f.mu.Lock()
	cb := f.onRecv
	f.mu.Unlock()
	cb(data, peer)
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) lastSent() fakeSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

// fakeTimer gives tests manual control over when a scheduled callback runs,
// instead of depending on wall-clock sleeps.
type fakeTimer struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]func()
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{pending: make(map[uint64]func())}
}

func (f *fakeTimer) Start(d time.Duration, fn func()) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.pending[id] = fn
	return id
}

func (f *fakeTimer) Stop(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, id)
}

// fire runs the callback registered for id, if it is still pending.
func (f *fakeTimer) fire(id uint64) {
	f.mu.Lock()
	fn, ok := f.pending[id]
	delete(f.pending, id)
	f.mu.Unlock()
	if ok {
		fn()
	}
}

func (f *fakeTimer) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// lastID returns the most recently issued timer id, used by tests that fire
// "whatever timer was just armed" without threading ids through by hand.
func (f *fakeTimer) lastID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextID
}

// newTestResolver wires a Resolver to a fakeTransport/fakeTimer pair, with
// server addresses on ports that are never actually dialed.
func newTestResolver(t interface {
	Helper()
	Fatalf(string, ...any)
}, servers []ServerConfig) (*Resolver, *fakeTransport, *fakeTimer) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Servers = servers

	ft := newFakeTransport()
	tm := newFakeTimer()

	r, err := New(cfg, ft, tm, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, ft, tm
}

// buildAResponse builds a NOERROR response to trID/name with one A record
// of the given IP and ttl, echoing name/qtype in the question section.
func buildAResponse(trID uint16, name string, ip [4]byte, ttl uint32) []byte {
	return buildResponse(trID, name, uint16(dns.TypeA), []dns.Record{
		{Name: name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN), TTL: ttl, Data: ip[:]},
	}, nil)
}

// buildAResponseMsg builds the same answer as buildAResponse but returns the
// decoded dns.Packet directly, for tests that pre-seed the rrTable rather
// than deliver bytes over a fakeTransport.
func buildAResponseMsg(name string, ip [4]byte, ttl uint32) dns.Packet {
	return dns.Packet{
		Header:    dns.Header{Flags: dns.QRFlag | dns.RDFlag | dns.RAFlag, QDCount: 1, ANCount: 1},
		Questions: []dns.Question{{Name: name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}},
		Answers: []dns.Record{
			{Name: name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN), TTL: ttl, Data: ip[:]},
		},
	}
}

func buildResponse(trID uint16, name string, qtype uint16, answers, additionals []dns.Record) []byte {
	pkt := dns.Packet{
		Header: dns.Header{
			ID:      trID,
			Flags:   dns.QRFlag | dns.RDFlag | dns.RAFlag,
			QDCount: 1,
			ANCount: uint16(len(answers)),
			ARCount: uint16(len(additionals)),
		},
		Questions:   []dns.Question{{Name: name, Type: qtype, Class: uint16(dns.ClassIN)}},
		Answers:     answers,
		Additionals: additionals,
	}
	b, err := pkt.Marshal()
	if err != nil {
		panic(err)
	}
	return b
}
