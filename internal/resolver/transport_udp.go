package resolver

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/pool"
)

// UDPTransport is the default Transport, a single UDP socket shared by every
// outbound query and the inbound read loop. Buffer pooling follows the same
// sync.Pool-of-fixed-size-slices pattern the listener side of this codebase
// uses for inbound datagrams, sized to dns.MaxMsgSize since a stub resolver
// never needs TCP-sized buffers.
type UDPTransport struct {
	conn *net.UDPConn
	bufs *pool.Pool[*[]byte]

	mu     sync.Mutex
	onRecv func(data []byte, peer *net.UDPAddr)

	logger *slog.Logger
	done   chan struct{}
}

// NewUDPTransport binds localAddr (empty for an OS-chosen ephemeral port)
// and starts the inbound read loop in its own goroutine. The loop goroutine
// only ever calls the registered inbound callback; it never touches
// resolver state directly.
func NewUDPTransport(localAddr string, logger *slog.Logger) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolver: resolving local address %q: %w", localAddr, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("resolver: binding udp socket: %w", err)
	}

	t := &UDPTransport{
		conn: conn,
		bufs: pool.New(func() *[]byte {
			b := make([]byte, dns.MaxMsgSize)
			return &b
		}),
		logger: logger,
		done:   make(chan struct{}),
	}

	go t.readLoop()
	return t, nil
}

func (t *UDPTransport) readLoop() {
	for {
		bufPtr := t.bufs.Get()
		buf := *bufPtr
		n, peer, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			t.bufs.Put(bufPtr)
			select {
			case <-t.done:
				return
			default:
				t.logger.Warn("udp read error", "error", err)
				continue
			}
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])
		t.bufs.Put(bufPtr)

		t.mu.Lock()
		cb := t.onRecv
		t.mu.Unlock()
		if cb != nil {
			cb(msg, peer)
		}
	}
}

func (t *UDPTransport) Send(peer *net.UDPAddr, payload []byte) error {
	_, err := t.conn.WriteToUDP(payload, peer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportSendFailed, err)
	}
	return nil
}

func (t *UDPTransport) SetInbound(cb func(data []byte, peer *net.UDPAddr)) {
	t.mu.Lock()
	t.onRecv = cb
	t.mu.Unlock()
}

func (t *UDPTransport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

func (t *UDPTransport) Close() error {
	close(t.done)
	return t.conn.Close()
}
