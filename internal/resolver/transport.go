package resolver

import "net"

// Transport abstracts the outbound UDP socket a Resolver sends queries on
// and receives responses from. The production implementation is UDPTransport
// (transport_udp.go); tests substitute a fake that records sends and injects
// responses synchronously.
//
// Implementations may run their own goroutines internally (e.g. a read loop
// blocked in ReadFromUDP), but every inbound datagram must reach the
// Resolver only through the callback registered via SetInbound, and that
// callback must do nothing but hand the datagram to the Resolver's event
// loop: Transport implementations never touch qTable, rrTable, or the
// server pool directly.
type Transport interface {
	// Send transmits payload to peer. It may be called concurrently with
	// inbound delivery but is always called from the Resolver's event loop
	// goroutine in practice.
	Send(peer *net.UDPAddr, payload []byte) error

	// SetInbound registers the callback invoked once per received
	// datagram. Must be called once, before the first Send.
	SetInbound(cb func(data []byte, peer *net.UDPAddr))

	// LocalAddr reports the bound local address, for introspection and log
	// context.
	LocalAddr() string

	Close() error
}
