package dns

import "fmt"

// MaxMsgSize is the largest inbound datagram this resolver will parse. The
// resolver never retries over TCP, so a response larger than this is simply
// unreadable rather than a cue to reconnect.
const MaxMsgSize = 512

// DecodeResponse parses an inbound UDP datagram as a DNS response.
//
// It enforces, in order: the wire-size ceiling, that the QR bit is set (this
// is a response, not a query echoed back), RCODE != FORMAT_ERROR, and
// qdcount == 1. Any other structural problem surfaces as a generic
// ErrDNSError from the underlying ParsePacket/ParseRecord calls.
//
// Callers that receive ErrServerRejected should surface STATUS(OTHER) to
// waiting callers; every other error here means the datagram should be
// dropped silently and the caller's query left to time out.
func DecodeResponse(msg []byte) (Packet, error) {
	if len(msg) > MaxMsgSize {
		return Packet{}, fmt.Errorf("%w: response exceeds MaxMsgSize (%d > %d)", ErrDNSError, len(msg), MaxMsgSize)
	}

	p, err := ParsePacket(msg)
	if err != nil {
		return Packet{}, err
	}

	if !isResponse(p.Header.Flags) {
		return Packet{}, fmt.Errorf("%w: QR flag not set (not a response)", ErrDNSError)
	}

	if RCodeFromFlags(p.Header.Flags) == RCodeFormErr {
		// p is still returned: the question section is needed to compute the
		// qTable key so STATUS(OTHER) reaches the right waiting callers.
		return p, ErrServerRejected
	}

	if p.Header.QDCount != 1 {
		return Packet{}, fmt.Errorf("%w: response qdcount must be 1, got %d", ErrDNSError, p.Header.QDCount)
	}

	return p, nil
}

// isResponse reports whether the QR flag is set.
func isResponse(flags uint16) bool {
	return (flags & QRFlag) != 0
}
