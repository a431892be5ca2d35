// Package dns provides DNS protocol parsing, encoding, and packet manipulation.
//
// Standards Compliance:
//
// This package implements DNS protocol features from the following RFCs:
//
//   - RFC 1035: Domain Names - Implementation and Specification (core DNS protocol)
//   - RFC 1034: Domain Names - Concepts and Facilities (DNS concepts)
//   - RFC 2782: A DNS RR for specifying the location of services (SRV)
//   - RFC 2915: The Naming Authority Pointer (NAPTR) DNS Resource Record
//
// Deliberately not implemented: EDNS(0)/OPT (RFC 6891), DNSSEC (RFC 4034,
// 4035), IPv6/AAAA (RFC 3596), and TCP transport/fallback.
//
// Record Representation:
//
// Every DNS resource record is represented by the single Record struct, with
// a Data field holding a type-specific payload (SRVData, NAPTRData, a string,
// or a raw []byte) selected by a type switch at encode/decode time.
//
// Error Handling:
//
// All errors are wrapped with context using fmt.Errorf("...: %w", err).
// This preserves error chains while adding operational context.
package dns

import "errors"

var (
	// ErrDNSError is a sentinel error type for DNS protocol violations
	// encountered while decoding a message. These are always non-fatal to
	// the resolver: the datagram is dropped and the caller's query is left
	// to time out naturally.
	// Wrap this with fmt.Errorf("context: %w", ErrDNSError) to add context.
	ErrDNSError = errors.New("dns wire error")

	// ErrEncodeTooLong means an outgoing name exceeded MaxLabelSize or
	// MaxNameSize while encoding a question.
	ErrEncodeTooLong = errors.New("dns name exceeds wire limits")

	// ErrServerRejected means the response's RCODE was FORMAT_ERROR: the
	// server itself refused to answer the question as sent.
	ErrServerRejected = errors.New("dns server rejected query (FORMAT_ERROR)")
)
