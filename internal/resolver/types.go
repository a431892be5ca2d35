// Package resolver implements a client-side, in-process DNS stub resolver
// for A, SRV, and NAPTR records over UDP (RFC 1035, RFC 2782, RFC 2915).
//
// A Resolver owns all mutable state for one event loop: the in-flight query
// table, the answer cache, and the server pool. It is not safe to share a
// single Resolver across independently-scheduled event loops; create one
// Resolver per goroutine/event loop that needs to issue queries.
package resolver

import (
	"github.com/jroosing/resolverd/internal/dns"
)

// Key is the deduplication identity for both the in-flight query table and
// the answer cache: a lowercased owner name paired with a query type.
type Key struct {
	Name  string
	QType uint16
}

// newKey normalizes name the same way dns.ParseQuestion does, so a key
// computed from a caller's request matches one computed from a decoded
// response's question section.
func newKey(name string, qtype uint16) Key {
	return Key{Name: dns.NormalizeName(name), QType: qtype}
}

// ResponseKind discriminates the sum type delivered to callbacks.
type ResponseKind int

const (
	KindMsg ResponseKind = iota
	KindMsgList
	KindStatus
)

// StatusCode is surfaced to callers either standalone (KindStatus) or
// implicitly as RCodeNoError on a KindMsg/KindMsgList delivery.
type StatusCode int

const (
	StatusOK StatusCode = iota
	StatusNoResponse
	StatusSocket
	StatusRecursive
	StatusOther
)

func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNoResponse:
		return "NO_RESPONSE"
	case StatusSocket:
		return "SOCKET"
	case StatusRecursive:
		return "RECURSIVE"
	case StatusOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// Response is the tagged union delivered to every Callback: exactly one of
// Msg, List, or Status is meaningful, selected by Kind.
type Response struct {
	Kind   ResponseKind
	Msg    dns.Packet
	List   []dns.Packet
	Status StatusCode
}

// IsNoError reports whether a KindMsg/KindMsgList response's RCODE was
// NOERROR. It is the Go equivalent of the spec's isResponseNoError(response).
func (r Response) IsNoError() bool {
	switch r.Kind {
	case KindMsg:
		return dns.RCodeFromFlags(r.Msg.Header.Flags) == dns.RCodeNoError
	case KindMsgList:
		for _, m := range r.List {
			if dns.RCodeFromFlags(m.Header.Flags) != dns.RCodeNoError {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Callback receives the terminal (or cache-hit) result of a query, along
// with the opaque context the caller submitted it with.
type Callback func(resp Response, ctx any)

// CallerRecord pairs a callback with its opaque context, preserving the
// function-pointer-plus-void* shape of the original C API in Go terms.
type CallerRecord struct {
	CB  Callback
	Ctx any
}

// SubmitStatus is the immediate return value of Query: whether the result
// was already delivered synchronously, is pending, or failed to even start.
type SubmitStatus int

const (
	Ongoing SubmitStatus = iota
	Done
	Fail
)
