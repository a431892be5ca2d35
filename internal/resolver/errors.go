package resolver

import "errors"

// Error taxonomy. Each sentinel is returned from Query only for the
// FAIL-at-submission cases; the
// NoResponse/ServerRejected/RecursiveFailure cases are delivered to callers
// as a Response{Kind: KindStatus, ...} instead of returned, since by the
// time they're known the original Query call has already returned ONGOING.
var (
	// ErrNoServer means every configured server is quarantined, or none
	// were configured at all.
	ErrNoServer = errors.New("resolver: no healthy server available")

	// ErrTransportSendFailed means the UDP transport refused the datagram.
	ErrTransportSendFailed = errors.New("resolver: transport send failed")
)
