// File: api/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Defines the duplex byte-channel abstraction the protocol engine
// consumes. Confidentiality (TLS) is established by the transport
// implementation before the WebSocket handshake begins; the engine
// only ever sees decrypted bytes.

package api

import (
	"crypto/x509"
	"net"
)

// Transport abstracts a full-duplex byte stream between the engine and
// its peer. Implementations live outside the protocol core.
type Transport interface {
	// Read fills p with available bytes and returns the count read.
	// A zero count with io.EOF means the peer closed the stream.
	Read(p []byte) (n int, err error)

	// Write writes all of p to the peer or returns an error.
	Write(p []byte) (n int, err error)

	// Close shuts down the underlying stream. Safe to call more than once.
	Close() error

	// RemoteAddr returns the peer's network address.
	RemoteAddr() net.Addr

	// PeerCertificates returns the certificate chain presented by the
	// peer, or nil for unencrypted transports. The engine carries the
	// identity through; it performs no validation of its own.
	PeerCertificates() []*x509.Certificate
}
