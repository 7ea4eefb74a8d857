// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error taxonomy for the secure-ws engine. Four typed error families
// cover everything the engine can surface: handshake failures,
// protocol violations, transport failures, and liveness timeouts.

package api

import "fmt"

// Common sentinel errors used across the library.
var (
	ErrTransportClosed   = fmt.Errorf("transport is closed")
	ErrConnectionClosed  = fmt.Errorf("connection is closed")
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrRetriesExhausted  = fmt.Errorf("reconnect attempts exhausted")
	ErrPeerClosedEarly   = fmt.Errorf("peer closed transport during handshake")
	ErrDispatcherClosed  = fmt.Errorf("event dispatcher is closed")
	ErrPayloadTooLarge   = fmt.Errorf("frame payload exceeds maximum allowed size")
	ErrControlFrameRules = fmt.Errorf("control frame must be final and carry at most 125 payload bytes")
)

// HandshakeError reports a failed WebSocket upgrade: missing or invalid
// upgrade headers, a non-101 status, or an accept-key mismatch. Fatal to
// the connecting attempt; no retry happens at this layer.
type HandshakeError struct {
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("handshake failed: %s", e.Reason)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ProtocolError reports a violation of the WebSocket framing rules:
// a malformed frame header, an unsupported opcode, or invalid payload
// data for the declared type.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError reports a read or write failure on the underlying
// byte stream. Treated like a protocol error for reconnection purposes.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports a liveness failure, synthesized locally when no
// pong arrives within the configured window. Always followed by a close
// with code 1011.
type TimeoutError struct {
	Reason string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s", e.Reason)
}
