// File: api/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tagged event variants delivered to connection subscribers. Events
// replace ad hoc callback multicast: every notification is a value of
// one of the types below, delivered at least once and in order per
// connection.

package api

// Event is the marker interface implemented by all notification variants.
type Event interface {
	isEvent()
}

// OpenEvent fires once when a connection completes its handshake and
// enters the Open state.
type OpenEvent struct {
	RemoteAddr string
}

// CloseEvent fires exactly once when a connection reaches Closed.
// Abnormal is true when the close was not initiated deliberately by the
// local endpoint and did not carry a normal-closure code; the client's
// reconnect supervisor reacts only to abnormal closes.
type CloseEvent struct {
	Code     int
	Reason   string
	Abnormal bool
}

// MessageEvent carries a complete data message. Text is true for text
// frames (payload validated UTF-8), false for binary frames.
type MessageEvent struct {
	Data []byte
	Text bool
}

// PingEvent carries the payload of a received ping frame.
type PingEvent struct {
	Payload []byte
}

// PongEvent carries the payload of a received pong frame.
type PongEvent struct {
	Payload []byte
}

// ErrorEvent carries any surfaced error: handshake, protocol,
// transport, or timeout.
type ErrorEvent struct {
	Err error
}

func (OpenEvent) isEvent()    {}
func (CloseEvent) isEvent()   {}
func (MessageEvent) isEvent() {}
func (PingEvent) isEvent()    {}
func (PongEvent) isEvent()    {}
func (ErrorEvent) isEvent()   {}
