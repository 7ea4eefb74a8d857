// File: api/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ConnState models the lifecycle of a single WebSocket connection.
// Transitions are monotonic for one physical transport:
// Connecting → Open → Closing → Closed. A client may start a fresh
// Connecting cycle on a new transport via the reconnect supervisor.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseInfo carries the close code and optional UTF-8 reason attached
// to a connection-closed notification.
type CloseInfo struct {
	Code   int
	Reason string
}
