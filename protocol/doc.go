// File: protocol/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package protocol implements the WebSocket protocol core: the binary
// frame codec (RFC 6455 §5), the streaming decoder that reassembles
// frames across transport read boundaries, the HTTP-upgrade handshake
// negotiation for both roles, permessage-deflate message compression
// (RFC 7692, no context takeover), and the per-connection lifecycle
// state machine that sequences Connecting → Open → Closing → Closed.
package protocol
