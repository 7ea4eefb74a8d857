// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket wire protocol constants.

package protocol

const (
	// Opcodes (RFC 6455 §5.2). Control opcodes have the high bit of the
	// nibble set (>= 0x8).
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA

	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // extended payload length plus masking key

	// MaxFramePayload bounds a single decoded frame to protect against
	// resource exhaustion.
	MaxFramePayload = 1 << 20 // 1 MiB

	// Bit masks for the first two header bytes.
	FinBit  = 0x80
	Rsv1Bit = 0x40
	Rsv2Bit = 0x20
	Rsv3Bit = 0x10
	MaskBit = 0x80

	// Close codes
	CloseNormalClosure      = 1000
	CloseGoingAway          = 1001
	CloseProtocolError      = 1002
	CloseUnsupportedData    = 1003
	CloseNoStatusRcvd       = 1005
	CloseAbnormalClosure    = 1006
	CloseInvalidPayloadData = 1007
	ClosePolicyViolation    = 1008
	CloseMessageTooBig      = 1009
	CloseMissingExtension   = 1010
	CloseInternalServerErr  = 1011
)

const (
	// WebSocketGUID is the magic string mixed into the accept key
	// (RFC 6455 §1.3).
	WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

	// RequiredWebSocketVersion is the only supported protocol version.
	RequiredWebSocketVersion = "13"

	// MaxHandshakeHeadersSize caps the combined handshake header bytes.
	MaxHandshakeHeadersSize = 8192

	// PermessageDeflate is the only extension this engine negotiates.
	PermessageDeflate = "permessage-deflate"
)
