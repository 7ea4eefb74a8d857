// File: protocol/close.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Close-frame payload encoding and decoding (RFC 6455 §5.5.1).

package protocol

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/momentics/secure-ws/api"
)

// EncodeClosePayload builds a close-frame payload from code and reason.
// Code CloseNoStatusRcvd (1005) must never go on the wire; it maps to
// an empty payload.
func EncodeClosePayload(code int, reason string) []byte {
	if code == CloseNoStatusRcvd {
		return nil
	}
	p := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(p, uint16(code))
	copy(p[2:], reason)
	return p
}

// DecodeClosePayload extracts the close code and reason from a
// close-frame payload. An empty payload decodes to code 1005 with an
// empty reason; a single stray byte or a non-UTF-8 reason is a
// protocol error.
func DecodeClosePayload(p []byte) (int, string, error) {
	switch {
	case len(p) == 0:
		return CloseNoStatusRcvd, "", nil
	case len(p) == 1:
		return 0, "", &api.ProtocolError{Reason: "close payload of length 1"}
	}
	code := int(binary.BigEndian.Uint16(p))
	reason := p[2:]
	if !utf8.Valid(reason) {
		return 0, "", &api.ProtocolError{Reason: "close reason is not valid UTF-8"}
	}
	return code, string(reason), nil
}
