// File: protocol/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket frame model and masking primitives.

package protocol

// WSFrame represents a decoded WebSocket frame.
type WSFrame struct {
	IsFinal bool    // FIN bit
	Rsv1    bool    // per-message compression bit on the first frame
	Opcode  byte    // operation code
	Masked  bool    // whether the frame arrived masked
	MaskKey [4]byte // present iff Masked
	Payload []byte  // unmasked payload, owned by the frame
}

// IsControl reports whether the frame carries a control opcode.
func (f *WSFrame) IsControl() bool {
	return f.Opcode >= OpcodeClose
}

// maskInPlace applies the XOR transform on buf using key. Masking is
// its own inverse, so the same routine masks and unmasks.
func maskInPlace(buf []byte, key [4]byte) {
	for i := 0; i < len(buf); i++ {
		buf[i] ^= key[i%4]
	}
}
