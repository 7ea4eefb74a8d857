// File: protocol/frame_codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket frame encoding and decoding per RFC 6455 §5, plus a
// streaming decoder that reassembles frames split across transport
// reads and splits frames coalesced into a single read.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/momentics/secure-ws/api"
)

// EncodeFrame serializes a single complete frame. The engine always
// sets FIN: outgoing fragmentation is not supported.
//
// When mask is true a cryptographically random 4-byte key is generated
// and the payload is XOR-masked IN PLACE before being appended, so the
// caller must not reuse the payload buffer expecting original content.
func EncodeFrame(opcode byte, payload []byte, mask bool, rsv1 bool) ([]byte, error) {
	plen := len(payload)
	if plen > MaxFramePayload {
		return nil, api.ErrPayloadTooLarge
	}
	if opcode >= OpcodeClose && plen > MaxControlPayloadLen {
		return nil, api.ErrControlFrameRules
	}

	b0 := byte(FinBit) | (opcode & 0x0F)
	if rsv1 {
		b0 |= Rsv1Bit
	}

	var maskBit byte
	if mask {
		maskBit = MaskBit
	}

	dst := make([]byte, 0, MaxFrameHeaderLen+plen)
	dst = append(dst, b0)
	switch {
	case plen <= 125:
		dst = append(dst, byte(plen)|maskBit)
	case plen <= 0xFFFF:
		dst = append(dst, 126|maskBit)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(plen))
		dst = append(dst, ext[:]...)
	default:
		dst = append(dst, 127|maskBit)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(plen))
		dst = append(dst, ext[:]...)
	}

	if mask {
		var key [4]byte
		if _, err := rand.Read(key[:]); err != nil {
			return nil, fmt.Errorf("generate mask key: %w", err)
		}
		dst = append(dst, key[:]...)
		maskInPlace(payload, key)
	}

	return append(dst, payload...), nil
}

// DecodeFrame parses one frame from raw. Returns the frame and the
// number of bytes consumed. Incomplete input is not an error: the
// caller gets (nil, 0, nil) and should retry with more bytes.
// The returned payload is a fresh copy, unmasked exactly once.
func DecodeFrame(raw []byte) (*WSFrame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil
	}

	fin := raw[0]&FinBit != 0
	rsv1 := raw[0]&Rsv1Bit != 0
	if raw[0]&(Rsv2Bit|Rsv3Bit) != 0 {
		return nil, 0, &api.ProtocolError{Reason: "reserved bits rsv2/rsv3 set"}
	}
	opcode := raw[0] & 0x0F
	masked := raw[1]&MaskBit != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil
		}
		length = int64(binary.BigEndian.Uint64(raw[offset:]))
		offset += 8
	}

	if length < 0 || length > MaxFramePayload {
		return nil, 0, &api.ProtocolError{Reason: "frame payload exceeds maximum allowed size"}
	}
	if opcode >= OpcodeClose {
		if !fin {
			return nil, 0, &api.ProtocolError{Reason: "fragmented control frame"}
		}
		if length > MaxControlPayloadLen {
			return nil, 0, &api.ProtocolError{Reason: "control frame payload too long"}
		}
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, nil
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(raw) < total {
		return nil, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, raw[offset:total])
	if masked {
		maskInPlace(payload, maskKey)
	}

	return &WSFrame{
		IsFinal: fin,
		Rsv1:    rsv1,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: maskKey,
		Payload: payload,
	}, total, nil
}

// StreamDecoder accumulates transport reads and yields complete frames.
// Frames split across two reads are reassembled; several frames
// coalesced into one read are all returned. This removes the classic
// one-frame-per-read fragility.
type StreamDecoder struct {
	buf []byte
}

// Feed appends p to the internal buffer and returns every complete
// frame now available, in wire order. A protocol error invalidates the
// stream; frames decoded before the error are still returned.
func (d *StreamDecoder) Feed(p []byte) ([]*WSFrame, error) {
	d.buf = append(d.buf, p...)

	var frames []*WSFrame
	off := 0
	for {
		frame, n, err := DecodeFrame(d.buf[off:])
		if err != nil {
			d.compact(off)
			return frames, err
		}
		if frame == nil {
			break
		}
		frames = append(frames, frame)
		off += n
	}
	d.compact(off)
	return frames, nil
}

// Buffered returns the number of bytes awaiting frame completion.
func (d *StreamDecoder) Buffered() int {
	return len(d.buf)
}

// compact discards the first off consumed bytes, moving any partial
// frame tail to the front of the buffer.
func (d *StreamDecoder) compact(off int) {
	if off == 0 {
		return
	}
	if off >= len(d.buf) {
		d.buf = d.buf[:0]
		return
	}
	n := copy(d.buf, d.buf[off:])
	d.buf = d.buf[:n]
}
