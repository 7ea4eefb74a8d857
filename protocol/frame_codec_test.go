package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/secure-ws/api"
)

// TestEncodeDecodeRoundTripUnmasked verifies the codec round-trips
// payloads of every length-encoding class without masking.
func TestEncodeDecodeRoundTripUnmasked(t *testing.T) {
	for _, size := range []int{0, 1, 125, 126, 1000, 65535, 65536} {
		payload := bytes.Repeat([]byte{0xAB}, size)
		raw, err := EncodeFrame(OpcodeBinary, payload, false, false)
		require.NoError(t, err, "size %d", size)

		frame, consumed, err := DecodeFrame(raw)
		require.NoError(t, err, "size %d", size)
		require.NotNil(t, frame, "size %d", size)
		assert.Equal(t, len(raw), consumed)
		assert.True(t, frame.IsFinal)
		assert.Equal(t, byte(OpcodeBinary), frame.Opcode)
		assert.False(t, frame.Masked)
		assert.Equal(t, payload, frame.Payload, "size %d", size)
	}
}

// TestLengthFieldBoundaries verifies which length encoding each
// boundary payload size selects.
func TestLengthFieldBoundaries(t *testing.T) {
	cases := []struct {
		size      int
		headerLen int // bytes before payload, unmasked
	}{
		{125, 2},
		{126, 4},
		{65535, 4},
		{65536, 10},
	}
	for _, tc := range cases {
		raw, err := EncodeFrame(OpcodeBinary, make([]byte, tc.size), false, false)
		require.NoError(t, err)
		assert.Equal(t, tc.headerLen+tc.size, len(raw), "size %d", tc.size)

		frame, _, err := DecodeFrame(raw)
		require.NoError(t, err)
		require.NotNil(t, frame)
		assert.Len(t, frame.Payload, tc.size)
	}
}

// TestMaskingIsItsOwnInverse verifies masking then unmasking with the
// same key restores the payload exactly.
func TestMaskingIsItsOwnInverse(t *testing.T) {
	key := [4]byte{0x11, 0x22, 0x33, 0x44}
	original := []byte("the quick brown fox jumps over the lazy dog")
	buf := append([]byte(nil), original...)

	maskInPlace(buf, key)
	assert.NotEqual(t, original, buf)
	maskInPlace(buf, key)
	assert.Equal(t, original, buf)
}

// TestMaskedRoundTrip verifies a client-masked frame decodes back to
// the original payload. Encode masks the caller's buffer in place, so
// a copy goes in.
func TestMaskedRoundTrip(t *testing.T) {
	original := []byte("masked payload contents")
	raw, err := EncodeFrame(OpcodeText, append([]byte(nil), original...), true, false)
	require.NoError(t, err)
	assert.Equal(t, byte(MaskBit), raw[1]&MaskBit)

	frame, consumed, err := DecodeFrame(raw)
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, len(raw), consumed)
	assert.True(t, frame.Masked)
	assert.Equal(t, original, frame.Payload)
}

// TestEncodeMasksCallerBufferInPlace documents the destructive masking
// contract: the caller's payload buffer is transformed.
func TestEncodeMasksCallerBufferInPlace(t *testing.T) {
	payload := []byte("do not reuse me")
	pristine := append([]byte(nil), payload...)
	_, err := EncodeFrame(OpcodeBinary, payload, true, false)
	require.NoError(t, err)
	assert.NotEqual(t, pristine, payload)
}

// TestDecodeIncompleteInput verifies short buffers are reported as
// incomplete, never as errors.
func TestDecodeIncompleteInput(t *testing.T) {
	raw, err := EncodeFrame(OpcodeBinary, make([]byte, 300), false, false)
	require.NoError(t, err)

	for cut := 0; cut < len(raw); cut++ {
		frame, consumed, err := DecodeFrame(raw[:cut])
		assert.NoError(t, err, "cut %d", cut)
		assert.Nil(t, frame, "cut %d", cut)
		assert.Zero(t, consumed, "cut %d", cut)
	}
}

// TestDecodeRejectsOversizedPayload verifies the payload cap.
func TestDecodeRejectsOversizedPayload(t *testing.T) {
	raw := []byte{FinBit | OpcodeBinary, 127, 0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}
	_, _, err := DecodeFrame(raw)
	var perr *api.ProtocolError
	assert.ErrorAs(t, err, &perr)
}

// TestDecodeRejectsControlFrameViolations verifies RFC 6455 §5.5 rules.
func TestDecodeRejectsControlFrameViolations(t *testing.T) {
	var perr *api.ProtocolError

	// Fragmented control frame (no FIN).
	_, _, err := DecodeFrame([]byte{OpcodePing, 0})
	assert.ErrorAs(t, err, &perr)

	// Control frame payload over 125 bytes.
	frame := []byte{FinBit | OpcodePing, 126, 0x00, 0x80}
	_, _, err = DecodeFrame(append(frame, make([]byte, 128)...))
	assert.ErrorAs(t, err, &perr)

	// Encode side enforces the same rules.
	_, err = EncodeFrame(OpcodeClose, make([]byte, 126), false, false)
	assert.ErrorIs(t, err, api.ErrControlFrameRules)
}

// TestDecodeRejectsReservedBits verifies rsv2/rsv3 are protocol errors.
func TestDecodeRejectsReservedBits(t *testing.T) {
	var perr *api.ProtocolError
	_, _, err := DecodeFrame([]byte{FinBit | Rsv2Bit | OpcodeText, 0})
	assert.ErrorAs(t, err, &perr)
}

// TestStreamDecoderReassemblesSplitFrame verifies a frame fed one byte
// at a time still decodes.
func TestStreamDecoderReassemblesSplitFrame(t *testing.T) {
	raw, err := EncodeFrame(OpcodeText, []byte("split across reads"), false, false)
	require.NoError(t, err)

	dec := &StreamDecoder{}
	var got []*WSFrame
	for _, b := range raw {
		frames, err := dec.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, frames...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, []byte("split across reads"), got[0].Payload)
	assert.Zero(t, dec.Buffered())
}

// TestStreamDecoderSplitsCoalescedFrames verifies several frames in one
// read all come out, in order.
func TestStreamDecoderSplitsCoalescedFrames(t *testing.T) {
	var wire []byte
	for i := 0; i < 5; i++ {
		raw, err := EncodeFrame(OpcodeBinary, []byte{byte(i)}, false, false)
		require.NoError(t, err)
		wire = append(wire, raw...)
	}

	dec := &StreamDecoder{}
	frames, err := dec.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.Equal(t, []byte{byte(i)}, f.Payload)
	}
}

// TestStreamDecoderPartialTailIsKept verifies a trailing partial frame
// stays buffered until completed.
func TestStreamDecoderPartialTailIsKept(t *testing.T) {
	first, err := EncodeFrame(OpcodeBinary, []byte("one"), false, false)
	require.NoError(t, err)
	second, err := EncodeFrame(OpcodeBinary, []byte("two"), false, false)
	require.NoError(t, err)

	dec := &StreamDecoder{}
	frames, err := dec.Feed(append(append([]byte(nil), first...), second[:3]...))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 3, dec.Buffered())

	frames, err = dec.Feed(second[3:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("two"), frames[0].Payload)
}
