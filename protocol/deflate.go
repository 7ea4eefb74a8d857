// File: protocol/deflate.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// permessage-deflate message compression per RFC 7692, no context
// takeover in either direction. Both compression of outgoing messages
// and decompression of incoming ones are implemented; the extension is
// never half-applied.

package protocol

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/momentics/secure-ws/api"
)

// deflateTail re-terminates a message stripped of its trailing
// 0x00 0x00 0xff 0xff and appends a final empty block so the inflater
// sees a complete stream (RFC 7692 §7.2.2).
var deflateTail = []byte{0x00, 0x00, 0xff, 0xff, 0x01, 0x00, 0x00, 0xff, 0xff}

var flateWriterPool = sync.Pool{
	New: func() any {
		w, _ := flate.NewWriter(io.Discard, flate.DefaultCompression)
		return w
	},
}

// CompressMessage deflates payload and strips the sync-flush tail that
// the receiver will restore. Each message uses a fresh dictionary.
func CompressMessage(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := flateWriterPool.Get().(*flate.Writer)
	defer flateWriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("deflate write: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("deflate flush: %w", err)
	}

	out := buf.Bytes()
	// Sync flush always ends with 00 00 ff ff.
	if len(out) >= 4 {
		out = out[:len(out)-4]
	}
	return out, nil
}

// DecompressMessage inflates a permessage-deflate payload, restoring
// the stripped tail first. Output is bounded by MaxFramePayload.
func DecompressMessage(payload []byte) ([]byte, error) {
	src := io.MultiReader(bytes.NewReader(payload), bytes.NewReader(deflateTail))
	r := flate.NewReader(src)
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, MaxFramePayload+1))
	if err != nil {
		return nil, &api.ProtocolError{Reason: "inflate message", Err: err}
	}
	if len(out) > MaxFramePayload {
		return nil, api.ErrPayloadTooLarge
	}
	return out, nil
}
