// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-size byte buffer pool backing the per-connection receive loops.

package pool

import "sync"

// DefaultBufferSize is the read buffer size used when none is configured.
const DefaultBufferSize = 64 * 1024

// BytePool hands out fixed-size byte slices and recycles them.
type BytePool struct {
	size int
	p    sync.Pool
}

// NewBytePool constructs a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BytePool{size: size}
	bp.p.New = func() any {
		return make([]byte, size)
	}
	return bp
}

// Size returns the buffer size this pool hands out.
func (bp *BytePool) Size() int { return bp.size }

// Get returns a buffer of the pool's configured size.
func (bp *BytePool) Get() []byte {
	return bp.p.Get().([]byte)
}

// Put returns a buffer to the pool. Buffers of the wrong capacity are
// dropped rather than recycled.
func (bp *BytePool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	bp.p.Put(buf[:bp.size]) //nolint:staticcheck
}
