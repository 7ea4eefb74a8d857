package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBytePoolHandsOutConfiguredSize verifies Get returns buffers of
// the configured size.
func TestBytePoolHandsOutConfiguredSize(t *testing.T) {
	bp := NewBytePool(4096)
	buf := bp.Get()
	assert.Len(t, buf, 4096)
	bp.Put(buf)
}

// TestBytePoolDefaultSize verifies the fallback size for invalid input.
func TestBytePoolDefaultSize(t *testing.T) {
	bp := NewBytePool(0)
	assert.Equal(t, DefaultBufferSize, bp.Size())
	assert.Len(t, bp.Get(), DefaultBufferSize)
}

// TestBytePoolRejectsForeignBuffers verifies wrong-capacity buffers are
// not recycled.
func TestBytePoolRejectsForeignBuffers(t *testing.T) {
	bp := NewBytePool(1024)
	bp.Put(make([]byte, 17))
	assert.Len(t, bp.Get(), 1024)
}
