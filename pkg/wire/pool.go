package wire

import (
	"bytes"
	"sync"

	"github.com/pzverkov/bolt8/internal/constants"
)

// Encode buffers start at the size of a typical control message and are
// kept while they stay within one frame's worth of plaintext.
const (
	initialBufferSize = 256
	maxPooledBuffer   = constants.MaxMessageSize
)

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, initialBufferSize))
	},
}

// getBuffer returns an empty buffer. The caller must putBuffer it and must
// not retain its bytes afterwards.
func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(b *bytes.Buffer) {
	if b.Cap() > maxPooledBuffer {
		return
	}
	b.Reset()
	bufferPool.Put(b)
}
