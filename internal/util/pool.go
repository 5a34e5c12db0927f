package util

import (
	"sync"
)

// BufferPool provides reusable byte buffers so each request the
// dispatcher reads doesn't allocate a fresh maximum-size body buffer.
// Buffers are zeroed before being returned to the pool, so a recycled
// buffer can never leak a previous request's credential bytes.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get retrieves a buffer from the pool.
// The buffer contents are undefined and should be overwritten.
func (p *BufferPool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool after zeroing it.
// The buffer should not be used after calling Put.
func (p *BufferPool) Put(b []byte) {
	if len(b) != p.size {
		// Don't return mismatched buffers to avoid corruption
		return
	}
	zeroBytes(b)
	p.pool.Put(&b)
}

// zeroBytes zeros a byte slice. This is a simplified version - the full
// SecureZero is in the crypto package.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ReqPool provides 1 MiB buffers, the dispatcher's maximum request
// body size.
var ReqPool = NewBufferPool(MiB)

// GetReqBuffer gets a maximum-request-size buffer from the default pool.
func GetReqBuffer() []byte {
	return ReqPool.Get()
}

// PutReqBuffer returns a request buffer to the default pool.
func PutReqBuffer(b []byte) {
	ReqPool.Put(b)
}
