package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPoolZeroesOnPut(t *testing.T) {
	pool := NewBufferPool(1024)

	buf := pool.Get()
	require.Len(t, buf, 1024)

	for i := range buf {
		buf[i] = byte(i % 256)
	}
	pool.Put(buf)

	// A recycled buffer must never expose the previous request's bytes.
	buf2 := pool.Get()
	for i, v := range buf2 {
		require.Zerof(t, v, "buffer not zeroed at index %d", i)
		if v != 0 {
			break
		}
	}
}

func TestBufferPoolIgnoresMismatchedSize(t *testing.T) {
	pool := NewBufferPool(1024)

	pool.Put(make([]byte, 512))

	require.Len(t, pool.Get(), 1024)
}

func TestReqPool(t *testing.T) {
	buf := GetReqBuffer()
	require.Len(t, buf, MiB)
	PutReqBuffer(buf)
}

func BenchmarkBufferPoolGetPut(b *testing.B) {
	pool := NewBufferPool(MiB)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf := pool.Get()
		pool.Put(buf)
	}
}
