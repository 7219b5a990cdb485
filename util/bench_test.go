package util

import (
	"io"
	"testing"
)

// BenchmarkBufPool measures the allocation advantage of sync.Pool
// buffer reuse versus fresh allocation.
func BenchmarkBufPool(b *testing.B) {
	b.Run("pool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := GetBuf()
			_ = (*buf)[0]
			PutBuf(buf)
		}
	})
	b.Run("alloc", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := make([]byte, DefaultBufSize)
			_ = buf[0]
		}
	})
}

// BenchmarkLogger_Quiet measures the cost of suppressed log calls on
// the keystroke path.
func BenchmarkLogger_Quiet(b *testing.B) {
	l := NewLogger(0)
	l.SetOutput(io.Discard)
	for i := 0; i < b.N; i++ {
		l.Debug("key %q", "x")
	}
}
