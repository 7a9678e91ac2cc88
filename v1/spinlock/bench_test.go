package spinlock

import (
	"sync"
	"testing"
)

func BenchmarkLockContended(b *testing.B) {
	l := New(WithGuardWait(0), WithRetryWait(0))
	counter := 0
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			l.Acquire()
			counter++
			l.Release()
		}
	})
}

func BenchmarkSyncMutexContended(b *testing.B) {
	var mu sync.Mutex
	counter := 0
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			mu.Lock()
			counter++
			mu.Unlock()
		}
	})
}

func BenchmarkTryAcquireUncontended(b *testing.B) {
	l := New()
	for i := 0; i < b.N; i++ {
		if l.TryAcquire() {
			l.Release()
		}
	}
}
