package spinlock

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAcquireRelease(t *testing.T) {
	l := New()
	l.Acquire()
	if !l.Held() {
		t.Fatal("lock should be held after Acquire")
	}
	if got := l.Waiting(); got != 0 {
		t.Fatalf("waiting should be 0 once acquired, got %d", got)
	}
	l.Release()
	if l.Held() {
		t.Fatal("lock should be free after Release")
	}
}

func TestMutualExclusion(t *testing.T) {
	l := New(WithGuardWait(0), WithRetryWait(0))

	const workers = 8
	const iterations = 2000

	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				l.Acquire()
				counter++
				l.Release()
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Fatalf("lost updates: expected %d, got %d", workers*iterations, counter)
	}
	if got := l.Waiting(); got != 0 {
		t.Fatalf("waiting should return to 0 at quiescence, got %d", got)
	}
	if l.Held() {
		t.Fatal("lock should be free at quiescence")
	}
}

func TestTryAcquire(t *testing.T) {
	l := New()
	if !l.TryAcquire() {
		t.Fatal("TryAcquire on a free lock should succeed")
	}
	if l.TryAcquire() {
		t.Fatal("TryAcquire on a held lock should fail")
	}
	l.Release()
	if !l.TryAcquire() {
		t.Fatal("TryAcquire after Release should succeed")
	}
	l.Release()
}

func TestAcquireBlocksWhileHeld(t *testing.T) {
	l := New(WithGuardWait(0), WithRetryWait(time.Millisecond))
	l.Acquire()

	acquired := make(chan struct{})
	go func() {
		l.Acquire()
		close(acquired)
		l.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire succeeded while lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not succeed after Release")
	}
}

func TestWaitingCounter(t *testing.T) {
	l := New(WithGuardWait(0), WithRetryWait(time.Millisecond))
	l.Acquire()

	const blocked = 3
	var wg sync.WaitGroup
	wg.Add(blocked)
	for i := 0; i < blocked; i++ {
		go func() {
			defer wg.Done()
			l.Acquire()
			l.Release()
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for l.Waiting() != blocked {
		if time.Now().After(deadline) {
			t.Fatalf("waiting never reached %d, got %d", blocked, l.Waiting())
		}
		time.Sleep(time.Millisecond)
	}

	l.Release()
	wg.Wait()

	if got := l.Waiting(); got != 0 {
		t.Fatalf("waiting should return to 0, got %d", got)
	}
}

func TestInitResets(t *testing.T) {
	l := New()
	l.Acquire()
	l.Init()
	if l.Held() {
		t.Fatal("Init should leave the lock unlocked")
	}
	if got := l.Waiting(); got != 0 {
		t.Fatalf("Init should reset waiting to 0, got %d", got)
	}
	l.Acquire()
	l.Release()

	// Init on an already-unlocked lock is a no-op reset.
	l.Init()
	if l.Held() || l.Waiting() != 0 {
		t.Fatal("Init on an unlocked lock should be idempotent")
	}
}

func TestReleaseUnheldPanics(t *testing.T) {
	l := New()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when releasing an unheld lock")
		}
	}()
	l.Release()
}

func TestContendedWaitBounded(t *testing.T) {
	l := New(WithGuardWait(0), WithRetryWait(0))

	const workers = 4
	const iterations = 200

	waits := make([][]time.Duration, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			waits[idx] = make([]time.Duration, 0, iterations)
			for j := 0; j < iterations; j++ {
				start := time.Now()
				l.Acquire()
				waits[idx] = append(waits[idx], time.Since(start))
				l.Release()
			}
		}(i)
	}
	wg.Wait()

	var sum, max time.Duration
	n := 0
	for _, ws := range waits {
		for _, w := range ws {
			sum += w
			if w > max {
				max = w
			}
			n++
		}
	}
	if n != workers*iterations {
		t.Fatalf("expected %d acquisitions, got %d", workers*iterations, n)
	}
	mean := sum / time.Duration(n)

	// No worker should wait unboundedly while others repeatedly cut in.
	// The bound is deliberately loose to stay stable on slow machines.
	bound := 100*mean + 100*time.Millisecond
	if max > bound {
		t.Fatalf("max wait %v exceeds bound %v (mean %v)", max, bound, mean)
	}
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := New(WithMetrics(reg))
	l.Acquire()
	l.Release()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) < 3 {
		t.Fatalf("expected lock metrics registered, got %d families", len(mfs))
	}
}

func TestMetricsDuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(WithMetrics(reg))
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	New(WithMetrics(reg))
}
