package spinlock

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default backoff intervals. The guard is only ever held for the duration of
// a single check, so spinning on it uses a much shorter pause than retrying
// a lock that is actually held.
const (
	defaultGuardWait = 10 * time.Microsecond
	defaultRetryWait = 100 * time.Microsecond
)

// Lock is a spinning mutual exclusion lock. The zero value is an unlocked
// lock with no backoff configured; New returns one with the default backoff.
//
// A Lock must not be copied after first use. Unlike sync.Mutex it busy-waits
// with short sleeps instead of descheduling, trading CPU cycles for
// low-latency handoff under light contention.
type Lock struct {
	held    atomic.Bool
	guard   atomic.Bool
	waiting atomic.Int64

	guardWait time.Duration
	retryWait time.Duration

	acquireCounter   prometheus.Counter
	contendedCounter prometheus.Counter
	waitingGauge     prometheus.Gauge
	waitHist         prometheus.Histogram
}

// Option configures a Lock.
type Option func(*Lock)

// WithGuardWait sets the pause between attempts to claim the guard flag.
// A zero or negative duration yields the processor instead of sleeping.
func WithGuardWait(d time.Duration) Option {
	return func(l *Lock) {
		l.guardWait = d
	}
}

// WithRetryWait sets the pause after observing the lock held before the next
// full acquisition attempt. A zero or negative duration yields the processor
// instead of sleeping.
func WithRetryWait(d time.Duration) Option {
	return func(l *Lock) {
		l.retryWait = d
	}
}

// WithMetrics enables Prometheus metrics collection using the provided registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(l *Lock) {
		l.acquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spindle_acquires_total",
			Help: "Total number of successful lock acquisitions",
		})
		l.contendedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spindle_contended_acquires_total",
			Help: "Total number of acquisitions that found the lock held at least once",
		})
		l.waitingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spindle_waiting",
			Help: "Current number of workers waiting to acquire the lock",
		})
		l.waitHist = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spindle_acquire_wait_seconds",
			Help:    "Time spent waiting to acquire the lock",
			Buckets: prometheus.DefBuckets,
		})
		reg.MustRegister(l.acquireCounter, l.contendedCounter, l.waitingGauge, l.waitHist)
	}
}

// New returns a new unlocked Lock.
func New(opts ...Option) *Lock {
	l := &Lock{
		guardWait: defaultGuardWait,
		retryWait: defaultRetryWait,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init resets the lock to the unlocked state: not held, guard free, no
// waiters. It must only be called while no worker is holding or acquiring
// the lock; Init itself performs no concurrency protection.
func (l *Lock) Init() {
	l.held.Store(false)
	l.guard.Store(false)
	l.waiting.Store(0)
}

// Acquire blocks until the lock is obtained. There is no timeout and no
// cancellation path; under pathological scheduling the caller can spin
// indefinitely. Acquisition order among concurrent callers is unspecified.
func (l *Lock) Acquire() {
	l.waiting.Add(1)
	if l.waitingGauge != nil {
		l.waitingGauge.Inc()
	}
	var start time.Time
	if l.waitHist != nil {
		start = time.Now()
	}

	contended := false
	for {
		// Claim the guard. Swap stores true and returns the previous
		// value, the exchange-and-set primitive the guard relies on.
		for l.guard.Swap(true) {
			backoff(l.guardWait)
		}
		if !l.held.Load() {
			// Lock is free, take it and drop the guard.
			l.held.Store(true)
			l.guard.Store(false)
			break
		}
		// Held by someone else: drop the guard so others can check,
		// then back off before the next attempt.
		l.guard.Store(false)
		contended = true
		backoff(l.retryWait)
	}

	l.waiting.Add(-1)
	if l.waitingGauge != nil {
		l.waitingGauge.Dec()
	}
	if l.acquireCounter != nil {
		l.acquireCounter.Inc()
	}
	if contended && l.contendedCounter != nil {
		l.contendedCounter.Inc()
	}
	if l.waitHist != nil {
		l.waitHist.Observe(time.Since(start).Seconds())
	}
}

// TryAcquire attempts to obtain the lock without waiting for it to become
// free. It returns true on success. It may still briefly spin on the guard,
// which is only ever held for the duration of a single check.
func (l *Lock) TryAcquire() bool {
	for l.guard.Swap(true) {
		backoff(l.guardWait)
	}
	taken := !l.held.Load()
	if taken {
		l.held.Store(true)
	}
	l.guard.Store(false)
	if taken && l.acquireCounter != nil {
		l.acquireCounter.Inc()
	}
	return taken
}

// Release unlocks the lock. It must only be called by the worker that
// currently holds it. Releasing an unheld lock is a violation of that
// contract and panics rather than silently corrupting state.
//
// No guard is needed here: releasing is a single atomic operation.
func (l *Lock) Release() {
	if !l.held.Swap(false) {
		panic("spinlock: release of unheld lock")
	}
}

// Held reports whether the lock is currently held. The answer may be stale
// by the time it is observed; it is an observability hook, not a way to
// coordinate.
func (l *Lock) Held() bool {
	return l.held.Load()
}

// Waiting returns the number of workers that have started an acquisition
// and not yet succeeded. The counter is advisory: it plays no role in
// acquisition order and may transiently lag under heavy scheduling races.
func (l *Lock) Waiting() int64 {
	return l.waiting.Load()
}

func backoff(d time.Duration) {
	if d <= 0 {
		runtime.Gosched()
		return
	}
	time.Sleep(d)
}
