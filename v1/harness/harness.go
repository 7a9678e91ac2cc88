package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-spindle/v1/metrics"
	"github.com/mirkobrombin/go-spindle/v1/spinlock"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-spindle/v1/harness")

var (
	// ErrNoLock is returned when the harness has no lock to contend for.
	ErrNoLock = errors.New("harness: no lock configured")
	// ErrNoWorkers is returned when the configured worker count is not positive.
	ErrNoWorkers = errors.New("harness: worker count must be positive")
)

// EventKind identifies what a worker just did with the lock.
type EventKind int

const (
	// EventAcquired is emitted right after a worker obtains the lock.
	EventAcquired EventKind = iota
	// EventReleased is emitted right before a worker releases the lock.
	EventReleased
)

// Event describes one lock transition observed by a worker. Events for a
// single worker's critical section are emitted while the lock is held, so a
// correct lock guarantees they never interleave with another worker's pair.
type Event struct {
	RunID  string
	Worker int
	Kind   EventKind
	Time   time.Time
}

// Body is a critical-section body executed while the lock is held.
type Body func(ctx context.Context, worker int) error

const (
	defaultWorkers = 3
	defaultStagger = 10 * time.Millisecond
	defaultHold    = time.Second
)

// Harness spawns workers that contend for a single shared lock.
type Harness struct {
	lock    *spinlock.Lock
	workers int
	stagger time.Duration
	hold    time.Duration
	body    Body
	out     io.Writer
	sink    func(Event)
	runID   string

	metricsEnabled bool
	traceEnabled   bool
}

// Option configures a Harness.
type Option func(*Harness)

// WithWorkers sets the number of workers to spawn. The default is three.
func WithWorkers(n int) Option {
	return func(h *Harness) {
		h.workers = n
	}
}

// WithStagger sets the delay between worker spawns. The stagger only makes
// contention easier to observe in the output; correctness never depends on
// it. A zero or negative duration disables it.
func WithStagger(d time.Duration) Option {
	return func(h *Harness) {
		h.stagger = d
	}
}

// WithHold sets how long the default critical-section body holds the lock.
func WithHold(d time.Duration) Option {
	return func(h *Harness) {
		h.hold = d
	}
}

// WithBody replaces the default sleep body with a custom critical section.
// The body runs while the lock is held.
func WithBody(b Body) Option {
	return func(h *Harness) {
		h.body = b
	}
}

// WithOutput sets the writer worker messages are printed to. The default is
// os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(h *Harness) {
		h.out = w
	}
}

// WithSink installs a hook that receives a structured Event for every lock
// transition. The sink is called while the lock is held.
func WithSink(sink func(Event)) Option {
	return func(h *Harness) {
		h.sink = sink
	}
}

// WithMetrics registers the harness metrics on reg and enables collection.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(h *Harness) {
		metrics.RegisterHarnessMetrics(reg)
		h.metricsEnabled = true
	}
}

// WithTracing enables an OpenTelemetry span per critical section.
func WithTracing() Option {
	return func(h *Harness) {
		h.traceEnabled = true
	}
}

// New returns a Harness contending for l. Each harness carries a unique run
// identifier included in emitted events.
func New(l *spinlock.Lock, opts ...Option) *Harness {
	h := &Harness{
		lock:    l,
		workers: defaultWorkers,
		stagger: defaultStagger,
		hold:    defaultHold,
		out:     os.Stdout,
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.body == nil {
		h.body = h.sleepBody
	}
	return h
}

// RunID returns the identifier for this harness run.
func (h *Harness) RunID() string {
	return h.runID
}

// Run spawns the configured workers, waits for all of them to finish and
// returns the first worker error, if any. Configuration errors are fatal to
// the whole run and reported before any worker starts; they are not retried.
func (h *Harness) Run(ctx context.Context) error {
	if h.lock == nil {
		return ErrNoLock
	}
	if h.workers <= 0 {
		return fmt.Errorf("%w, got %d", ErrNoWorkers, h.workers)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= h.workers; i++ {
		worker := i
		if h.metricsEnabled {
			metrics.SpawnCounter.Inc()
		}
		g.Go(func() error {
			return h.runWorker(ctx, worker)
		})
		if h.stagger > 0 && worker < h.workers {
			time.Sleep(h.stagger)
		}
	}
	return g.Wait()
}

func (h *Harness) runWorker(ctx context.Context, worker int) error {
	if h.metricsEnabled {
		metrics.ActiveWorkersGauge.Inc()
		defer metrics.ActiveWorkersGauge.Dec()
	}

	var span trace.Span
	if h.traceEnabled {
		ctx, span = tracer.Start(ctx, "Harness.CriticalSection",
			trace.WithAttributes(
				attribute.Int("spindle.worker", worker),
				attribute.String("spindle.run_id", h.runID),
			))
		defer span.End()
	}

	h.lock.Acquire()
	start := time.Now()

	h.emit(EventAcquired, worker)
	fmt.Fprintf(h.out, "worker #%d acquired the lock\n", worker)

	err := h.body(ctx, worker)

	fmt.Fprintf(h.out, "worker #%d releasing the lock\n", worker)
	h.emit(EventReleased, worker)

	held := time.Since(start)
	h.lock.Release()

	if h.metricsEnabled {
		metrics.CriticalSectionCounter.Inc()
		metrics.HoldHistogram.Observe(held.Seconds())
	}
	if h.traceEnabled {
		span.SetAttributes(attribute.Int64("spindle.held_ms", held.Milliseconds()))
	}
	return err
}

func (h *Harness) sleepBody(ctx context.Context, _ int) error {
	select {
	case <-time.After(h.hold):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Harness) emit(kind EventKind, worker int) {
	if h.sink == nil {
		return
	}
	h.sink(Event{RunID: h.runID, Worker: worker, Kind: kind, Time: time.Now()})
}
