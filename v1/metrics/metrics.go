package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// SpawnCounter tracks the number of workers spawned by the harness.
	SpawnCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spindle_workers_spawned_total",
		Help: "Total number of workers spawned",
	})
	// CriticalSectionCounter tracks completed critical sections.
	CriticalSectionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spindle_critical_sections_total",
		Help: "Total number of completed critical sections",
	})
	// ActiveWorkersGauge reports the number of workers currently running.
	ActiveWorkersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spindle_workers_active",
		Help: "Current number of active workers",
	})
	// HoldHistogram observes how long each worker held the lock.
	HoldHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spindle_hold_seconds",
		Help:    "Time each worker spent holding the lock",
		Buckets: prometheus.DefBuckets,
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterHarnessMetrics registers harness metrics on the provided registry.
func RegisterHarnessMetrics(reg prometheus.Registerer) {
	reg.MustRegister(SpawnCounter, CriticalSectionCounter, ActiveWorkersGauge, HoldHistogram)
}
