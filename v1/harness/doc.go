// Package harness drives a configurable number of concurrent workers against
// one shared spinlock. Each worker acquires the lock, runs a critical-section
// body, and releases it; the harness staggers spawns to make contention
// visible and joins every worker before returning. It exists to demonstrate
// and test the lock under real contention, with optional Prometheus metrics
// and OpenTelemetry spans around each critical section.
package harness
