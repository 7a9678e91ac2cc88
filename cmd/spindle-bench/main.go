package main

import (
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirkobrombin/go-spindle/v1/metrics"
	"github.com/mirkobrombin/go-spindle/v1/spinlock"
)

var (
	concurrency = flag.Int("c", 4, "Number of concurrent workers")
	acquires    = flag.Int("n", 100000, "Total number of lock acquisitions")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address after the run")
)

func main() {
	flag.Parse()

	log.Printf("Starting benchmark: %d acquisitions, %d concurrency", *acquires, *concurrency)

	reg := metrics.NewRegistry()
	l := spinlock.New(
		spinlock.WithGuardWait(0),
		spinlock.WithRetryWait(0),
		spinlock.WithMetrics(reg),
	)

	type workerStats struct {
		total time.Duration
		max   time.Duration
	}

	perWorker := *acquires / *concurrency
	stats := make([]workerStats, *concurrency)
	counter := 0 // protected by l

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				waitStart := time.Now()
				l.Acquire()
				wait := time.Since(waitStart)
				counter++
				l.Release()
				stats[idx].total += wait
				if wait > stats[idx].max {
					stats[idx].max = wait
				}
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	ops := perWorker * *concurrency
	if counter != ops {
		log.Fatalf("Lost updates: expected %d, got %d", ops, counter)
	}

	var totalWait, maxWait time.Duration
	for _, s := range stats {
		totalWait += s.total
		if s.max > maxWait {
			maxWait = s.max
		}
	}

	log.Printf("Finished in %v", elapsed)
	log.Printf("Throughput: %.2f acquisitions/s", float64(ops)/elapsed.Seconds())
	log.Printf("Avg wait: %v", totalWait/time.Duration(ops))
	log.Printf("Max wait: %v", maxWait)

	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Printf("Serving metrics on %s", *metricsAddr)
		log.Fatal(http.ListenAndServe(*metricsAddr, nil))
	}
}
