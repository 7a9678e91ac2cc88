package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/mirkobrombin/go-spindle/v1/harness"
	"github.com/mirkobrombin/go-spindle/v1/spinlock"
)

var (
	workers = flag.Int("workers", 3, "Number of concurrent workers")
	hold    = flag.Duration("hold", time.Second, "How long each worker holds the lock")
	stagger = flag.Duration("stagger", 10*time.Millisecond, "Delay between worker spawns")
)

func main() {
	flag.Parse()

	log.Printf("Starting %d workers...", *workers)

	h := harness.New(spinlock.New(),
		harness.WithWorkers(*workers),
		harness.WithHold(*hold),
		harness.WithStagger(*stagger),
		harness.WithOutput(os.Stdout),
	)
	if err := h.Run(context.Background()); err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	log.Println("All workers have completed")
}
