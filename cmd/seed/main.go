package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"oxenqueue/internal/db"
	"oxenqueue/queue"
)

func main() {
	var (
		jobType   string
		table     string
		count     int
		batchSize int
		priority  int64
		seed      int64
	)
	flag.StringVar(&jobType, "job-type", "default", "job_type to stamp on seeded rows")
	flag.StringVar(&table, "table", "", "queue table name (default: oxen_queue)")
	flag.IntVar(&count, "count", 1000, "number of synthetic jobs to enqueue")
	flag.IntVar(&batchSize, "batch-size", 200, "jobs per EnqueueMany call")
	flag.Int64Var(&priority, "priority", 0, "priority stamped on every seeded job")
	flag.Int64Var(&seed, "seed", 1, "PRNG seed, for reproducible synthetic payloads")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	database, err := db.Connect(dbURL, 5)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	cfg := queue.DefaultConfig()
	cfg.DatabaseURL = dbURL
	cfg.Table = table

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	controller, err := queue.New(ctx, database, jobType, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to build queue controller: %v", err)
	}

	rng := rand.New(rand.NewSource(seed))

	fmt.Printf("Seeding %d synthetic %q jobs in batches of %d\n", count, jobType, batchSize)

	startTime := time.Now()
	inserted := 0
	deduplicated := 0

	for i := 0; i < count; i += batchSize {
		end := i + batchSize
		if end > count {
			end = count
		}

		batch := make([]queue.EnqueueInput, 0, end-i)
		for j := i; j < end; j++ {
			body := fmt.Sprintf(`{"seq":%d,"payload":%d}`, j, rng.Intn(1_000_000))
			batch = append(batch, queue.EnqueueInput{
				Body:     body,
				Priority: &priority,
			})
		}

		n, err := controller.EnqueueMany(context.Background(), batch)
		if err != nil {
			log.Fatalf("Failed to enqueue batch starting at %d: %v", i, err)
		}
		inserted += n
		deduplicated += len(batch) - n
	}

	duration := time.Since(startTime)

	fmt.Printf("\n=== Seeding Results ===\n")
	fmt.Printf("Jobs requested: %d\n", count)
	fmt.Printf("Inserted: %d\n", inserted)
	fmt.Printf("Deduplicated: %d\n", deduplicated)
	fmt.Printf("Time taken: %v\n", duration)
	fmt.Printf("\nSeed completed successfully!\n")
}
