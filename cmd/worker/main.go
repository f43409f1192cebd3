package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"oxenqueue/internal/db"
	"oxenqueue/queue"
)

func main() {
	log.Println("Worker starting...")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	jobType := os.Getenv("OXEN_QUEUE_JOB_TYPE")
	if jobType == "" {
		jobType = "default"
	}

	concurrency := envInt("OXEN_QUEUE_CONCURRENCY", 3)

	database, err := db.Connect(dbURL, concurrency+2)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	cfg := queue.DefaultConfig()
	cfg.DatabaseURL = dbURL
	cfg.Table = os.Getenv("OXEN_QUEUE_TABLE")
	if extra := os.Getenv("OXEN_QUEUE_EXTRA_FIELDS"); extra != "" {
		cfg.ExtraFields = strings.Split(extra, ",")
	}
	cfg.FastestPollingRate = envDuration("OXEN_QUEUE_POLL_MIN_MS", 100*time.Millisecond)
	cfg.SlowestPollingRate = envDuration("OXEN_QUEUE_POLL_MAX_MS", 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	controller, err := queue.New(ctx, database, jobType, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to build queue controller: %v", err)
	}

	pcfg := queue.ProcessorConfig{
		WorkFn:            echoWorkFn,
		Concurrency:       concurrency,
		Timeout:           envSeconds("OXEN_QUEUE_TIMEOUT_S", 60*time.Second),
		RecoveryThreshold: envSeconds("OXEN_QUEUE_RECOVERY_THRESHOLD_S", 120*time.Second),
		RecoveryInterval:  envSeconds("OXEN_QUEUE_RECOVERY_INTERVAL_S", 60*time.Second),
		OnSuccess: func(job queue.Job, result any) {
			log.Printf("job %d (%s) succeeded: %v", job.ID, job.JobType, result)
		},
		OnError: func(job queue.Job, err error) {
			log.Printf("job %d (%s) failed: %v", job.ID, job.JobType, err)
		},
	}

	if err := controller.StartProcessing(pcfg); err != nil {
		log.Fatalf("Failed to start processing: %v", err)
	}
	log.Printf("Worker started: job_type=%s concurrency=%d", jobType, concurrency)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down worker...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := controller.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown did not complete cleanly: %v", err)
	}
}

// echoWorkFn is a placeholder work function: it decodes the job body and
// returns it unchanged, demonstrating the engine wiring. Real deployments
// replace this with their own WorkFunc.
func echoWorkFn(ctx context.Context, job queue.Job) (any, error) {
	var body any
	if err := json.Unmarshal([]byte(job.Body), &body); err != nil {
		return nil, fmt.Errorf("decode job body: %w", err)
	}
	return body, nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return time.Duration(parsed) * time.Second
		}
	}
	return fallback
}
