package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/critiq-dev/reviewstats/internal/aggregator"
	"github.com/critiq-dev/reviewstats/internal/config"
	"github.com/critiq-dev/reviewstats/internal/queue"
	"github.com/critiq-dev/reviewstats/internal/stats"
)

// Enqueues aggregation work for historical days. The running server's
// workers do the actual processing.
//
//	backfill -tasks 2024-01,2024-02-15,30,monthly
//	backfill -refresh
//	backfill -refresh -destroy
func main() {
	taskList := flag.String("tasks", "", "comma-separated days (YYYY-MM-DD), months (YYYY-MM), \"30\" or \"monthly\"")
	refresh := flag.Bool("refresh", false, "enqueue a score refresh over all stored records")
	destroy := flag.Bool("destroy", false, "with -refresh: delete records instead of rescoring")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if *taskList == "" && !*refresh {
		log.Fatal("Nothing to do: pass -tasks or -refresh")
	}
	if *destroy && !*refresh {
		log.Fatal("-destroy requires -refresh")
	}

	qc, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer qc.Close()

	ctx := context.Background()
	today := time.Now().UTC()

	if *taskList != "" {
		var items []string
		for _, item := range strings.Split(*taskList, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		tasks, err := aggregator.ExpandTasks(items, today)
		if err != nil {
			log.Fatalf("Invalid task list: %v", err)
		}
		payload, err := json.Marshal(aggregator.TaskPayload{
			Tasks: tasks,
			Date:  stats.DayKey(today),
		})
		if err != nil {
			log.Fatalf("Failed to build payload: %v", err)
		}
		if err := qc.Enqueue(ctx, aggregator.QueueUpdateStats, payload, 0); err != nil {
			log.Fatalf("Failed to enqueue tasks: %v", err)
		}
		log.Printf("Enqueued %d tasks: %v", len(tasks), tasks)
	}

	if *refresh {
		payload, err := json.Marshal(aggregator.TaskPayload{
			Kind:    aggregator.KindDay,
			Destroy: *destroy,
		})
		if err != nil {
			log.Fatalf("Failed to build payload: %v", err)
		}
		if err := qc.Enqueue(ctx, aggregator.QueueRefreshScores, payload, 0); err != nil {
			log.Fatalf("Failed to enqueue refresh: %v", err)
		}
		log.Printf("Enqueued score refresh (destroy=%v)", *destroy)
	}
}
