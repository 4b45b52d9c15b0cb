package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/critiq-dev/reviewstats/internal/aggregator"
	"github.com/critiq-dev/reviewstats/internal/analytics"
	"github.com/critiq-dev/reviewstats/internal/api"
	"github.com/critiq-dev/reviewstats/internal/config"
	"github.com/critiq-dev/reviewstats/internal/db"
	"github.com/critiq-dev/reviewstats/internal/queue"
	"github.com/critiq-dev/reviewstats/internal/store"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// NOTE: database.Close() called explicitly in shutdown sequence below — no defer

	if err := db.RunMigrations(ctx, database.Pool()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	st := store.NewStore(database.Pool())
	slog.Info("Store initialized")

	qc, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	ph := analytics.New(cfg.PostHogAPIKey)

	runner := aggregator.NewRunner(aggregator.New(st), qc, ph)
	worker := queue.NewWorker(qc)
	worker.Register(aggregator.QueueUpdateStats, runner.HandleUpdateStats)
	worker.Register(aggregator.QueueRefreshScores, runner.HandleRefreshScores)
	worker.Start(cfg.WorkerCount)

	var trigger *aggregator.Trigger
	if cfg.DailyTrigger {
		trigger = aggregator.NewTrigger(qc)
		trigger.Run(ctx)
	}

	routerResult := api.NewRouter(&api.RouterConfig{
		Services:   map[string]api.HealthChecker{"database": database, "queue": qc},
		Source:     st,
		Queue:      qc,
		Analytics:  ph,
		AdminToken: cfg.AdminToken,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      routerResult.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	if trigger != nil {
		trigger.Stop()
	}

	// Stop consuming before closing anything the handlers use.
	worker.Stop()
	routerResult.RateLimiter.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	ph.Close()
	if err := qc.Close(); err != nil {
		slog.Error("Failed to close redis client", "error", err)
	}
	slog.Info("Closing database connection...")
	database.Close()

	slog.Info("Server exited")
}
