/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rental sanction server: the HTTP API plus the
  scheduled return delay check. Handles configuration, dependency
  injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize SQLite store
  3. Build the Discord notifier and the sanction engine
  4. Pick the run lock (Redis when REDIS_ADDR is set, in-process otherwise)
  5. Start the cron scheduler
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: rental.db, env DATABASE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, waiting for a running check
  4. Close database and Redis connections
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/rental.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Send sanction messages to Discord and share the lock across replicas
  DISCORD_WEBHOOK_URL=https://discord.com/api/webhooks/... REDIS_ADDR=localhost:6379 ./server

ENVIRONMENT:
  See config/config.go for the full list.

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Cron schedule
  - sanction/engine.go: Return delay check
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/council/rental-sanctions/api"
	"github.com/council/rental-sanctions/config"
	"github.com/council/rental-sanctions/lock"
	"github.com/council/rental-sanctions/notify/discord"
	"github.com/council/rental-sanctions/sanction"
	"github.com/council/rental-sanctions/store/sqlite"
)

const runLockKey = "rental-sanctions:check"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Notifier and engine
	notifier := discord.New(cfg.Discord.WebhookURL, cfg.Discord.Username)
	if !notifier.Enabled() {
		log.Printf("Warning: DISCORD_WEBHOOK_URL not set, sanction messages are only logged")
	}
	engine := sanction.NewEngine(store, notifier, cfg.Location)

	// Run lock
	var locker lock.Locker = lock.NewLocal()
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = lock.Dial(context.Background(), cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, runLockKey, cfg.Redis.LockTTL)
		log.Printf("Run lock: redis %s (ttl %s)", cfg.Redis.Addr, cfg.Redis.LockTTL)
	}

	// Scheduler
	scheduler := api.NewSanctionScheduler(engine, store, locker)
	scheduler.Schedule = cfg.CheckSchedule
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Handler and router
	handler := api.NewHandler(store, scheduler, cfg.Location)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", cfg.Port)
		log.Printf("📊 API available at http://localhost:%d/api", cfg.Port)
		log.Printf("⏰ Return delay check %q in %s, next at %s",
			cfg.CheckSchedule, cfg.Location, scheduler.NextRun().Format(time.RFC3339))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	scheduler.Stop()

	log.Println("Server stopped")
}
