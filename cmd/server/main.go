/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tiered daily pay server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (.env, environment) and parse flags
  2. Initialize SQLite store
  3. Connect the Redis memo cache when REDIS_URL is set
  4. Create API handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (PORT, default: 8080)
  -db      SQLite database path (DB_PATH, default: tierpay.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  REDIS_URL, LOG_LEVEL, LOG_FORMAT, CORS_ORIGINS, MAX_UPLOAD_MB, CACHE_TTL
  See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close cache and database connections
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/tierpay/api"
	"github.com/warp/tierpay/cache"
	"github.com/warp/tierpay/calculator"
	"github.com/warp/tierpay/config"
	"github.com/warp/tierpay/metrics"
	"github.com/warp/tierpay/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	// Optional memo cache
	var memo calculator.Memo
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(cfg.RedisURL, cfg.CacheTTL, log)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, daily pay memo disabled")
		} else {
			defer client.Close()
			memo = client
		}
	}

	handler := api.NewHandler(api.Deps{
		Store:          store,
		Memo:           memo,
		Metrics:        metrics.New(),
		Log:            log,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})
	router := api.NewRouter(handler, api.RouterOptions{CORSOrigins: cfg.CORSOrigins})

	// Create server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"port":  *port,
			"db":    *dbPath,
			"cache": memo != nil,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		return
	}

	log.Info("Server stopped")
}
