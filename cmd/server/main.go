package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/leadguard/scan-engine/internal/config"
	"github.com/leadguard/scan-engine/internal/database"
	"github.com/leadguard/scan-engine/internal/gemini"
	"github.com/leadguard/scan-engine/internal/handlers"
	"github.com/leadguard/scan-engine/internal/kafka"
	"github.com/leadguard/scan-engine/internal/ledger"
	"github.com/leadguard/scan-engine/internal/metrics"
	"github.com/leadguard/scan-engine/internal/pipeline"
	"github.com/leadguard/scan-engine/internal/rdap"
	"github.com/leadguard/scan-engine/internal/realtime"
)

const serviceName = "scan-engine"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	logger.Info("Starting LeadGuard Scan Engine",
		"service", serviceName,
		"environment", cfg.Environment)

	// Ledger database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", "error", err)
		}
	}()

	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Metrics
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Optional redis probe cache
	var probeCache *rdap.Cache
	if cfg.Redis.Host != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		probeCache = rdap.NewCache(redisClient, logger, cfg.Redis.ProbeTTL)
		logger.Info("Probe cache enabled", "host", cfg.Redis.Host)
	}

	// Pipeline components
	prober := rdap.NewProber(cfg.RDAP, logger, probeCache)
	analyzer := gemini.NewClient(cfg.Gemini, logger)
	analyzer.Observer = collector

	// Threat event producer (nil when no brokers are configured)
	producer := kafka.NewProducer(cfg.Kafka, logger)
	if producer != nil {
		defer producer.Close()
		logger.Info("Threat event producer enabled", "topic", cfg.Kafka.ThreatTopic)
	}

	// Live threat feed
	hub := realtime.NewHub(logger)
	go hub.Run()

	threatRepo := database.NewThreatRepository(db, logger)
	ledgerSync := ledger.NewSync(threatRepo, producer, hub, logger, collector, cfg.Ledger.WriteTimeout)

	orchestrator := pipeline.NewOrchestrator(
		prober,
		analyzer,
		ledgerSync,
		logger,
		collector,
		cfg.RDAP.MaxProbes,
	)

	// HTTP server
	httpHandlers := handlers.NewHTTPHandler(logger, orchestrator, threatRepo, hub, db)
	router := mux.NewRouter()
	httpHandlers.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server", "port", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	logger.Info("Scan engine stopped")
}

// setupLogging configures structured logging from config
func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
