package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/snake-arena/internal/auth"
	"github.com/snake-arena/internal/config"
	"github.com/snake-arena/internal/handler"
	"github.com/snake-arena/internal/kafka"
	"github.com/snake-arena/internal/memory"
	"github.com/snake-arena/internal/seed"
	"github.com/snake-arena/internal/service"
	"github.com/snake-arena/internal/websocket"
	"github.com/snake-arena/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	configErr := err
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if configErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", configErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer st.close()
	logger.Info("storage ready", "backend", cfg.Storage.Backend)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	// Initialize services
	authService := auth.NewService(st.users, st.sessions, &cfg.Auth, logger)
	leaderboardService := service.NewLeaderboardService(st.ledger, logger)
	leaderboardService.SetNotifier(wsHub)
	spectateService := service.NewSpectateService(memory.NewActivePlayers(seed.ActivePlayers()...), logger)

	if cfg.Storage.SeedDemoData {
		if err := seed.NewSeeder(authService, st.ledger, logger).Run(ctx); err != nil {
			logger.Error("failed to seed demo data", "error", err)
			os.Exit(1)
		}
	}

	// Periodic leaderboard push
	broadcastWorker := worker.NewBroadcastWorker(leaderboardService, wsHub, &cfg.Broadcast, logger)
	if cfg.Broadcast.Enabled {
		if err := broadcastWorker.Start(ctx); err != nil {
			logger.Error("failed to start broadcast worker", "error", err)
			os.Exit(1)
		}
	}

	// Kafka score ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, leaderboardService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			startCtx, startCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			err := kafkaConsumer.Start(startCtx)
			startCancel()
			if err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				_ = kafkaConsumer.Stop()
				kafkaConsumer = nil
			}
		}
	}

	httpHandler := handler.NewHandler(handler.Options{
		Leaderboard: leaderboardService,
		Spectate:    spectateService,
		Auth:        authService,
		Hub:         wsHub,
		Ready:       st.ping,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := broadcastWorker.Stop(); err != nil {
		logger.Error("failed to stop broadcast worker", "error", err)
	}

	wsHub.Stop()

	logger.Info("server stopped")
}
