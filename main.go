package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"ticket-wallet/internal/auth"
	"ticket-wallet/internal/clock"
	"ticket-wallet/internal/config"
	"ticket-wallet/internal/extraction"
	"ticket-wallet/internal/kafka"
	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/reminders"
	"ticket-wallet/internal/sse"
	"ticket-wallet/internal/storage"
	rediswrap "ticket-wallet/internal/storage/redis"
	"ticket-wallet/internal/wallet"
	"ticket-wallet/internal/wallet/service"
	"ticket-wallet/internal/wallet/wallet_api"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info("APP", "Starting Ticket Wallet initialization")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("CONFIG", "JWT_SECRET not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open database: %v", err))
	}
	defer bunDB.Close()
	db := &storage.DB{Bun: bunDB, Logger: log}
	if err := db.CreateSchema(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to create schema: %v", err))
	}
	log.Info("DATABASE", "✅ Database ready")

	redisClient, err := rediswrap.Connect(cfg.Redis.Addr, cfg.Redis.DB, log)
	if err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()
	redisStore := rediswrap.NewStore(redisClient)

	notifier := reminders.Fanout{&reminders.LogNotifier{Logger: log}}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.ReminderTopic); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		notifier = append(notifier, &reminders.KafkaNotifier{Publisher: producer, Topic: cfg.Kafka.ReminderTopic})
		log.Info("KAFKA", fmt.Sprintf("Reminders published to %s", cfg.Kafka.ReminderTopic))
	}

	clk := clock.NewSystem()
	importer := &extraction.Importer{
		Extractor:   extraction.NewClient(cfg.Extraction.URL, cfg.Extraction.APIKey, &http.Client{Timeout: cfg.Extraction.Timeout}),
		Concurrency: cfg.Extraction.Concurrency,
		Location:    cfg.Location,
		Logger:      log,
	}
	walletService := service.NewWalletService(
		db,
		storage.NewMigrator(redisStore, db, log),
		wallet.NewCore(clk, cfg.Location),
		importer,
		log,
	)
	defer walletService.Close()
	emitter := sse.NewReminderEmitter()
	walletService.Sink = emitter

	scheduler := &reminders.Scheduler{
		Clock:    clk,
		Location: cfg.Location,
		Interval: cfg.Reminders.TickInterval,
		Fired:    redisStore,
		Notifier: notifier,
		Logger:   log,
	}
	go scheduler.Run(ctx, walletService)

	handler := wallet_api.NewHandler(walletService, emitter, log)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware([]byte(cfg.Auth.JWTSecret), log))
		r.Route("/api", handler.RegisterRoutes)
	})
	log.Info("ROUTER", "Wallet routes registered under /api/wallet")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Ticket Wallet running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Ticket Wallet shutdown complete")
	}
}
