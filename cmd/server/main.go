package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"projectstream/internal/config"
	"projectstream/internal/handler"
	"projectstream/internal/httpserver"
	"projectstream/internal/mqhandler"
	"projectstream/internal/repository"
	"projectstream/internal/service"
	"projectstream/pkg/db"
	"projectstream/pkg/logger"
	"projectstream/pkg/mq"
	"projectstream/pkg/outbox"
	pkgredis "projectstream/pkg/redis"
	"projectstream/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.Env)
	defer log.Sync()

	log.Info("Starting projectstream...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
	)

	// DB
	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	// Redis
	rdb := pkgredis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	dedupTTL := time.Duration(cfg.Dedup.TTLSeconds) * time.Second
	deduper := util.NewDeduperWithLogger(rdb, dedupTTL, log)
	retryCounter := util.NewRetryCounter(rdb, dedupTTL)

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	milestoneRepo := repository.NewMilestoneRepository(dbConn, outboxRepo, log)
	streamRepo := repository.NewStreamRepository(dbConn, log)
	eventRepo := repository.NewStreamEventRepository(dbConn, outboxRepo, log)
	subscriptionRepo := repository.NewSubscriptionRepository(dbConn, log)
	commentRepo := repository.NewCommentRepository(dbConn, log)

	// Services
	streamService := service.NewStreamService(streamRepo, eventRepo, subscriptionRepo, log)
	milestoneService, err := service.NewMilestoneService(projectRepo, milestoneRepo, commentRepo, streamService, log)
	if err != nil {
		log.Fatal("Failed to init milestone service", zap.Error(err))
	}
	subscriptionService := service.NewSubscriptionService(streamRepo, subscriptionRepo, milestoneRepo, streamService, log)

	// Outbox publisher + dispatcher
	log.Info("Initializing MQ publisher...")
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithInterval(time.Duration(cfg.Outbox.IntervalMS) * time.Millisecond).
		WithBatchSize(cfg.Outbox.BatchSize)
	go dispatcher.Start(dispatcherCtx)

	// MQ Consumer for milestone.completed
	log.Info("Initializing MQ consumer for milestone.completed...",
		zap.String("queue", "milestone.completed.q"),
		zap.String("routing_key", "milestone.completed"),
	)
	completedConsumer, err := mq.NewConsumer(cfg.MQ.URL, "milestone.completed.q", "milestone.completed", log)
	if err != nil {
		log.Fatal("Failed to init completed consumer", zap.Error(err))
	}
	defer completedConsumer.Close()

	completedHandler := mqhandler.NewMilestoneCompletedHandler(streamService, deduper, retryCounter, log)
	completedConsumer.SetHandler(completedHandler.Handle)
	go func() {
		log.Info("Starting milestone.completed consumer...")
		if err := completedConsumer.StartConsuming(); err != nil {
			log.Fatal("Completed consumer failed", zap.Error(err))
		}
	}()

	// MQ Consumer for milestone.unblocked
	log.Info("Initializing MQ consumer for milestone.unblocked...",
		zap.String("queue", "milestone.unblocked.q"),
		zap.String("routing_key", "milestone.unblocked"),
	)
	unblockedConsumer, err := mq.NewConsumer(cfg.MQ.URL, "milestone.unblocked.q", "milestone.unblocked", log)
	if err != nil {
		log.Fatal("Failed to init unblocked consumer", zap.Error(err))
	}
	defer unblockedConsumer.Close()

	unblockedHandler := mqhandler.NewMilestoneUnblockedHandler(streamService, deduper, retryCounter, log)
	unblockedConsumer.SetHandler(unblockedHandler.Handle)
	go func() {
		log.Info("Starting milestone.unblocked consumer...")
		if err := unblockedConsumer.StartConsuming(); err != nil {
			log.Fatal("Unblocked consumer failed", zap.Error(err))
		}
	}()

	// HTTP Server
	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	log.Info("Initializing HTTP server...", zap.String("port", port))

	milestoneHandler := handler.NewMilestoneHandler(milestoneService, log)
	streamHandler := handler.NewStreamHandler(streamService, log)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService, log)

	router := httpserver.NewRouter(
		milestoneHandler,
		streamHandler,
		subscriptionHandler,
		log,
		dbConn,
		[]*mq.Consumer{completedConsumer, unblockedConsumer},
	)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server starting on :" + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("projectstream is fully initialized and running",
		zap.String("http_port", port),
		zap.String("mq_queue_completed", "milestone.completed.q"),
		zap.String("mq_queue_unblocked", "milestone.unblocked.q"),
	)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down projectstream gracefully...")

	log.Info("Stopping MQ consumers...")
	completedConsumer.Stop()
	unblockedConsumer.Stop()

	log.Info("Stopping outbox dispatcher...")
	dispatcherCancel()

	log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("Closing database connection...")
	dbConn.Close()

	log.Info("projectstream shutdown complete")
}
