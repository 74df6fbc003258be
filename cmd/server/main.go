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

	"storefront-cart/config"
	"storefront-cart/internal/api"
	"storefront-cart/internal/broker"
	"storefront-cart/internal/redisclient"
	"storefront-cart/internal/remote"
	"storefront-cart/internal/service"
	"storefront-cart/internal/store"
	"storefront-cart/internal/util"
	"storefront-cart/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront cart service")

	tp, err := util.InitTracer("storefront-cart", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redisclient.Options{
		CacheTTL: cfg.Cart.CacheTTL,
		LockTTL:  cfg.Cart.LockTTL,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCartEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicCartEvents))

	eventPublisher := broker.NewEventPublisher(producer)
	marketplace := remote.NewClient(cfg.Marketplace.APIURL, cfg.Marketplace.Timeout)

	cartService := service.NewCartService(redisClient, cfg.Cart.GuestKey, marketplace, redisClient, redisClient)
	reconciler := service.NewReconciler(redisClient, cfg.Cart.GuestKey, marketplace, redisClient, redisClient,
		eventPublisher, cfg.Cart.ReconcileConcurrency)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers,
		[]string{cfg.Kafka.TopicCartEvents, cfg.Kafka.TopicOrder}, cfg.Kafka.ConsumerGroup)
	cartWorker := worker.NewCartEventWorker(consumer, db, redisClient)
	go func() {
		if err := cartWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Cart event worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(cartService, reconciler, db, cfg.Server.JWTSecret, db, redisClient)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := cartWorker.Stop(); err != nil {
		logger.Warn("Error stopping cart event worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
