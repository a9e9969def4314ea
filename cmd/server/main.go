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

	"farmhub/config"
	"farmhub/internal/api"
	"farmhub/internal/auth"
	"farmhub/internal/broker"
	"farmhub/internal/notify"
	"farmhub/internal/provider"
	"farmhub/internal/redisclient"
	"farmhub/internal/service"
	"farmhub/internal/store"
	"farmhub/internal/util"
	"farmhub/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting farmhub order service")

	tp, err := util.InitTracer("farmhub", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotification)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	dispatcher := notify.NewDispatcher(db, eventPublisher)

	guard := auth.NewGuard()
	providers := provider.NewRegistry(cfg.Payments)

	orderService := service.NewOrderService(db, redisClient, guard, dispatcher)
	paymentService := service.NewPaymentService(db, providers, guard, dispatcher, cfg.Payments.Currency)

	// Delivery channels are optional per environment; the worker skips
	// whichever sender is nil.
	var emailSender notify.EmailSender
	if s, err := notify.NewSMTPSender(cfg.Email); err != nil {
		log.Printf("Email delivery disabled: %v", err)
	} else {
		emailSender = s
	}

	var smsSender notify.SMSSender
	if s, err := notify.NewTwilioSender(cfg.SMS); err != nil {
		log.Printf("SMS delivery disabled: %v", err)
	} else {
		smsSender = s
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotification, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, emailSender, smsSender)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, paymentService, cfg.Auth.JWTSecret)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		log.Printf("Error stopping notification worker: %v", err)
	}

	log.Println("Server exited")
}
