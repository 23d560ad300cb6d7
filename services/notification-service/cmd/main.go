package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"RetailBackOffice/pkg/config"
	"RetailBackOffice/pkg/health"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/pkg/mail"
	"RetailBackOffice/pkg/metrics"
	"RetailBackOffice/pkg/rabbitmq"
	"RetailBackOffice/services/notification-service/internal/consumer"
	"RetailBackOffice/services/notification-service/internal/provider/email"
	"RetailBackOffice/services/notification-service/internal/template"
)

const (
	serviceName = "notification-service"
	version     = "1.0.0"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("Failed to load env files: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/notification.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg.Environment, cfg.Logger.Level, serviceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		if err := appLogger.Sync(); err != nil {
			log.Printf("Error syncing logger: %v", err)
		}
	}()

	shutdownTracing := metrics.InitializeOpenTelemetry(serviceName, version)
	metricCollector := metrics.NewMetrics(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Задания публикуются в default exchange с ключом, равным имени очереди
	mqConfig := rabbitmq.ConfigFrom(cfg.RabbitMQ)
	mqConfig.Exchange = ""
	mqConfig.RoutingKey = ""
	queue := cfg.RabbitMQ.MailQueue
	if queue == "" {
		queue = mail.DefaultQueue
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, time.Minute)
	defer connectCancel()

	mqConn, err := rabbitmq.Connect(connectCtx, mqConfig)
	if err != nil {
		appLogger.Error("Failed to connect to rabbitmq", logger.Error(err))
		os.Exit(1)
	}
	defer mqConn.Close()

	renderer, err := template.NewRenderer(cfg.SMTP.FromName)
	if err != nil {
		appLogger.Error("Failed to parse mail templates", logger.Error(err))
		os.Exit(1)
	}
	sender := email.NewSender(email.ConfigFrom(cfg.SMTP), appLogger)
	mailHandler := consumer.NewMailHandler(renderer, sender, email.IsPermanent, metricCollector, appLogger)

	// Письма независимы, порядок не важен: распределяем по идентификатору сообщения
	mailConsumer := rabbitmq.NewConsumer(mqConn, mqConfig, appLogger,
		rabbitmq.WithWorkers(cfg.Consumer.Workers, cfg.Consumer.QueueSize, func(msg amqp091.Delivery) string {
			return msg.MessageId
		}))

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := mailConsumer.Consume(ctx, queue, mailHandler.Handle); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("Mail consumer stopped", logger.Error(err))
		}
	}()

	healthChecker := health.NewChecker(version, 3*time.Second).
		AddCheck("rabbitmq", mqConn.HealthCheck)

	rootMux := http.NewServeMux()
	rootMux.Handle("/metrics", metricCollector.GetHandler())
	rootMux.Handle("/health", health.Handler(healthChecker))
	rootMux.Handle("/ready", health.ReadyHandler(healthChecker))
	rootMux.Handle("/live", health.LiveHandler())

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      rootMux,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	go func() {
		appLogger.Info("Starting notification service",
			logger.String("addr", server.Addr),
			logger.String("queue", queue))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down notification service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed", logger.Error(err))
	}
	<-consumerDone
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Error("Tracer shutdown failed", logger.Error(err))
	}

	appLogger.Info("Notification service stopped")
}
