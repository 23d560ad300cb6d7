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

	"RetailBackOffice/pkg/authfilter"
	"RetailBackOffice/pkg/config"
	"RetailBackOffice/pkg/connection"
	"RetailBackOffice/pkg/database"
	"RetailBackOffice/pkg/health"
	"RetailBackOffice/pkg/httpx"
	"RetailBackOffice/pkg/jwt"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/pkg/metrics"
	"RetailBackOffice/pkg/rabbitmq"
	"RetailBackOffice/pkg/ratelimit"
	pkg_redis "RetailBackOffice/pkg/redis"
	"RetailBackOffice/services/auth-service/internal/client"
	"RetailBackOffice/services/auth-service/internal/consumer"
	httphandler "RetailBackOffice/services/auth-service/internal/handler/http"
	"RetailBackOffice/services/auth-service/internal/mailer"
	"RetailBackOffice/services/auth-service/internal/pkg/password"
	"RetailBackOffice/services/auth-service/internal/projection"
	"RetailBackOffice/services/auth-service/internal/repository/postgres"
	redisrepo "RetailBackOffice/services/auth-service/internal/repository/redis"
	"RetailBackOffice/services/auth-service/internal/service"
)

const (
	serviceName = "auth-service"
	version     = "1.0.0"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("Failed to load env files: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
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

	// PostgreSQL: проекция учетных данных и токены восстановления
	connectCtx, connectCancel := context.WithTimeout(ctx, time.Minute)
	defer connectCancel()

	db, err := database.Connect(connectCtx, database.ConfigFrom(cfg.Database))
	if err != nil {
		appLogger.Error("Failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	applied, err := database.Migrate(connectCtx, db.Pool, postgres.Migrations())
	if err != nil {
		appLogger.Error("Failed to apply migrations", logger.Error(err))
		os.Exit(1)
	}
	appLogger.Info("Migrations applied", logger.Strings("applied", applied))

	// Redis: refresh токены и счетчики rate limit
	redisClient, err := pkg_redis.Connect(connectCtx, pkg_redis.ConfigFrom(cfg.Redis))
	if err != nil {
		appLogger.Error("Failed to connect to redis", logger.Error(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	// RabbitMQ: события учетных данных и исходящая почта
	mqConfig := rabbitmq.ConfigFrom(cfg.RabbitMQ)
	mqConn, err := rabbitmq.Connect(connectCtx, mqConfig)
	if err != nil {
		appLogger.Error("Failed to connect to rabbitmq", logger.Error(err))
		os.Exit(1)
	}
	defer mqConn.Close()

	producer := rabbitmq.NewProducer(mqConn, mqConfig)
	defer producer.Close()
	if err := producer.DeclareQueue(connectCtx, cfg.RabbitMQ.MailQueue); err != nil {
		appLogger.Error("Failed to declare mail queue", logger.Error(err))
		os.Exit(1)
	}

	// Репозитории
	txManager := database.NewPoolTxManager(db.Pool)
	credentials := postgres.NewCredentialRepository(txManager)
	resetTokens := postgres.NewResetTokenRepository(txManager)
	refreshTokens := redisrepo.NewRefreshTokenRepository(redisClient.Client)

	// Сервисы
	tokenManager := jwt.NewManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenDuration.Duration,
		cfg.JWT.RefreshTokenDuration.Duration,
		jwt.WithIssuer(cfg.JWT.Issuer),
	)
	hasher := password.NewBcryptHasher(cfg.Password.BcryptCost)

	authority := service.NewTokenAuthority(credentials, refreshTokens, tokenManager, hasher, metricCollector, appLogger)

	mailPublisher := mailer.NewPublisher(producer, cfg.RabbitMQ.MailQueue, connection.DefaultRetryConfig(), metricCollector, appLogger)
	directory := client.NewDirectoryClient(cfg.Directory.URL, cfg.Directory.Timeout.Duration, appLogger)
	passwords := service.NewPasswordService(
		credentials,
		resetTokens,
		refreshTokens,
		txManager,
		directory,
		mailPublisher,
		hasher,
		metricCollector,
		appLogger,
		service.PasswordConfig{
			ResetTokenTTL: cfg.Password.ResetTokenTTL.Duration,
			ResetURL:      cfg.Password.ResetURL,
		},
	)

	// Потребитель событий: события одного пользователя обрабатывает один воркер
	projector := projection.NewProjector(credentials, appLogger)
	eventHandler := consumer.NewCredentialEventHandler(projector, metricCollector, appLogger)
	eventConsumer := rabbitmq.NewConsumer(mqConn, mqConfig, appLogger,
		rabbitmq.WithWorkers(cfg.Consumer.Workers, cfg.Consumer.QueueSize, consumer.PartitionKey))

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := eventConsumer.Consume(ctx, cfg.RabbitMQ.Queue, eventHandler.Handle); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("Credential event consumer stopped", logger.Error(err))
		}
	}()

	// Health checks
	healthChecker := health.NewChecker(version, 3*time.Second).
		AddCheck("postgres", db.HealthCheck).
		AddCheck("redis", redisClient.HealthCheck).
		AddCheck("rabbitmq", mqConn.HealthCheck)

	// HTTP
	rateLimiter := ratelimit.NewRedisRateLimiter(redisClient.Client)
	limited := ratelimit.Middleware(rateLimiter, cfg.RateLimiting.RequestsPerMinute, time.Minute, appLogger)

	mux := http.NewServeMux()
	httphandler.NewHandler(authority, passwords, appLogger).Register(mux, limited)

	var apiHandler http.Handler = httpx.Chain(mux,
		httpx.RecoveryMiddleware(appLogger),
		httpx.LoggingMiddleware(appLogger),
		metricCollector.Middleware,
		authfilter.Middleware(authority, appLogger),
	)

	rootMux := http.NewServeMux()
	rootMux.Handle("/metrics", metricCollector.GetHandler())
	rootMux.Handle("/health", health.Handler(healthChecker))
	rootMux.Handle("/ready", health.ReadyHandler(healthChecker))
	rootMux.Handle("/live", health.LiveHandler())
	rootMux.Handle("/", apiHandler)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      rootMux,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	go func() {
		appLogger.Info("Starting auth service", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed", logger.Error(err))
	}
	<-consumerDone
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Error("Tracer shutdown failed", logger.Error(err))
	}

	appLogger.Info("Server stopped")
}
