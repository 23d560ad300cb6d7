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
	"RetailBackOffice/pkg/health"
	"RetailBackOffice/pkg/httpx"
	"RetailBackOffice/pkg/jwt"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/pkg/metrics"
	"RetailBackOffice/pkg/ratelimit"
	pkg_redis "RetailBackOffice/pkg/redis"
	"RetailBackOffice/services/api-gateway/internal/middleware"
	"RetailBackOffice/services/api-gateway/internal/proxy"
)

const (
	serviceName = "api-gateway"
	version     = "1.0.0"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("Failed to load env files: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/gateway.yaml"
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

	// Инициализация Redis с retry логикой
	redisCtx, redisCancel := context.WithTimeout(ctx, 30*time.Second)
	defer redisCancel()

	var redisClient *pkg_redis.Client
	err = connection.WithRetry(redisCtx, connection.DefaultRetryConfig(), func(ctx context.Context) error {
		var err error
		redisClient, err = pkg_redis.Connect(ctx, pkg_redis.ConfigFrom(cfg.Redis))
		if err != nil {
			appLogger.Warn("Failed to connect to redis, retrying...", logger.Error(err))
		}
		return err
	})
	if err != nil {
		appLogger.Error("Failed to connect to redis after retries", logger.Error(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	// Проверка токена на границе: локально по общему секрету или через auth-service
	var verifier authfilter.Verifier
	switch cfg.Gateway.Verification {
	case "remote":
		verifier = authfilter.NewRemoteVerifier(cfg.Gateway.AuthServiceURL, cfg.Gateway.ValidateTimeout.Duration)
	default:
		verifier = authfilter.NewLocalVerifier(jwt.NewVerifier(cfg.JWT.AccessSecret, jwt.WithIssuer(cfg.JWT.Issuer)))
	}
	appLogger.Info("Edge token verification configured", logger.String("mode", cfg.Gateway.Verification))

	rateLimiter := ratelimit.NewRedisRateLimiter(redisClient.Client)
	limited := ratelimit.Middleware(rateLimiter, cfg.RateLimiting.RequestsPerMinute, time.Minute, appLogger)

	router, err := proxy.NewRouter(cfg.Gateway.Routes, limited, appLogger)
	if err != nil {
		appLogger.Error("Failed to build routes", logger.Error(err))
		os.Exit(1)
	}
	router.StartHealthChecks(ctx)

	healthChecker := health.NewChecker(version, 3*time.Second).
		AddCheck("redis", redisClient.HealthCheck)

	apiHandler := httpx.Chain(router,
		httpx.RecoveryMiddleware(appLogger),
		httpx.LoggingMiddleware(appLogger),
		httpx.CORSMiddleware(cfg.Gateway.AllowedOrigins, appLogger),
		metricCollector.Middleware,
		middleware.EdgeAuth(verifier, appLogger, metricCollector.ObserveTokenValidation),
	)

	rootMux := http.NewServeMux()
	rootMux.Handle("/metrics", metricCollector.GetHandler())
	rootMux.Handle("/health", health.Handler(healthChecker))
	rootMux.Handle("/ready", health.ReadyHandler(healthChecker))
	rootMux.Handle("/live", health.LiveHandler())
	rootMux.Handle("/", apiHandler)

	server := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     rootMux,
		ReadTimeout: cfg.Server.ReadTimeout.Duration,
		// WriteTimeout не задается: ответы upstream-ов могут быть потоковыми
	}

	go func() {
		appLogger.Info("Starting API Gateway server", logger.String("addr", server.Addr))
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
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Error("Tracer shutdown failed", logger.Error(err))
	}

	appLogger.Info("Server stopped")
}
