package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Значения метки result
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics представляет систему метрик сервиса.
// Каждый экземпляр владеет своим реестром, поэтому в одном процессе (и в тестах)
// можно создать несколько экземпляров без конфликтов регистрации.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP метрики
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsCount     *prometheus.CounterVec

	// Доменные счетчики аутентификации
	Logins           *prometheus.CounterVec
	TokenValidations *prometheus.CounterVec
	CredentialEvents *prometheus.CounterVec
	PasswordFlows    *prometheus.CounterVec
	MailJobs         *prometheus.CounterVec

	// OpenTelemetry Tracer
	Tracer trace.Tracer `json:"-"`
}

// NewMetrics создает новую систему метрик
func NewMetrics(serviceName string) *Metrics {
	namespace := sanitize(serviceName)
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		ErrorsCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total number of HTTP errors",
			},
			[]string{"method", "endpoint", "error_type"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auth",
				Name:      "logins_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),
		TokenValidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auth",
				Name:      "token_validations_total",
				Help:      "Access token validations by result",
			},
			[]string{"result"},
		),
		CredentialEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auth",
				Name:      "credential_events_total",
				Help:      "Credential lifecycle events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		PasswordFlows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auth",
				Name:      "password_flows_total",
				Help:      "Password lifecycle operations by flow and result",
			},
			[]string{"flow", "result"},
		),
		MailJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mail",
				Name:      "jobs_total",
				Help:      "Outbound mail jobs by kind and result",
			},
			[]string{"kind", "result"},
		),
		Tracer: otel.Tracer(serviceName),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestCount,
		m.RequestDuration,
		m.ErrorsCount,
		m.Logins,
		m.TokenValidations,
		m.CredentialEvents,
		m.PasswordFlows,
		m.MailJobs,
	)

	return m
}

// sanitize приводит имя сервиса к допустимому имени метрики (auth-service -> auth_service)
func sanitize(name string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name)
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// GetHandler возвращает HTTP обработчик для эндпоинта /metrics
func (m *Metrics) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Result переводит ошибку в значение метки result
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// ObserveLogin учитывает попытку входа
func (m *Metrics) ObserveLogin(err error) {
	m.Logins.WithLabelValues(Result(err)).Inc()
}

// ObserveTokenValidation учитывает проверку access токена
func (m *Metrics) ObserveTokenValidation(err error) {
	m.TokenValidations.WithLabelValues(Result(err)).Inc()
}

// ObserveCredentialEvent учитывает обработанное событие. outcome: applied, skipped, retry, poison.
func (m *Metrics) ObserveCredentialEvent(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.CredentialEvents.WithLabelValues(eventType, outcome).Inc()
}

// ObservePasswordFlow учитывает операцию с паролем
func (m *Metrics) ObservePasswordFlow(flow string, err error) {
	m.PasswordFlows.WithLabelValues(flow, Result(err)).Inc()
}

// ObserveMailJob учитывает отправку письма
func (m *Metrics) ObserveMailJob(kind string, err error) {
	m.MailJobs.WithLabelValues(kind, Result(err)).Inc()
}

// StartSpan открывает span трассировки
func (m *Metrics) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan закрывает span, помечая ошибку
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Middleware создает middleware для сбора метрик.
// endpoint берется из пути запроса; пути с идентификаторами в этом проекте не используются.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.Tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start).Seconds()
		endpoint := r.URL.Path

		m.RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(duration)

		if wrapped.statusCode >= 400 {
			errorType := "client_error"
			if wrapped.statusCode >= 500 {
				errorType = "server_error"
				span.SetStatus(codes.Error, http.StatusText(wrapped.statusCode))
			}
			m.ErrorsCount.WithLabelValues(r.Method, endpoint, errorType).Inc()
		}

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", endpoint),
			attribute.Int("http.status_code", wrapped.statusCode),
			attribute.Float64("http.duration", duration),
		)
	})
}

// responseWriter обертка для перехвата статуса ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// WriteHeader перехватывает установку статуса
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Flush нужен для проксирования потоковых ответов
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// InitializeOpenTelemetry устанавливает глобальный провайдер трассировки.
// Возвращает функцию остановки провайдера.
func InitializeOpenTelemetry(serviceName, version string) func(context.Context) error {
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.AlwaysSample())),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown
}
