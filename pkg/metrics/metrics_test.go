package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetrics проверяет создание системы метрик
func TestNewMetrics(t *testing.T) {
	m := NewMetrics("auth-service")

	require.NotNil(t, m)
	assert.NotNil(t, m.RequestCount)
	assert.NotNil(t, m.RequestDuration)
	assert.NotNil(t, m.ErrorsCount)
	assert.NotNil(t, m.Tracer)

	// повторное создание не паникует: у каждого экземпляра свой реестр
	assert.NotPanics(t, func() { NewMetrics("auth-service") })
}

// TestGetHandler проверяет обработчик метрик
func TestGetHandler(t *testing.T) {
	m := NewMetrics("auth-service")
	m.ObserveLogin(nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `auth_logins_total{result="success"} 1`)
}

// TestMiddleware проверяет работу middleware
func TestMiddleware(t *testing.T) {
	m := NewMetrics("api-gateway")

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestCount.WithLabelValues("GET", "/test", "200")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.ErrorsCount))
}

// TestMiddlewareWithError проверяет учет ошибочных ответов
func TestMiddlewareWithError(t *testing.T) {
	m := NewMetrics("api-gateway")

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil))

	handler = m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsCount.WithLabelValues("POST", "/login", "server_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsCount.WithLabelValues("POST", "/login", "client_error")))
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics("auth-service")
	failure := errors.New("boom")

	m.ObserveLogin(failure)
	m.ObserveLogin(failure)
	m.ObserveTokenValidation(nil)
	m.ObserveCredentialEvent("Created", "applied")
	m.ObserveCredentialEvent("", "poison")
	m.ObservePasswordFlow("reset", nil)
	m.ObserveMailJob("password_reset", failure)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Logins.WithLabelValues(ResultFailure)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TokenValidations.WithLabelValues(ResultSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CredentialEvents.WithLabelValues("Created", "applied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CredentialEvents.WithLabelValues("unknown", "poison")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PasswordFlows.WithLabelValues("reset", ResultSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MailJobs.WithLabelValues("password_reset", ResultFailure)))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "auth_service", sanitize("auth-service"))
	assert.False(t, strings.Contains(sanitize("a.b c"), "."))
}

func TestInitializeOpenTelemetry(t *testing.T) {
	shutdown := InitializeOpenTelemetry("auth-service", "test")
	m := NewMetrics("auth-service")

	_, span := m.StartSpan(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	EndSpan(span, errors.New("failed"))

	require.NoError(t, shutdown(context.Background()))
}
