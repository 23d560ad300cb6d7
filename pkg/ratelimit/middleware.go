package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/logger"
)

// ErrTooManyRequests лимит запросов исчерпан
var ErrTooManyRequests = apperrors.New(apperrors.ErrTooManyRequests, "too many requests").WithReason("RATE_LIMITED")

// KeyFunc возвращает ключ ограничения для запроса
type KeyFunc func(r *http.Request) string

// MiddlewareOption настраивает Middleware
type MiddlewareOption func(*middleware)

type middleware struct {
	limiter RateLimiter
	limit   int
	window  time.Duration
	key     KeyFunc
	log     logger.Logger
}

// WithKeyFunc задает ключ ограничения (по умолчанию IP клиента и путь)
func WithKeyFunc(fn KeyFunc) MiddlewareOption {
	return func(m *middleware) {
		m.key = fn
	}
}

// Middleware ограничивает число запросов в окне window. При недоступности Redis запрос пропускается:
// ограничение защищает от перебора, но не должно останавливать вход.
func Middleware(limiter RateLimiter, limit int, window time.Duration, log logger.Logger, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	m := &middleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		log:     log,
		key: func(r *http.Request) string {
			return "ip:" + ClientIP(r) + ":" + r.URL.Path
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := m.key(r)
			exceeded, err := m.limiter.CheckRateLimit(r.Context(), key, m.limit, m.window)
			if err != nil {
				m.log.Error("Rate limiter error, allowing request",
					logger.String("key", key),
					logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if exceeded {
				m.log.Warn("Rate limit exceeded",
					logger.String("key", key),
					logger.Int("limit", m.limit),
					logger.Duration("window", m.window),
					logger.String("path", r.URL.Path))
				w.Header().Set("Retry-After", retryAfter(m.window))
				apperrors.WriteError(w, ErrTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) string {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// ClientIP адрес клиента: первый адрес из X-Forwarded-For, затем X-Real-IP, затем RemoteAddr
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
