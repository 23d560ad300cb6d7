package authfilter

import (
	"net/http"

	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/logger"
)

// Observer получает результат каждой проверки токена (метрики)
type Observer func(err error)

// Option настраивает Middleware
type Option func(*filter)

// WithObserver подключает наблюдателя проверок
func WithObserver(o Observer) Option {
	return func(f *filter) {
		f.observe = o
	}
}

type filter struct {
	verifier Verifier
	logger   logger.Logger
	observe  Observer
}

// Middleware фильтр аутентификации запросов. Выполняется один раз до обработчиков.
// Отсутствующий или некорректный заголовок и непрошедший проверку токен не прерывают запрос:
// он продолжается без principal, а итоговый 401/403 выдают RequireAuthenticated и RequireRole.
func Middleware(verifier Verifier, log logger.Logger, opts ...Option) func(http.Handler) http.Handler {
	f := &filter{verifier: verifier, logger: log, observe: func(error) {}}
	for _, opt := range opts {
		opt(f)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				if err != ErrNoCredentials {
					f.logger.Debug("Ignoring malformed authorization header",
						logger.String("path", r.URL.Path),
						logger.CtxField(r.Context()))
				}
				next.ServeHTTP(w, r)
				return
			}

			principal, err := f.verifier.Verify(r.Context(), token)
			f.observe(err)
			if err != nil {
				f.logger.Debug("Bearer token rejected, continuing unauthenticated",
					logger.String("path", r.URL.Path),
					logger.String("reason", apperrors.ReasonOf(err)),
					logger.CtxField(r.Context()),
					logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAuthenticated пропускает только запросы с principal, иначе 401
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			apperrors.WriteError(w, apperrors.New(apperrors.ErrUnauthenticated, "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole пропускает запросы principal с одной из ролей: 401 без principal, 403 без роли
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				apperrors.WriteError(w, apperrors.New(apperrors.ErrUnauthenticated, "authentication required"))
				return
			}
			if !p.HasRole(roles...) {
				apperrors.WriteError(w, apperrors.New(apperrors.ErrForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
