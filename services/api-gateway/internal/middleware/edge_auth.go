package middleware

import (
	"errors"
	"net/http"

	"RetailBackOffice/pkg/authfilter"
	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/logger"
)

// ErrMalformedAuthorization заголовок Authorization есть, но это не "Bearer <jwt>"
var ErrMalformedAuthorization = apperrors.New(apperrors.ErrUnauthenticated, "malformed authorization header").
	WithReason("MALFORMED_AUTHORIZATION")

// Observer получает результат каждой проверки токена на границе
type Observer func(err error)

// EdgeAuth фильтр на входе в шлюз.
// Запрос без заголовка Authorization проходит дальше: публичные эндпоинты решают сами.
// Некорректный заголовок или непрошедший проверку токен отклоняются с 401 до маршрутизации.
// Заголовок передается upstream-у без изменений, resource server проверяет токен повторно.
func EdgeAuth(verifier authfilter.Verifier, log logger.Logger, observe Observer) func(http.Handler) http.Handler {
	if observe == nil {
		observe = func(error) {}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := authfilter.BearerToken(r.Header.Get("Authorization"))
			switch {
			case errors.Is(err, authfilter.ErrNoCredentials):
				next.ServeHTTP(w, r)
				return
			case err != nil:
				log.Debug("Malformed authorization header at edge",
					logger.String("path", r.URL.Path),
					logger.CtxField(r.Context()))
				apperrors.WriteError(w, ErrMalformedAuthorization)
				return
			}

			_, err = verifier.Verify(r.Context(), token)
			observe(err)
			if err != nil {
				log.Debug("Bearer token rejected at edge",
					logger.String("path", r.URL.Path),
					logger.String("reason", apperrors.ReasonOf(err)),
					logger.CtxField(r.Context()))
				if apperrors.KindOf(err) != apperrors.ErrUnauthenticated {
					err = apperrors.Wrap(err, apperrors.ErrUnauthenticated, "access token rejected")
				}
				apperrors.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
