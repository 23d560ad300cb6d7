package authfilter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/jwt"
)

var (
	// ErrNoCredentials заголовок Authorization отсутствует
	ErrNoCredentials = errors.New("authorization header missing")
	// ErrMalformedHeader заголовок есть, но это не "Bearer <jwt>"
	ErrMalformedHeader = errors.New("malformed authorization header")
)

// Verifier проверяет bearer токен и возвращает principal
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// BearerToken извлекает токен из заголовка Authorization.
// Токен должен состоять из трех непустых сегментов, разделенных точкой.
func BearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrMalformedHeader
	}
	for _, part := range parts {
		if part == "" {
			return "", ErrMalformedHeader
		}
	}
	return token, nil
}

// accessValidator проверка access токена по общему секрету
type accessValidator interface {
	ValidateAccessToken(token string) (*jwt.AccessClaims, error)
}

// LocalVerifier проверяет подпись и срок действия без сетевых вызовов
type LocalVerifier struct {
	tokens accessValidator
}

// NewLocalVerifier создает локальный верификатор. Обычно передается jwt.NewVerifier(secret).
func NewLocalVerifier(tokens accessValidator) *LocalVerifier {
	return &LocalVerifier{tokens: tokens}
}

// Verify проверяет токен
func (v *LocalVerifier) Verify(_ context.Context, token string) (Principal, error) {
	claims, err := v.tokens.ValidateAccessToken(token)
	if err != nil {
		reason := "INVALID_ACCESS_TOKEN"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "EXPIRED_ACCESS_TOKEN"
		}
		return Principal{}, apperrors.Wrap(err, apperrors.ErrUnauthenticated, "access token rejected").WithReason(reason)
	}
	return PrincipalFromClaims(claims), nil
}

// PrincipalFromClaims строит principal из утверждений access токена
func PrincipalFromClaims(claims *jwt.AccessClaims) Principal {
	p := Principal{
		UserCode: claims.Subject,
		Roles:    append([]string(nil), claims.Roles...),
		TokenID:  claims.ID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p
}

// ValidateRequest тело запроса удаленной проверки токена
type ValidateRequest struct {
	Token string `json:"token"`
}

// ValidateResponse ответ удаленной проверки токена
type ValidateResponse struct {
	Principal
}

// RemoteVerifier проверяет токен синхронным вызовом POST {auth}/validate.
// Используется там, где нет общего секрета. Любая ошибка транспорта или таймаут
// означает отказ в аутентификации.
type RemoteVerifier struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// RemoteOption настраивает RemoteVerifier
type RemoteOption func(*RemoteVerifier)

// WithHTTPClient подменяет HTTP клиент
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(v *RemoteVerifier) {
		v.client = client
	}
}

// NewRemoteVerifier создает удаленный верификатор
func NewRemoteVerifier(authServiceURL string, timeout time.Duration, opts ...RemoteOption) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	v := &RemoteVerifier{
		endpoint: strings.TrimRight(authServiceURL, "/") + "/validate",
		client:   &http.Client{},
		timeout:  timeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify проверяет токен через auth-service
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	body, err := json.Marshal(ValidateRequest{Token: token})
	if err != nil {
		return Principal{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return Principal{}, fmt.Errorf("failed to build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Principal{}, apperrors.Wrap(err, apperrors.ErrUnauthenticated, "token validation unavailable").WithReason("VALIDATION_UNAVAILABLE")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Principal{}, apperrors.New(apperrors.ErrUnauthenticated, "access token rejected").
			WithReason("INVALID_ACCESS_TOKEN").
			WithDetails(fmt.Sprintf("auth service responded %d", resp.StatusCode))
	}

	var out ValidateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return Principal{}, apperrors.Wrap(err, apperrors.ErrUnauthenticated, "malformed validate response")
	}
	if out.UserCode == "" {
		return Principal{}, apperrors.New(apperrors.ErrUnauthenticated, "validate response without subject")
	}
	return out.Principal, nil
}
