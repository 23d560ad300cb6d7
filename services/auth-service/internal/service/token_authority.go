package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"RetailBackOffice/pkg/authfilter"
	"RetailBackOffice/pkg/jwt"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/pkg/password"
	"RetailBackOffice/services/auth-service/internal/repository"
)

// TokenTypeBearer тип токена в ответе
const TokenTypeBearer = "Bearer"

// AuthObserver счетчики входов и проверок токенов (реализуется metrics.Metrics)
type AuthObserver interface {
	ObserveLogin(err error)
	ObserveTokenValidation(err error)
}

type options struct {
	now func() time.Time
}

// Option настраивает сервисы пакета
type Option func(*options)

// WithClock подменяет источник времени (используется в тестах)
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TokenAuthority выпускает, проверяет и обновляет токены.
// Access токен проверяется без обращения к хранилищу, refresh токен хранится в Redis и может быть отозван.
type TokenAuthority struct {
	credentials   repository.CredentialRepository
	refreshTokens repository.RefreshTokenRepository
	tokens        *jwt.Manager
	verifier      *authfilter.LocalVerifier
	hasher        password.Hasher
	observer      AuthObserver
	logger        logger.Logger
	now           func() time.Time
}

// NewTokenAuthority создает новый экземпляр TokenAuthority
func NewTokenAuthority(
	credentials repository.CredentialRepository,
	refreshTokens repository.RefreshTokenRepository,
	tokens *jwt.Manager,
	hasher password.Hasher,
	observer AuthObserver,
	log logger.Logger,
	opts ...Option,
) *TokenAuthority {
	o := buildOptions(opts)
	return &TokenAuthority{
		credentials:   credentials,
		refreshTokens: refreshTokens,
		tokens:        tokens,
		verifier:      authfilter.NewLocalVerifier(tokens),
		hasher:        hasher,
		observer:      observer,
		logger:        log,
		now:           o.now,
	}
}

// Login проверяет userCode и пароль по проекции и выдает пару токенов.
// Отсутствующая, удаленная запись и неверный пароль неразличимы для клиента.
func (s *TokenAuthority) Login(ctx context.Context, userCode, secret string) (pair *domain.TokenPair, err error) {
	defer func() { s.observer.ObserveLogin(err) }()

	cred, err := s.credentials.FindByUserCode(ctx, userCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, storeError("load credential", err)
	}
	if !cred.IsActive() || !s.hasher.Check(secret, cred.PasswordHash) {
		s.logger.Debug("Login rejected",
			logger.String("user_code", userCode),
			logger.Bool("deleted", cred.IsDeleted),
			logger.CtxField(ctx))
		return nil, ErrBadCredentials
	}

	pair, err = s.issuePair(ctx, cred)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User logged in", logger.String("user_code", cred.UserCode), logger.CtxField(ctx))
	return pair, nil
}

// IssueAccessToken выпускает access токен с текущими ролями записи. Побочных эффектов нет.
func (s *TokenAuthority) IssueAccessToken(cred *domain.CredentialRecord) (string, time.Time, error) {
	token, claims, err := s.tokens.GenerateAccessToken(cred.UserCode, cred.RoleStrings())
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

// IssueRefreshToken выпускает refresh токен и сохраняет отзываемую запись о нем
func (s *TokenAuthority) IssueRefreshToken(ctx context.Context, cred *domain.CredentialRecord) (string, *domain.RefreshToken, error) {
	token, record, err := s.newRefreshToken(cred)
	if err != nil {
		return "", nil, err
	}
	if err := s.refreshTokens.Create(ctx, record); err != nil {
		return "", nil, storeError("store refresh token", err)
	}
	return token, record, nil
}

func (s *TokenAuthority) newRefreshToken(cred *domain.CredentialRecord) (string, *domain.RefreshToken, error) {
	tokenID := uuid.NewString()
	token, claims, err := s.tokens.GenerateRefreshToken(cred.UserCode, cred.UserID, tokenID)
	if err != nil {
		return "", nil, err
	}
	return token, &domain.RefreshToken{
		TokenID:   tokenID,
		OwnerID:   cred.UserID,
		UserCode:  cred.UserCode,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *TokenAuthority) issuePair(ctx context.Context, cred *domain.CredentialRecord) (*domain.TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(cred)
	if err != nil {
		return nil, err
	}
	refresh, record, err := s.IssueRefreshToken(ctx, cred)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        TokenTypeBearer,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

// ValidateAccessToken проверяет подпись, срок действия и тип токена. Хранилище не используется.
func (s *TokenAuthority) ValidateAccessToken(token string) (authfilter.Principal, error) {
	principal, err := s.verifier.Verify(context.Background(), token)
	s.observer.ObserveTokenValidation(err)
	return principal, err
}

// Verify реализует authfilter.Verifier: возвращает {userCode, roles, expiresAt} для удаленной проверки
func (s *TokenAuthority) Verify(_ context.Context, token string) (authfilter.Principal, error) {
	return s.ValidateAccessToken(token)
}

// Refresh обменивает refresh токен на новую пару. Старый токен отзывается (ротация);
// повторное предъявление уже замененного токена отзывает все токены владельца.
func (s *TokenAuthority) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredRefreshToken
		}
		return nil, ErrInvalidRefreshToken.WithCause(err)
	}

	record, err := s.refreshTokens.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, storeError("load refresh token", err)
	}
	if record.OwnerID != claims.OwnerID {
		return nil, ErrInvalidRefreshToken
	}
	if record.Revoked {
		// замененный при ротации токен предъявлен повторно; отозванный через logout просто недействителен
		if record.ReplacedBy != "" {
			s.revokeOnReuse(ctx, record.OwnerID, record.TokenID)
		}
		return nil, ErrInvalidRefreshToken
	}
	if record.IsExpired(s.now()) {
		return nil, ErrExpiredRefreshToken
	}

	cred, err := s.credentials.FindByUserID(ctx, record.OwnerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError("load credential", err)
	}
	if !cred.IsActive() {
		if revokeErr := s.refreshTokens.Revoke(ctx, record.TokenID); revokeErr != nil && !errors.Is(revokeErr, repository.ErrNotFound) {
			s.logger.Warn("Failed to revoke refresh token of inactive owner", logger.Error(revokeErr))
		}
		return nil, ErrInvalidRefreshToken
	}

	nextToken, next, err := s.newRefreshToken(cred)
	if err != nil {
		return nil, err
	}
	if err := s.refreshTokens.Rotate(ctx, record.TokenID, next); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			// токен отозван конкурентным запросом: это тоже повторное использование
			s.revokeOnReuse(ctx, record.OwnerID, record.TokenID)
			return nil, ErrInvalidRefreshToken
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrInvalidRefreshToken
		default:
			return nil, storeError("rotate refresh token", err)
		}
	}

	access, accessExp, err := s.IssueAccessToken(cred)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     nextToken,
		TokenType:        TokenTypeBearer,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

func (s *TokenAuthority) revokeOnReuse(ctx context.Context, ownerID, tokenID string) {
	count, err := s.refreshTokens.RevokeAllForOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error("Failed to revoke tokens after refresh token reuse",
			logger.String("owner_id", ownerID),
			logger.Error(err))
		return
	}
	s.logger.Warn("Refresh token reuse detected, all sessions revoked",
		logger.String("owner_id", ownerID),
		logger.String("token_id", tokenID),
		logger.Int("revoked", count),
		logger.CtxField(ctx))
}

// Logout отзывает предъявленный refresh токен. Повторный вызов и истекший токен не являются ошибкой.
func (s *TokenAuthority) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return ErrInvalidRefreshToken.WithCause(err)
	}
	if err := s.refreshTokens.Revoke(ctx, claims.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeError("revoke refresh token", err)
	}
	s.logger.Info("User logged out", logger.String("user_code", claims.Subject), logger.CtxField(ctx))
	return nil
}
