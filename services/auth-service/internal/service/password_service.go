package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"RetailBackOffice/pkg/authfilter"
	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/pkg/hash"
	"RetailBackOffice/services/auth-service/internal/pkg/password"
	"RetailBackOffice/services/auth-service/internal/repository"
)

// Потоки для метрик
const (
	FlowForgotUserCode = "forgot_user_code"
	FlowForgotPassword = "forgot_password"
	FlowResetPassword  = "reset_password"
	FlowChangePassword = "change_password"
)

// saveAttempts сколько раз перечитывать запись при конкурентном изменении
const saveAttempts = 3

// Directory справочник учетных записей (внешний сервис)
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
}

// Mailer отправка писем пользователю
type Mailer interface {
	SendUserCode(ctx context.Context, to, userCode string) error
	SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error
}

// PasswordObserver счетчик потоков восстановления и смены пароля (реализуется metrics.Metrics)
type PasswordObserver interface {
	ObservePasswordFlow(flow string, err error)
}

// PasswordConfig параметры восстановления пароля
type PasswordConfig struct {
	ResetTokenTTL time.Duration
	ResetURL      string
}

// PasswordService восстановление и смена пароля.
// Токен восстановления проходит Issued -> Consumed или Issued -> Expired, обратных переходов нет.
type PasswordService struct {
	credentials   repository.CredentialRepository
	resetTokens   repository.ResetTokenRepository
	refreshTokens repository.RefreshTokenRepository
	tx            repository.Transactor
	directory     Directory
	mailer        Mailer
	hasher        password.Hasher
	tokenHasher   *hash.TokenHasher
	observer      PasswordObserver
	logger        logger.Logger
	config        PasswordConfig
	now           func() time.Time
}

// NewPasswordService создает новый экземпляр PasswordService
func NewPasswordService(
	credentials repository.CredentialRepository,
	resetTokens repository.ResetTokenRepository,
	refreshTokens repository.RefreshTokenRepository,
	tx repository.Transactor,
	directory Directory,
	mailer Mailer,
	hasher password.Hasher,
	observer PasswordObserver,
	log logger.Logger,
	config PasswordConfig,
	opts ...Option,
) *PasswordService {
	o := buildOptions(opts)
	return &PasswordService{
		credentials:   credentials,
		resetTokens:   resetTokens,
		refreshTokens: refreshTokens,
		tx:            tx,
		directory:     directory,
		mailer:        mailer,
		hasher:        hasher,
		tokenHasher:   hash.NewTokenHasher(),
		observer:      observer,
		logger:        log,
		config:        config,
		now:           o.now,
	}
}

// ForgotUserCode отправляет userCode на адрес из справочника. Токен не выпускается.
func (s *PasswordService) ForgotUserCode(ctx context.Context, email string) (err error) {
	defer func() { s.observer.ObservePasswordFlow(FlowForgotUserCode, err) }()

	identity, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	if err := s.mailer.SendUserCode(ctx, identity.Email, identity.UserCode); err != nil {
		return err
	}
	s.logger.Info("User code reminder dispatched", logger.String("user_id", identity.ID), logger.CtxField(ctx))
	return nil
}

// ForgotPassword выпускает одноразовый токен и отправляет ссылку для сброса пароля
func (s *PasswordService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { s.observer.ObservePasswordFlow(FlowForgotPassword, err) }()

	identity, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	cred, err := s.credentials.FindByUserID(ctx, identity.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeError("load credential", err)
	}
	if !cred.IsActive() {
		return ErrIdentityNotFound
	}

	value, tokenHash, err := s.tokenHasher.Generate()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal, "failed to generate reset token")
	}
	now := s.now().UTC()
	token := &domain.ResetToken{
		TokenHash: tokenHash,
		OwnerID:   cred.UserID,
		Purpose:   domain.PurposePassword,
		ExpiresAt: now.Add(s.config.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.resetTokens.Create(ctx, token); err != nil {
		return storeError("store reset token", err)
	}

	link, err := s.resetLink(value)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, identity.Email, link, token.ExpiresAt); err != nil {
		return err
	}
	s.logger.Info("Password reset link dispatched",
		logger.String("user_id", cred.UserID),
		logger.Time("expires_at", token.ExpiresAt),
		logger.CtxField(ctx))
	return nil
}

func (s *PasswordService) lookup(ctx context.Context, email string) (*domain.Identity, error) {
	identity, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return identity, nil
}

func (s *PasswordService) resetLink(value string) (string, error) {
	u, err := url.Parse(s.config.ResetURL)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInternal, "invalid reset url")
	}
	q := u.Query()
	q.Set("token", value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResetPassword гасит токен и меняет пароль владельца в одной транзакции.
// После фиксации все refresh токены владельца отзываются.
func (s *PasswordService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.observer.ObservePasswordFlow(FlowResetPassword, err) }()

	if token == "" {
		return ErrInvalidResetToken
	}
	tokenHash := s.tokenHasher.Hash(token)

	// предварительная проверка дает точную ошибку до хеширования пароля;
	// гарантию однократности дает только Consume внутри транзакции
	issued, err := s.resetTokens.FindByHash(ctx, tokenHash)
	if err != nil {
		return resetTokenError(err)
	}
	if issued.Purpose != domain.PurposePassword {
		return ErrInvalidResetToken
	}
	switch issued.State(s.now()) {
	case domain.ResetTokenConsumed:
		return ErrResetTokenConsumed
	case domain.ResetTokenExpired:
		return ErrExpiredResetToken
	}

	cred, err := s.credentials.FindByUserID(ctx, issued.OwnerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeError("load credential", err)
	}
	if !cred.IsActive() {
		return ErrInvalidResetToken
	}
	if s.hasher.Check(newPassword, cred.PasswordHash) {
		return ErrSamePassword
	}
	if err := password.Validate(newPassword); err != nil {
		return err
	}
	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal, "failed to hash password")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		consumed, err := s.resetTokens.Consume(ctx, tokenHash, s.now())
		if err != nil {
			return resetTokenError(err)
		}
		return s.updatePasswordHash(ctx, consumed.OwnerID, newHash, func(rec *domain.CredentialRecord) error {
			if !rec.IsActive() {
				return ErrInvalidResetToken
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.revokeSessions(ctx, issued.OwnerID)
	s.logger.Info("Password reset completed", logger.String("user_id", issued.OwnerID), logger.CtxField(ctx))
	return nil
}

func resetTokenError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrInvalidResetToken
	case errors.Is(err, repository.ErrTokenConsumed):
		return ErrResetTokenConsumed
	case errors.Is(err, repository.ErrTokenExpired):
		return ErrExpiredResetToken
	default:
		return storeError("consume reset token", err)
	}
}

// ChangePassword меняет пароль аутентифицированного пользователя и отзывает его refresh токены
func (s *PasswordService) ChangePassword(ctx context.Context, principal authfilter.Principal, oldPassword, newPassword, confirm string) (err error) {
	defer func() { s.observer.ObservePasswordFlow(FlowChangePassword, err) }()

	cred, err := s.credentials.FindByUserCode(ctx, principal.UserCode)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeError("load credential", err)
	}
	if !cred.IsActive() || !s.hasher.Check(oldPassword, cred.PasswordHash) {
		return ErrBadCredentials
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if newPassword == oldPassword {
		return ErrSamePassword
	}
	if err := password.Validate(newPassword); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal, "failed to hash password")
	}
	err = s.updatePasswordHash(ctx, cred.UserID, newHash, func(rec *domain.CredentialRecord) error {
		// хеш мог смениться конкурентно: старый пароль должен подходить к актуальной записи
		if !rec.IsActive() || !s.hasher.Check(oldPassword, rec.PasswordHash) {
			return ErrBadCredentials
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.revokeSessions(ctx, cred.UserID)
	s.logger.Info("Password changed", logger.String("user_code", cred.UserCode), logger.CtxField(ctx))
	return nil
}

// updatePasswordHash записывает новый хеш с проверкой версии. При конкурентной записи
// перечитывает запись, повторяет проверку check и пробует снова.
func (s *PasswordService) updatePasswordHash(ctx context.Context, userID, newHash string, check func(*domain.CredentialRecord) error) error {
	for attempt := 0; attempt < saveAttempts; attempt++ {
		rec, err := s.credentials.FindByUserID(ctx, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return storeError("load credential", err)
		}
		if err := check(rec); err != nil {
			return err
		}

		expected := rec.Version
		rec.PasswordHash = newHash
		rec.Version++
		rec.UpdatedAt = s.now().UTC()

		err = s.credentials.Save(ctx, rec, expected)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return storeError("save credential", err)
		}
		s.logger.Debug("Credential changed concurrently, reloading",
			logger.String("user_id", userID),
			logger.Int("attempt", attempt+1))
	}
	return ErrConcurrentUpdate.WithDetails(fmt.Sprintf("gave up after %d attempts", saveAttempts))
}

// revokeSessions ошибка отзыва не отменяет смену пароля: токены истекут сами
func (s *PasswordService) revokeSessions(ctx context.Context, ownerID string) {
	count, err := s.refreshTokens.RevokeAllForOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error("Failed to revoke refresh tokens",
			logger.String("user_id", ownerID),
			logger.Error(err))
		return
	}
	s.logger.Debug("Refresh tokens revoked", logger.String("user_id", ownerID), logger.Int("count", count))
}
