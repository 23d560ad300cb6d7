package service

import (
	"errors"
	"fmt"

	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/services/auth-service/internal/repository"
)

// Ошибки сервисов аутентификации. Reason позволяет клиенту отличить повторяемые ошибки от окончательных.
var (
	ErrBadCredentials      = apperrors.New(apperrors.ErrUnauthenticated, "invalid user code or password").WithReason("BAD_CREDENTIALS")
	ErrExpiredRefreshToken = apperrors.New(apperrors.ErrUnauthenticated, "refresh token expired").WithReason("EXPIRED_REFRESH_TOKEN")
	ErrInvalidRefreshToken = apperrors.New(apperrors.ErrUnauthenticated, "refresh token is invalid").WithReason("INVALID_REFRESH_TOKEN")

	ErrInvalidResetToken  = apperrors.New(apperrors.ErrNotFound, "reset token is unknown").WithReason("INVALID_RESET_TOKEN")
	ErrResetTokenConsumed = apperrors.New(apperrors.ErrConflict, "reset token already used").WithReason("RESET_TOKEN_CONSUMED")
	ErrExpiredResetToken  = apperrors.New(apperrors.ErrValidation, "reset token expired").WithReason("EXPIRED_RESET_TOKEN")
	ErrSamePassword       = apperrors.New(apperrors.ErrConflict, "new password equals the current one").WithReason("SAME_PASSWORD")
	ErrPasswordMismatch   = apperrors.New(apperrors.ErrValidation, "password confirmation does not match").WithReason("PASSWORD_MISMATCH")
	ErrIdentityNotFound   = apperrors.New(apperrors.ErrNotFound, "no account for this e-mail").WithReason("IDENTITY_NOT_FOUND")
	ErrConcurrentUpdate   = apperrors.New(apperrors.ErrConflict, "credential was modified concurrently, retry").WithReason("CONCURRENT_UPDATE")
)

// storeError переводит ошибку хранилища в таксономию: ошибки из таксономии проходят как есть,
// остальные считаются недоступностью инфраструктуры.
func storeError(op string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		return ErrConcurrentUpdate.WithCause(err)
	}
	return apperrors.Wrap(err, apperrors.ErrUnavailable, fmt.Sprintf("failed to %s", op))
}
