package repository

import (
	"context"
	"errors"
	"time"

	"RetailBackOffice/services/auth-service/internal/domain"
)

var (
	// ErrNotFound запись отсутствует
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict запись была изменена конкурентно (check-and-set не прошел)
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists запись с таким ключом уже существует
	ErrAlreadyExists = errors.New("already exists")
	// ErrTokenConsumed токен восстановления уже погашен
	ErrTokenConsumed = errors.New("reset token already consumed")
	// ErrTokenExpired срок действия токена восстановления истек
	ErrTokenExpired = errors.New("reset token expired")
)

// CredentialRepository хранилище проекции учетных данных
type CredentialRepository interface {
	FindByUserID(ctx context.Context, userID string) (*domain.CredentialRecord, error)
	FindByUserCode(ctx context.Context, userCode string) (*domain.CredentialRecord, error)
	// Insert создает запись, если ее нет. Возвращает false, если запись уже существовала.
	Insert(ctx context.Context, record *domain.CredentialRecord) (bool, error)
	// Save сохраняет запись при условии, что хранимая версия равна expectedVersion.
	// Иначе возвращает ErrVersionConflict.
	Save(ctx context.Context, record *domain.CredentialRecord, expectedVersion int64) error
}

// RefreshTokenRepository хранилище refresh токенов
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	FindByID(ctx context.Context, tokenID string) (*domain.RefreshToken, error)
	// Rotate атомарно отзывает старый токен (если он еще не отозван) и сохраняет новый.
	// Возвращает ErrVersionConflict, если старый токен уже был отозван.
	Rotate(ctx context.Context, oldTokenID string, next *domain.RefreshToken) error
	Revoke(ctx context.Context, tokenID string) error
	RevokeAllForOwner(ctx context.Context, ownerID string) (int, error)
}

// ResetTokenRepository хранилище одноразовых токенов восстановления
type ResetTokenRepository interface {
	Create(ctx context.Context, token *domain.ResetToken) error
	FindByHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error)
	// Consume атомарно гасит токен: успешно только если токен не погашен и не истек на момент now.
	// Возвращает ErrNotFound, ErrTokenConsumed или ErrTokenExpired.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error)
}

// Transactor выполняет функцию в транзакции. Репозитории, вызванные с контекстом fn,
// участвуют в той же транзакции.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
