package password

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	apperrors "RetailBackOffice/pkg/errors"
)

// Ограничения политики паролей
const (
	MinLength = 8
	// MaxLength bcrypt учитывает только первые 72 байта
	MaxLength = 72
)

// ErrPolicy шаблон ошибки нарушения политики паролей
var ErrPolicy = apperrors.New(apperrors.ErrValidation, "password does not satisfy policy").WithReason("PASSWORD_POLICY")

// Hasher интерфейс для работы с паролями
type Hasher interface {
	Hash(password string) (string, error)
	Check(password, hash string) bool
}

// BcryptHasher реализация Hasher с использованием bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher создает новый BcryptHasher
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash хеширует пароль с использованием bcrypt
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Check проверяет, соответствует ли пароль хешу. Пустой или поврежденный хеш никогда не совпадает.
func (h *BcryptHasher) Check(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Validate проверяет пароль по политике: длина 8..72 байт, хотя бы одна заглавная,
// одна строчная буква и одна цифра, без пробельных символов.
func Validate(password string) error {
	if len(password) < MinLength {
		return ErrPolicy.WithDetails(fmt.Sprintf("password must be at least %d characters", MinLength))
	}
	if len(password) > MaxLength {
		return ErrPolicy.WithDetails(fmt.Sprintf("password must be at most %d bytes", MaxLength))
	}

	var hasDigit, hasUpper, hasLower bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return ErrPolicy.WithDetails("password must not contain whitespace")
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
	}

	switch {
	case !hasUpper:
		return ErrPolicy.WithDetails("password must contain an uppercase letter")
	case !hasLower:
		return ErrPolicy.WithDetails("password must contain a lowercase letter")
	case !hasDigit:
		return ErrPolicy.WithDetails("password must contain a digit")
	}
	return nil
}
