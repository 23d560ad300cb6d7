package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// tokenBytes 256 бит случайности на одноразовый токен
const tokenBytes = 32

// TokenHasher генерирует одноразовые токены и хеширует их с использованием SHA256.
// В хранилище попадает только хеш, значение токена уходит пользователю.
type TokenHasher struct{}

// NewTokenHasher создает новый экземпляр TokenHasher
func NewTokenHasher() *TokenHasher {
	return &TokenHasher{}
}

// Generate создает новый токен и возвращает его значение и хеш
func (h *TokenHasher) Generate() (value, hash string, err error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	value = base64.RawURLEncoding.EncodeToString(raw)
	return value, h.Hash(value), nil
}

// Hash хеширует токен с использованием SHA256
func (h *TokenHasher) Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
