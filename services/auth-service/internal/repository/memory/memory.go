// Package memory in-memory реализации репозиториев с теми же гарантиями
// check-and-set, что и PostgreSQL/Redis. Используются в тестах сервисов и консьюмера.
package memory

import (
	"context"
	"sync"
	"time"

	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/repository"
)

// CredentialRepository хранилище проекции в памяти
type CredentialRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.CredentialRecord
	// BeforeSave вызывается перед проверкой версии в Save (для тестов гонок)
	BeforeSave func(rec *domain.CredentialRecord)
}

// NewCredentialRepository создает пустое хранилище
func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{records: make(map[string]*domain.CredentialRecord)}
}

var _ repository.CredentialRepository = (*CredentialRepository)(nil)

// FindByUserID возвращает копию записи
func (r *CredentialRepository) FindByUserID(_ context.Context, userID string) (*domain.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec.Clone(), nil
}

// FindByUserCode возвращает копию записи по коду пользователя
func (r *CredentialRepository) FindByUserCode(_ context.Context, userCode string) (*domain.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.UserCode == userCode {
			return rec.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

// Insert создает запись, если ее нет
func (r *CredentialRepository) Insert(_ context.Context, rec *domain.CredentialRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.UserID]; ok {
		return false, nil
	}
	for _, other := range r.records {
		if other.UserCode == rec.UserCode {
			return false, repository.ErrAlreadyExists
		}
	}
	r.records[rec.UserID] = rec.Clone()
	return true, nil
}

// Save сохраняет запись при совпадении версии
func (r *CredentialRepository) Save(_ context.Context, rec *domain.CredentialRecord, expectedVersion int64) error {
	if r.BeforeSave != nil {
		r.BeforeSave(rec)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.records[rec.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	for id, other := range r.records {
		if id != rec.UserID && other.UserCode == rec.UserCode {
			return repository.ErrAlreadyExists
		}
	}
	r.records[rec.UserID] = rec.Clone()
	return nil
}

// Put кладет запись без проверок (подготовка данных в тестах)
func (r *CredentialRepository) Put(rec *domain.CredentialRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.UserID] = rec.Clone()
}

// RefreshTokenRepository хранилище refresh токенов в памяти
type RefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

// NewRefreshTokenRepository создает пустое хранилище
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

var _ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

// Create сохраняет токен
func (r *RefreshTokenRepository) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.tokens[token.TokenID] = &cp
	return nil
}

// FindByID возвращает копию токена
func (r *RefreshTokenRepository) FindByID(_ context.Context, tokenID string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *token
	return &cp, nil
}

// Rotate отзывает старый токен и сохраняет новый
func (r *RefreshTokenRepository) Rotate(_ context.Context, oldTokenID string, next *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.tokens[oldTokenID]
	if !ok {
		return repository.ErrNotFound
	}
	if old.Revoked {
		return repository.ErrVersionConflict
	}
	old.Revoked = true
	old.ReplacedBy = next.TokenID
	cp := *next
	r.tokens[next.TokenID] = &cp
	return nil
}

// Revoke помечает токен отозванным
func (r *RefreshTokenRepository) Revoke(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenID]
	if !ok {
		return repository.ErrNotFound
	}
	token.Revoked = true
	return nil
}

// RevokeAllForOwner отзывает все токены владельца
func (r *RefreshTokenRepository) RevokeAllForOwner(_ context.Context, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, token := range r.tokens {
		if token.OwnerID == ownerID && !token.Revoked {
			token.Revoked = true
			count++
		}
	}
	return count, nil
}

// ResetTokenRepository хранилище токенов восстановления в памяти
type ResetTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.ResetToken
}

// NewResetTokenRepository создает пустое хранилище
func NewResetTokenRepository() *ResetTokenRepository {
	return &ResetTokenRepository{tokens: make(map[string]*domain.ResetToken)}
}

var _ repository.ResetTokenRepository = (*ResetTokenRepository)(nil)

// Create сохраняет токен
func (r *ResetTokenRepository) Create(_ context.Context, token *domain.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token.TokenHash]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *token
	r.tokens[token.TokenHash] = &cp
	return nil
}

// FindByHash возвращает копию токена
func (r *ResetTokenRepository) FindByHash(_ context.Context, tokenHash string) (*domain.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *token
	return &cp, nil
}

// Consume атомарно гасит токен
func (r *ResetTokenRepository) Consume(_ context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	switch token.State(now) {
	case domain.ResetTokenConsumed:
		return nil, repository.ErrTokenConsumed
	case domain.ResetTokenExpired:
		return nil, repository.ErrTokenExpired
	}
	consumedAt := now
	token.ConsumedAt = &consumedAt
	cp := *token
	return &cp, nil
}

// Transactor выполняет функции последовательно. Отката нет: тесты,
// которым нужен откат, проверяют его на уровне PostgreSQL.
type Transactor struct {
	mu sync.Mutex
}

// RunInTx выполняет fn под общим мьютексом
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
