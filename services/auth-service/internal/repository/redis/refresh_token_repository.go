package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/repository"
)

// revokedGrace сколько хранится отозванная запись после истечения, чтобы распознать повторное использование
const revokedGrace = time.Minute

// RefreshTokenRepository реализация хранилища refresh токенов для Redis.
// Запись токена лежит под refresh:<id> с TTL до истечения, идентификаторы токенов
// владельца собраны в множестве refresh:owner:<ownerId> для массового отзыва.
type RefreshTokenRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRefreshTokenRepository создает новый экземпляр RefreshTokenRepository
func NewRefreshTokenRepository(client redis.UniversalClient) *RefreshTokenRepository {
	return &RefreshTokenRepository{client: client, now: time.Now}
}

var _ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

func tokenKey(tokenID string) string {
	return fmt.Sprintf("refresh:%s", tokenID)
}

func ownerKey(ownerID string) string {
	return fmt.Sprintf("refresh:owner:%s", ownerID)
}

func (r *RefreshTokenRepository) ttl(token *domain.RefreshToken) time.Duration {
	ttl := token.ExpiresAt.Sub(r.now()) + revokedGrace
	if ttl < revokedGrace {
		ttl = revokedGrace
	}
	return ttl
}

// Create сохраняет новый токен
func (r *RefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	ttl := r.ttl(token)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey(token.TokenID), data, ttl)
		pipe.SAdd(ctx, ownerKey(token.OwnerID), token.TokenID)
		pipe.Expire(ctx, ownerKey(token.OwnerID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// FindByID возвращает токен по идентификатору
func (r *RefreshTokenRepository) FindByID(ctx context.Context, tokenID string) (*domain.RefreshToken, error) {
	return r.get(ctx, r.client, tokenID)
}

// getter общий метод Get у клиента и *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RefreshTokenRepository) get(ctx context.Context, c getter, tokenID string) (*domain.RefreshToken, error) {
	data, err := c.Get(ctx, tokenKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var token domain.RefreshToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}
	return &token, nil
}

// Rotate отзывает старый токен и сохраняет новый в одной транзакции WATCH/MULTI.
// Если старый токен уже отозван или изменен конкурентно, возвращает ErrVersionConflict.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldTokenID string, next *domain.RefreshToken) error {
	nextData, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		old, err := r.get(ctx, tx, oldTokenID)
		if err != nil {
			return err
		}
		if old.Revoked {
			return repository.ErrVersionConflict
		}

		old.Revoked = true
		old.ReplacedBy = next.TokenID
		oldData, err := json.Marshal(old)
		if err != nil {
			return fmt.Errorf("failed to marshal refresh token: %w", err)
		}

		ttl := r.ttl(next)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, tokenKey(old.TokenID), oldData, redis.SetArgs{KeepTTL: true})
			pipe.Set(ctx, tokenKey(next.TokenID), nextData, ttl)
			pipe.SAdd(ctx, ownerKey(next.OwnerID), next.TokenID)
			pipe.Expire(ctx, ownerKey(next.OwnerID), ttl)
			return nil
		})
		return err
	}, tokenKey(oldTokenID))

	if errors.Is(err, redis.TxFailedErr) {
		return repository.ErrVersionConflict
	}
	if err != nil && !errors.Is(err, repository.ErrVersionConflict) && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return err
}

// Revoke помечает токен отозванным. Повторный отзыв не является ошибкой.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenID string) error {
	_, err := r.revoke(ctx, tokenID)
	return err
}

func (r *RefreshTokenRepository) revoke(ctx context.Context, tokenID string) (bool, error) {
	revoked := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		token, err := r.get(ctx, tx, tokenID)
		if err != nil {
			return err
		}
		if token.Revoked {
			return nil
		}
		token.Revoked = true
		data, err := json.Marshal(token)
		if err != nil {
			return fmt.Errorf("failed to marshal refresh token: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, tokenKey(tokenID), data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			revoked = true
		}
		return err
	}, tokenKey(tokenID))

	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return revoked, err
}

// RevokeAllForOwner отзывает все токены владельца и возвращает число отозванных
func (r *RefreshTokenRepository) RevokeAllForOwner(ctx context.Context, ownerID string) (int, error) {
	ids, err := r.client.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list owner refresh tokens: %w", err)
	}

	count := 0
	var stale []interface{}
	for _, id := range ids {
		revoked, err := r.revoke(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return count, err
		}
		if revoked {
			count++
		}
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, ownerKey(ownerID), stale...).Err(); err != nil {
			return count, fmt.Errorf("failed to prune owner refresh tokens: %w", err)
		}
	}
	return count, nil
}
