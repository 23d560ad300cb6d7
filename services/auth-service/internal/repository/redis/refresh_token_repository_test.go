package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/repository"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // база 1, чтобы не затирать рабочие данные
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping Redis tests because Redis is not available at localhost:6379: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newToken(ownerID string) *domain.RefreshToken {
	now := time.Now().UTC()
	return &domain.RefreshToken{
		TokenID:   uuid.NewString(),
		OwnerID:   ownerID,
		UserCode:  "U1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestRefreshTokenRepository_CreateAndFind(t *testing.T) {
	repo := NewRefreshTokenRepository(setupTestRedis(t))
	ctx := context.Background()

	token := newToken("owner-1")
	require.NoError(t, repo.Create(ctx, token))

	got, err := repo.FindByID(ctx, token.TokenID)
	require.NoError(t, err)
	assert.Equal(t, token.OwnerID, got.OwnerID)
	assert.False(t, got.Revoked)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRefreshTokenRepository_RotateOnce(t *testing.T) {
	repo := NewRefreshTokenRepository(setupTestRedis(t))
	ctx := context.Background()

	old := newToken("owner-1")
	require.NoError(t, repo.Create(ctx, old))

	next := newToken("owner-1")
	require.NoError(t, repo.Rotate(ctx, old.TokenID, next))

	got, err := repo.FindByID(ctx, old.TokenID)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, next.TokenID, got.ReplacedBy)

	assert.ErrorIs(t, repo.Rotate(ctx, old.TokenID, newToken("owner-1")), repository.ErrVersionConflict)
}

func TestRefreshTokenRepository_RevokeAllForOwner(t *testing.T) {
	repo := NewRefreshTokenRepository(setupTestRedis(t))
	ctx := context.Background()

	a, b, other := newToken("owner-1"), newToken("owner-1"), newToken("owner-2")
	for _, token := range []*domain.RefreshToken{a, b, other} {
		require.NoError(t, repo.Create(ctx, token))
	}
	require.NoError(t, repo.Revoke(ctx, a.TokenID))

	count, err := repo.RevokeAllForOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.FindByID(ctx, b.TokenID)
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	got, err = repo.FindByID(ctx, other.TokenID)
	require.NoError(t, err)
	assert.False(t, got.Revoked)
}
