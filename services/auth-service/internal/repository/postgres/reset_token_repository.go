package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"RetailBackOffice/pkg/database"
	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/repository"
)

// ResetTokenRepository хранилище одноразовых токенов восстановления
type ResetTokenRepository struct {
	BaseRepository
}

// NewResetTokenRepository создает новый экземпляр ResetTokenRepository
func NewResetTokenRepository(db connProvider) *ResetTokenRepository {
	return &ResetTokenRepository{BaseRepository: NewBaseRepository(db)}
}

var _ repository.ResetTokenRepository = (*ResetTokenRepository)(nil)

// Create сохраняет хеш нового токена
func (r *ResetTokenRepository) Create(ctx context.Context, token *domain.ResetToken) error {
	query := `INSERT INTO reset_tokens (token_hash, owner_id, purpose, expires_at, consumed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.conn(ctx).Exec(ctx, query,
		token.TokenHash,
		token.OwnerID,
		string(token.Purpose),
		token.ExpiresAt,
		token.ConsumedAt,
		token.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

// FindByHash возвращает токен по хешу
func (r *ResetTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	query := `SELECT token_hash, owner_id, purpose, expires_at, consumed_at, created_at
		FROM reset_tokens WHERE token_hash = $1`

	token, err := scanResetToken(r.conn(ctx).QueryRow(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	return token, nil
}

// Consume гасит токен одним UPDATE: проверка и отметка выполняются атомарно,
// поэтому два параллельных запроса не могут погасить токен дважды.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	query := `UPDATE reset_tokens SET consumed_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > $2
		RETURNING token_hash, owner_id, purpose, expires_at, consumed_at, created_at`

	token, err := scanResetToken(r.conn(ctx).QueryRow(ctx, query, tokenHash, now))
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}

	// ни одна строка не обновлена: выясняем почему
	existing, err := r.FindByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if existing.State(now) == domain.ResetTokenConsumed {
		return nil, repository.ErrTokenConsumed
	}
	return nil, repository.ErrTokenExpired
}

func scanResetToken(row pgx.Row) (*domain.ResetToken, error) {
	var (
		token   domain.ResetToken
		purpose string
	)
	if err := row.Scan(
		&token.TokenHash,
		&token.OwnerID,
		&purpose,
		&token.ExpiresAt,
		&token.ConsumedAt,
		&token.CreatedAt,
	); err != nil {
		return nil, err
	}
	token.Purpose = domain.ResetPurpose(purpose)
	return &token, nil
}
