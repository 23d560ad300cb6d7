package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"RetailBackOffice/pkg/database"
	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/repository"
)

const credentialColumns = `user_id, user_code, email, password_hash, roles, is_deleted,
	version, profile_seq, status_seq, credential_seq, updated_at`

// CredentialRepository реализация хранилища проекции учетных данных для PostgreSQL
type CredentialRepository struct {
	BaseRepository
}

// NewCredentialRepository создает новый экземпляр CredentialRepository
func NewCredentialRepository(db connProvider) *CredentialRepository {
	return &CredentialRepository{BaseRepository: NewBaseRepository(db)}
}

var _ repository.CredentialRepository = (*CredentialRepository)(nil)

// FindByUserID возвращает запись по идентификатору пользователя
func (r *CredentialRepository) FindByUserID(ctx context.Context, userID string) (*domain.CredentialRecord, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_id = $1`
	return r.findOne(ctx, query, userID)
}

// FindByUserCode возвращает запись по коду пользователя
func (r *CredentialRepository) FindByUserCode(ctx context.Context, userCode string) (*domain.CredentialRecord, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_code = $1`
	return r.findOne(ctx, query, userCode)
}

func (r *CredentialRepository) findOne(ctx context.Context, query string, arg string) (*domain.CredentialRecord, error) {
	var (
		rec   domain.CredentialRecord
		roles []string
	)
	err := r.conn(ctx).QueryRow(ctx, query, arg).Scan(
		&rec.UserID,
		&rec.UserCode,
		&rec.Email,
		&rec.PasswordHash,
		&roles,
		&rec.IsDeleted,
		&rec.Version,
		&rec.ProfileSeq,
		&rec.StatusSeq,
		&rec.CredentialSeq,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	rec.Roles = domain.NormalizeRoles(roles)
	return &rec, nil
}

// Insert создает запись, если записи с таким user_id еще нет
func (r *CredentialRepository) Insert(ctx context.Context, rec *domain.CredentialRecord) (bool, error) {
	query := `INSERT INTO credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO NOTHING`

	tag, err := r.conn(ctx).Exec(ctx, query,
		rec.UserID,
		rec.UserCode,
		rec.Email,
		rec.PasswordHash,
		rec.RoleStrings(),
		rec.IsDeleted,
		rec.Version,
		rec.ProfileSeq,
		rec.StatusSeq,
		rec.CredentialSeq,
		rec.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, fmt.Errorf("user code %q is taken: %w", rec.UserCode, repository.ErrAlreadyExists)
		}
		return false, fmt.Errorf("failed to insert credential: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Save сохраняет запись при совпадении версии (check-and-set)
func (r *CredentialRepository) Save(ctx context.Context, rec *domain.CredentialRecord, expectedVersion int64) error {
	query := `UPDATE credentials SET
		user_code = $2,
		email = $3,
		password_hash = $4,
		roles = $5,
		is_deleted = $6,
		version = $7,
		profile_seq = $8,
		status_seq = $9,
		credential_seq = $10,
		updated_at = $11
	WHERE user_id = $1 AND version = $12`

	tag, err := r.conn(ctx).Exec(ctx, query,
		rec.UserID,
		rec.UserCode,
		rec.Email,
		rec.PasswordHash,
		rec.RoleStrings(),
		rec.IsDeleted,
		rec.Version,
		rec.ProfileSeq,
		rec.StatusSeq,
		rec.CredentialSeq,
		rec.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("user code %q is taken: %w", rec.UserCode, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}
