package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/repository"
)

// Outcome результат проецирования события
type Outcome string

const (
	// OutcomeApplied событие изменило запись
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped дубликат или устаревшее событие
	OutcomeSkipped Outcome = "skipped"
)

// defaultMaxAttempts попыток check-and-set при конкурентной записи
const defaultMaxAttempts = 5

// Projector применяет события к хранилищу проекции с оптимистичной блокировкой
type Projector struct {
	repo        repository.CredentialRepository
	logger      logger.Logger
	now         func() time.Time
	maxAttempts int
}

// NewProjector создает новый Projector
func NewProjector(repo repository.CredentialRepository, log logger.Logger) *Projector {
	return &Projector{
		repo:        repo,
		logger:      log,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}
}

// Project применяет событие. Если запись изменили параллельно (смена пароля,
// событие другого воркера), запись перечитывается и событие применяется заново.
func (p *Projector) Project(ctx context.Context, event *domain.CredentialEvent) (Outcome, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		current, err := p.repo.FindByUserID(ctx, event.UserID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		if errors.Is(err, repository.ErrNotFound) {
			current = nil
		}

		next, changed, err := Apply(current, event, p.now().UTC())
		if err != nil {
			return "", err
		}
		if !changed {
			return OutcomeSkipped, nil
		}

		if current == nil {
			inserted, err := p.repo.Insert(ctx, next)
			if err != nil {
				return "", err
			}
			if inserted {
				return OutcomeApplied, nil
			}
			// запись появилась между чтением и вставкой
			continue
		}

		err = p.repo.Save(ctx, next, current.Version)
		if err == nil {
			return OutcomeApplied, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return "", err
		}
		p.logger.Debug("Credential version conflict, re-applying event",
			logger.String("user_id", event.UserID),
			logger.Int64("sequence", event.Sequence),
			logger.Int("attempt", attempt))
	}
	return "", fmt.Errorf("credential %s: %w after %d attempts", event.UserID, repository.ErrVersionConflict, p.maxAttempts)
}
