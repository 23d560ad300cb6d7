package projection

import (
	"errors"
	"time"

	"RetailBackOffice/services/auth-service/internal/domain"
)

// ErrNotProjected событие относится к записи, которой еще нет: Created не применен.
// Ошибка временная, сообщение повторяется до применения Created.
var ErrNotProjected = errors.New("credential record is not projected yet")

// Apply применяет событие к записи и возвращает новую запись.
// rec == nil означает, что записи нет. Исходная запись не изменяется.
// changed == false означает дубликат или устаревшее событие: сохранять нечего.
//
// Каждое событие меняет только свои аспекты записи и только если его sequence больше
// последнего примененного для этого аспекта, поэтому результат не зависит от порядка доставки.
func Apply(rec *domain.CredentialRecord, event *domain.CredentialEvent, now time.Time) (*domain.CredentialRecord, bool, error) {
	seq := event.Sequence

	if event.Type == domain.EventCreated {
		if rec != nil {
			return rec, false, nil
		}
		p := event.Created
		return &domain.CredentialRecord{
			UserID:        event.UserID,
			UserCode:      p.UserCode,
			Email:         p.Email,
			PasswordHash:  p.PasswordHash,
			Roles:         domain.NormalizeRoles(p.Roles),
			IsDeleted:     p.IsDeleted,
			Version:       1,
			ProfileSeq:    seq,
			StatusSeq:     seq,
			CredentialSeq: seq,
			UpdatedAt:     now,
		}, true, nil
	}

	if rec == nil {
		return nil, false, ErrNotProjected
	}

	next := rec.Clone()
	changed := false

	switch event.Type {
	case domain.EventUpdated:
		if seq > next.ProfileSeq {
			p := event.Updated
			// запись без ролей остается в проекции, но IsActive запрещает по ней вход
			next.UserCode = p.UserCode
			next.Email = p.Email
			next.Roles = domain.NormalizeRoles(p.Roles)
			next.ProfileSeq = seq
			changed = true
		}
	case domain.EventSafeDeleted:
		if seq > next.StatusSeq {
			next.IsDeleted = true
			next.StatusSeq = seq
			changed = true
		}
	case domain.EventReactivated:
		p := event.Reactivated
		if seq > next.StatusSeq {
			next.IsDeleted = false
			next.StatusSeq = seq
			changed = true
		}
		if p.PasswordHash != "" && seq > next.CredentialSeq {
			next.PasswordHash = p.PasswordHash
			next.CredentialSeq = seq
			changed = true
		}
	}

	if !changed {
		return rec, false, nil
	}
	next.Version = rec.Version + 1
	next.UpdatedAt = now
	return next, true, nil
}
