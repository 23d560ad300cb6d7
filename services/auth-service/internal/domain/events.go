package domain

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "RetailBackOffice/pkg/errors"
)

// EventType тип события жизненного цикла учетных данных
type EventType string

const (
	EventCreated     EventType = "Created"
	EventUpdated     EventType = "Updated"
	EventSafeDeleted EventType = "SafeDeleted"
	EventReactivated EventType = "Reactivated"
)

// ErrPoisonEvent шаблон ошибки для событий, которые нельзя обработать
var ErrPoisonEvent = apperrors.New(apperrors.ErrPoisonEvent, "poison credential event")

// CredentialEvent конверт события из шины. Доставка at-least-once, эффект exactly-once
// за счет сравнения sequence.
type CredentialEvent struct {
	EventID    string          `json:"eventId"`
	Type       EventType       `json:"type"`
	UserID     string          `json:"userId"`
	Sequence   int64           `json:"sequence"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`

	Created     *CreatedPayload     `json:"-"`
	Updated     *UpdatedPayload     `json:"-"`
	SafeDeleted *SafeDeletedPayload `json:"-"`
	Reactivated *ReactivatedPayload `json:"-"`
}

// CreatedPayload данные события Created
type CreatedPayload struct {
	ID           string   `json:"id"`
	UserCode     string   `json:"userCode"`
	PasswordHash string   `json:"passwordHash"`
	Roles        []string `json:"roles"`
	IsDeleted    bool     `json:"isDeleted"`
	Email        string   `json:"email,omitempty"`
}

// UpdatedPayload данные события Updated
type UpdatedPayload struct {
	ID       string   `json:"id"`
	UserCode string   `json:"userCode"`
	Roles    []string `json:"roles"`
	Email    string   `json:"email"`
}

// SafeDeletedPayload данные события SafeDeleted
type SafeDeletedPayload struct {
	ID        string `json:"id"`
	IsDeleted bool   `json:"isDeleted"`
}

// ReactivatedPayload данные события Reactivated. PasswordHash необязателен.
type ReactivatedPayload struct {
	ID           string `json:"id"`
	PasswordHash string `json:"passwordHash,omitempty"`
	IsDeleted    bool   `json:"isDeleted"`
}

// DecodeCredentialEvent разбирает сообщение из шины. Любая ошибка разбора возвращается
// как ErrPoisonEvent: такое событие логируется и пропускается.
func DecodeCredentialEvent(body []byte) (*CredentialEvent, error) {
	var event CredentialEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ErrPoisonEvent.WithDetails("undecodable envelope").WithCause(err)
	}
	if event.UserID == "" {
		return nil, ErrPoisonEvent.WithDetails("missing userId")
	}
	if event.Sequence <= 0 {
		return nil, ErrPoisonEvent.WithDetails("missing or non-positive sequence")
	}
	if len(event.Payload) == 0 {
		return nil, ErrPoisonEvent.WithDetails("missing payload")
	}

	var payloadID string
	switch event.Type {
	case EventCreated:
		event.Created = &CreatedPayload{}
		if err := json.Unmarshal(event.Payload, event.Created); err != nil {
			return nil, ErrPoisonEvent.WithDetails("invalid Created payload").WithCause(err)
		}
		if event.Created.UserCode == "" {
			return nil, ErrPoisonEvent.WithDetails("Created without userCode")
		}
		if !event.Created.IsDeleted && len(NormalizeRoles(event.Created.Roles)) == 0 {
			return nil, ErrPoisonEvent.WithDetails("active Created without roles")
		}
		payloadID = event.Created.ID
	case EventUpdated:
		event.Updated = &UpdatedPayload{}
		if err := json.Unmarshal(event.Payload, event.Updated); err != nil {
			return nil, ErrPoisonEvent.WithDetails("invalid Updated payload").WithCause(err)
		}
		if event.Updated.UserCode == "" {
			return nil, ErrPoisonEvent.WithDetails("Updated without userCode")
		}
		payloadID = event.Updated.ID
	case EventSafeDeleted:
		event.SafeDeleted = &SafeDeletedPayload{}
		if err := json.Unmarshal(event.Payload, event.SafeDeleted); err != nil {
			return nil, ErrPoisonEvent.WithDetails("invalid SafeDeleted payload").WithCause(err)
		}
		payloadID = event.SafeDeleted.ID
	case EventReactivated:
		event.Reactivated = &ReactivatedPayload{}
		if err := json.Unmarshal(event.Payload, event.Reactivated); err != nil {
			return nil, ErrPoisonEvent.WithDetails("invalid Reactivated payload").WithCause(err)
		}
		payloadID = event.Reactivated.ID
	default:
		return nil, ErrPoisonEvent.WithDetails(fmt.Sprintf("unknown event type %q", event.Type))
	}

	if payloadID != "" && payloadID != event.UserID {
		return nil, ErrPoisonEvent.WithDetails("payload id does not match userId")
	}
	return &event, nil
}
