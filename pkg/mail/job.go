// Package mail описывает задание на отправку письма, которое auth-service публикует
// в очередь mail.outbound, а notification-service обрабатывает.
package mail

import (
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/segmentio/ksuid"
)

// DefaultQueue очередь исходящих писем
const DefaultQueue = "mail.outbound"

// Kind тип письма, определяет шаблон
type Kind string

const (
	KindUserCode      Kind = "user_code"
	KindPasswordReset Kind = "password_reset"
)

// Ключи Data
const (
	DataUserCode  = "user_code"
	DataLink      = "link"
	DataExpiresAt = "expires_at"
)

// Job задание на отправку письма. ID используется как MessageId сообщения.
type Job struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	To        string            `json:"to"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewJob создает задание с сортируемым по времени идентификатором
func NewJob(kind Kind, to string, data map[string]string) Job {
	return Job{
		ID:        ksuid.New().String(),
		Kind:      kind,
		To:        to,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// UserCodeJob письмо с напоминанием кода пользователя
func UserCodeJob(to, userCode string) Job {
	return NewJob(KindUserCode, to, map[string]string{DataUserCode: userCode})
}

// PasswordResetJob письмо со ссылкой для сброса пароля
func PasswordResetJob(to, link string, expiresAt time.Time) Job {
	return NewJob(KindPasswordReset, to, map[string]string{
		DataLink:      link,
		DataExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

// requiredData ключи, без которых шаблон не отрисовать
var requiredData = map[Kind][]string{
	KindUserCode:      {DataUserCode},
	KindPasswordReset: {DataLink, DataExpiresAt},
}

// Validate проверяет задание
func (j Job) Validate() error {
	return validation.ValidateStruct(&j,
		validation.Field(&j.ID, validation.Required, validation.By(validKSUID)),
		validation.Field(&j.Kind, validation.Required, validation.In(KindUserCode, KindPasswordReset)),
		validation.Field(&j.To, validation.Required, is.Email),
		validation.Field(&j.Data, validation.By(j.hasRequiredData)),
	)
}

func validKSUID(value interface{}) error {
	id, _ := value.(string)
	if _, err := ksuid.Parse(id); err != nil {
		return fmt.Errorf("must be a valid ksuid")
	}
	return nil
}

func (j Job) hasRequiredData(interface{}) error {
	for _, key := range requiredData[j.Kind] {
		if j.Data[key] == "" {
			return fmt.Errorf("missing %q", key)
		}
	}
	return nil
}

// Decode разбирает и проверяет задание из тела сообщения
func Decode(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, fmt.Errorf("invalid mail job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return Job{}, fmt.Errorf("invalid mail job: %w", err)
	}
	return job, nil
}
