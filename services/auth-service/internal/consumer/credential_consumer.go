package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rabbitmq/amqp091-go"

	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/projection"
)

// Значения метки outcome для событий
const (
	outcomePoison = "poison"
	outcomeRetry  = "retry"
	outcomeFailed = "failed"
)

// eventProjector применяет событие к проекции
type eventProjector interface {
	Project(ctx context.Context, event *domain.CredentialEvent) (projection.Outcome, error)
}

// eventObserver учитывает обработанные события (метрики)
type eventObserver interface {
	ObserveCredentialEvent(eventType, outcome string)
}

// CredentialEventHandler обработчик сообщений очереди credential-events.
// Ошибочные (poison) события логируются, учитываются и подтверждаются, цикл консьюмера
// на них не останавливается. Временные ошибки возвращаются консьюмеру для повтора.
type CredentialEventHandler struct {
	projector eventProjector
	observer  eventObserver
	logger    logger.Logger
}

// NewCredentialEventHandler создает новый обработчик
func NewCredentialEventHandler(projector eventProjector, observer eventObserver, log logger.Logger) *CredentialEventHandler {
	return &CredentialEventHandler{
		projector: projector,
		observer:  observer,
		logger:    log,
	}
}

// Handle обрабатывает одно сообщение (rabbitmq.MessageHandler)
func (h *CredentialEventHandler) Handle(ctx context.Context, msg amqp091.Delivery) error {
	event, err := domain.DecodeCredentialEvent(msg.Body)
	if err != nil {
		h.skipPoison(msg, "", err)
		return nil
	}

	log := h.logger.With(
		logger.String("event_id", event.EventID),
		logger.String("event_type", string(event.Type)),
		logger.String("user_id", event.UserID),
		logger.Int64("sequence", event.Sequence))

	outcome, err := h.projector.Project(ctx, event)
	switch {
	case err == nil:
		h.observer.ObserveCredentialEvent(string(event.Type), string(outcome))
		log.Info("Credential event processed", logger.String("outcome", string(outcome)))
		return nil
	case apperrors.KindOf(err) == apperrors.ErrPoisonEvent:
		h.skipPoison(msg, string(event.Type), err)
		return nil
	case errors.Is(err, projection.ErrNotProjected):
		h.observer.ObserveCredentialEvent(string(event.Type), outcomeRetry)
		log.Warn("Credential record not projected yet, event will be retried")
		return err
	default:
		h.observer.ObserveCredentialEvent(string(event.Type), outcomeFailed)
		log.Error("Failed to project credential event", logger.Error(err))
		return err
	}
}

func (h *CredentialEventHandler) skipPoison(msg amqp091.Delivery, eventType string, err error) {
	h.observer.ObserveCredentialEvent(eventType, outcomePoison)
	h.logger.Error("Skipping poison credential event",
		logger.String("message_id", msg.MessageId),
		logger.String("routing_key", msg.RoutingKey),
		logger.Int("body_size", len(msg.Body)),
		logger.Error(err))
}

// PartitionKey ключ партиционирования: события одного пользователя обрабатывает один воркер
func PartitionKey(msg amqp091.Delivery) string {
	var envelope struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(msg.Body, &envelope); err != nil || envelope.UserID == "" {
		// poison событие: порядок не важен
		return msg.MessageId
	}
	return envelope.UserID
}
