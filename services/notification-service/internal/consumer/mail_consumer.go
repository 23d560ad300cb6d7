package consumer

import (
	"context"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/pkg/mail"
	"RetailBackOffice/pkg/metrics"
	"RetailBackOffice/pkg/rabbitmq"
	"RetailBackOffice/services/notification-service/internal/template"
)

// renderer отрисовывает письмо по заданию
type renderer interface {
	Render(job mail.Job) (template.Message, error)
}

// sender доставляет письмо
type sender interface {
	Send(ctx context.Context, to, messageID string, msg template.Message) error
}

// observer метрики и трассировка (реализуется metrics.Metrics)
type observer interface {
	ObserveMailJob(kind string, err error)
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
}

// MailHandler обработчик очереди mail.outbound
type MailHandler struct {
	renderer    renderer
	sender      sender
	isPermanent func(error) bool
	observer    observer
	logger      logger.Logger
}

// NewMailHandler создает обработчик. isPermanent отличает окончательный отказ доставки от временного.
func NewMailHandler(r renderer, s sender, isPermanent func(error) bool, o observer, log logger.Logger) *MailHandler {
	return &MailHandler{
		renderer:    r,
		sender:      s,
		isPermanent: isPermanent,
		observer:    o,
		logger:      log,
	}
}

// Handle обрабатывает одно задание (rabbitmq.MessageHandler).
// Некорректное задание и окончательный отказ SMTP отправляются в DLQ,
// временные ошибки возвращаются для повтора.
func (h *MailHandler) Handle(ctx context.Context, msg amqp091.Delivery) (err error) {
	job, err := mail.Decode(msg.Body)
	if err != nil {
		h.observer.ObserveMailJob("unknown", err)
		h.logger.Error("Rejecting invalid mail job",
			logger.String("message_id", msg.MessageId),
			logger.Int("body_size", len(msg.Body)),
			logger.Error(err))
		return fmt.Errorf("%w: %v", rabbitmq.ErrReject, err)
	}

	ctx, span := h.observer.StartSpan(ctx, "mail.deliver",
		attribute.String("mail.job_id", job.ID),
		attribute.String("mail.kind", string(job.Kind)))
	defer func() {
		metrics.EndSpan(span, err)
		h.observer.ObserveMailJob(string(job.Kind), err)
	}()

	log := h.logger.With(
		logger.String("job_id", job.ID),
		logger.String("kind", string(job.Kind)),
		logger.Int64("attempt", rabbitmq.DeliveryAttempts(msg, msg.RoutingKey)+1))

	message, err := h.renderer.Render(job)
	if err != nil {
		log.Error("Rejecting mail job that cannot be rendered", logger.Error(err))
		return fmt.Errorf("%w: %v", rabbitmq.ErrReject, err)
	}

	if err := h.sender.Send(ctx, job.To, job.ID, message); err != nil {
		if h.isPermanent(err) {
			log.Error("Mail delivery rejected by server", logger.Error(err))
			return fmt.Errorf("%w: %v", rabbitmq.ErrReject, err)
		}
		log.Warn("Mail delivery failed, job will be retried", logger.Error(err))
		return err
	}

	log.Info("Mail delivered")
	return nil
}
