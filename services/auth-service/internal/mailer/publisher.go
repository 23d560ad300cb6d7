package mailer

import (
	"context"
	"encoding/json"
	"time"

	"RetailBackOffice/pkg/connection"
	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/pkg/mail"
	"RetailBackOffice/pkg/rabbitmq"
)

// ErrMailUnavailable очередь писем недоступна после всех повторов
var ErrMailUnavailable = apperrors.New(apperrors.ErrUnavailable, "mail dispatch is unavailable").WithReason("MAIL_UNAVAILABLE")

// jobPublisher публикация с повторами (реализуется rabbitmq.Producer)
type jobPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, retry connection.RetryConfig, options ...rabbitmq.PublishOption) error
}

// jobObserver счетчик отправленных писем (реализуется metrics.Metrics)
type jobObserver interface {
	ObserveMailJob(kind string, err error)
}

// Publisher ставит письма в очередь notification-service
type Publisher struct {
	producer jobPublisher
	queue    string
	retry    connection.RetryConfig
	observer jobObserver
	logger   logger.Logger
}

// NewPublisher создает новый Publisher. Сообщения публикуются в default exchange с ключом queue.
func NewPublisher(producer jobPublisher, queue string, retry connection.RetryConfig, observer jobObserver, log logger.Logger) *Publisher {
	if queue == "" {
		queue = mail.DefaultQueue
	}
	return &Publisher{
		producer: producer,
		queue:    queue,
		retry:    retry,
		observer: observer,
		logger:   log,
	}
}

// SendUserCode отправляет напоминание кода пользователя
func (p *Publisher) SendUserCode(ctx context.Context, to, userCode string) error {
	return p.publish(ctx, mail.UserCodeJob(to, userCode))
}

// SendPasswordReset отправляет ссылку для сброса пароля
func (p *Publisher) SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error {
	return p.publish(ctx, mail.PasswordResetJob(to, link, expiresAt))
}

func (p *Publisher) publish(ctx context.Context, job mail.Job) (err error) {
	defer func() { p.observer.ObserveMailJob(string(job.Kind), err) }()

	body, err := json.Marshal(job)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal, "failed to encode mail job")
	}

	err = p.producer.PublishWithRetry(ctx, body, p.retry,
		rabbitmq.WithExchange(""),
		rabbitmq.WithRoutingKey(p.queue),
		rabbitmq.WithMessageID(job.ID),
	)
	if err != nil {
		p.logger.Error("Failed to enqueue mail job",
			logger.String("job_id", job.ID),
			logger.String("kind", string(job.Kind)),
			logger.Error(err),
			logger.CtxField(ctx))
		return ErrMailUnavailable.WithCause(err)
	}

	p.logger.Debug("Mail job enqueued",
		logger.String("job_id", job.ID),
		logger.String("kind", string(job.Kind)))
	return nil
}
