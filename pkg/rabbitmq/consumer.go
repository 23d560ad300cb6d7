package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"RetailBackOffice/pkg/logger"
)

// ErrReject сообщение не может быть обработано никогда: оно сразу уходит в DLQ без повторов.
// Обработчик оборачивает его: fmt.Errorf("%w: ...", rabbitmq.ErrReject).
var ErrReject = errors.New("message rejected")

// MessageHandler функция для обработки сообщения.
// nil подтверждает сообщение, ErrReject отправляет его в DLQ, любая другая ошибка считается
// временной: сообщение повторяется через очередь отложенных повторов, пока не исчерпан лимит.
type MessageHandler func(context.Context, amqp091.Delivery) error

// Consumer представляет консьюмера сообщений
type Consumer struct {
	conn         *Connection
	config       *Config
	logger       logger.Logger
	workers      int
	queueSize    int
	partitionKey PartitionKeyFunc
	// publish отправка в DLQ; подменяется в тестах
	publish func(ctx context.Context, ch *amqp091.Channel, routingKey string, msg amqp091.Publishing) error
}

// ConsumerOption настраивает Consumer
type ConsumerOption func(*Consumer)

// WithWorkers задает число воркеров и ключ партиционирования
func WithWorkers(workers, queueSize int, key PartitionKeyFunc) ConsumerOption {
	return func(c *Consumer) {
		c.workers = workers
		c.queueSize = queueSize
		c.partitionKey = key
	}
}

// NewConsumer создает нового консьюмера
func NewConsumer(conn *Connection, config *Config, log logger.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		conn:    conn,
		config:  config,
		logger:  log,
		workers: 1,
		partitionKey: func(amqp091.Delivery) string {
			return ""
		},
		publish: func(ctx context.Context, ch *amqp091.Channel, routingKey string, msg amqp091.Publishing) error {
			return ch.PublishWithContext(ctx, "", routingKey, false, false, msg)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume обрабатывает сообщения из очереди, пока не отменен контекст.
// При обрыве соединения переподключается через ReconnectInterval.
func (c *Consumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("Consumer stopped, reconnecting",
			logger.String("queue", queue),
			logger.Duration("retry_in", c.config.ReconnectInterval),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.ReconnectInterval):
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(c.config.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	if err := DeclareQueue(ch, queue, c.config.Exchange, c.config.ExchangeType, c.config.RoutingKey, c.config.RetryDelay); err != nil {
		return err
	}

	msgs, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.logger.Info("Consuming queue",
		logger.String("queue", queue),
		logger.Int("workers", c.workers))

	pool := newDispatcher(c.workers, c.queueSize, func(msg amqp091.Delivery) {
		c.handle(ctx, ch, queue, msg, handler)
	})
	defer pool.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed")
			}
			pool.dispatch(c.partitionKey(msg), msg)
		}
	}
}

// handle обрабатывает одно сообщение и подтверждает его
func (c *Consumer) handle(ctx context.Context, ch *amqp091.Channel, queue string, msg amqp091.Delivery, handler MessageHandler) {
	msgCtx, cancel := context.WithTimeout(ctx, c.config.HandlerTimeout)
	defer cancel()

	err := handler(msgCtx, msg)
	c.settle(msgCtx, ch, queue, msg, err)
}

// settle выбирает ack, повтор или DLQ по результату обработчика
func (c *Consumer) settle(ctx context.Context, ch *amqp091.Channel, queue string, msg amqp091.Delivery, err error) {
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error("Failed to ack delivery", logger.Error(ackErr))
		}
		return
	}

	attempts := DeliveryAttempts(msg, queue)
	if !errors.Is(err, ErrReject) && attempts < int64(c.config.MaxRetries) {
		c.logger.Warn("Message processing failed, scheduling retry",
			logger.String("queue", queue),
			logger.Int64("attempt", attempts+1),
			logger.Error(err))
		// reject без requeue: сообщение уходит в queue.retry и вернется после задержки
		if nackErr := msg.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to nack delivery", logger.Error(nackErr))
		}
		return
	}

	c.logger.Error("Message moved to dead letter queue",
		logger.String("queue", queue),
		logger.Int64("attempts", attempts),
		logger.Error(err))

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-last-error"] = err.Error()

	pubErr := c.publish(ctx, ch, queue+DLQSuffix, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.MessageId,
		Timestamp:    time.Now(),
	})
	if pubErr != nil {
		// не удалось положить в DLQ: возвращаем в очередь, чтобы не потерять
		c.logger.Error("Failed to publish to DLQ", logger.Error(pubErr))
		_ = msg.Nack(false, true)
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		c.logger.Error("Failed to ack delivery", logger.Error(ackErr))
	}
}
