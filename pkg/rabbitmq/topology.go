package rabbitmq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Суффиксы служебных очередей
const (
	RetrySuffix = ".retry"
	DLQSuffix   = ".dlq"
)

// declarer часть *amqp091.Channel, нужная для объявления топологии
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
}

// DeclareQueue объявляет рабочую очередь вместе с очередью отложенных повторов и DLQ:
//
//	queue --reject--> queue.retry --ttl--> queue
//	queue --(повторы исчерпаны)--> queue.dlq
//
// Если задан exchange, очередь привязывается к нему с routingKey.
func DeclareQueue(ch declarer, queue, exchange, exchangeType, routingKey string, retryDelay time.Duration) error {
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, exchangeType, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	if _, err := ch.QueueDeclare(queue+DLQSuffix, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ for %s: %w", queue, err)
	}

	_, err := ch.QueueDeclare(queue+RetrySuffix, true, false, false, false, amqp091.Table{
		"x-message-ttl":             retryDelay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	})
	if err != nil {
		return fmt.Errorf("failed to declare retry queue for %s: %w", queue, err)
	}

	_, err = ch.QueueDeclare(queue, true, false, false, false, amqp091.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue + RetrySuffix,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	if exchange != "" {
		if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to exchange %s: %w", queue, exchange, err)
		}
	}
	return nil
}

// DeliveryAttempts сколько раз сообщение уже было отклонено из очереди queue (по заголовку x-death)
func DeliveryAttempts(d amqp091.Delivery, queue string) int64 {
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	for _, entry := range deaths {
		table, ok := entry.(amqp091.Table)
		if !ok {
			continue
		}
		if q, _ := table["queue"].(string); q != queue {
			continue
		}
		switch count := table["count"].(type) {
		case int64:
			return count
		case int32:
			return int64(count)
		case int:
			return int64(count)
		}
	}
	return 0
}
