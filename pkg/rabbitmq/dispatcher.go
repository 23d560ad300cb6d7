package rabbitmq

import (
	"hash/fnv"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// PartitionKeyFunc возвращает ключ партиции сообщения. Сообщения с одним ключом
// обрабатываются одним воркером строго по порядку.
type PartitionKeyFunc func(amqp091.Delivery) string

// dispatcher пул воркеров, в котором сообщение направляется воркеру hash(key) mod N
type dispatcher struct {
	queues []chan amqp091.Delivery
	wg     sync.WaitGroup
}

func newDispatcher(workers, queueSize int, process func(amqp091.Delivery)) *dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &dispatcher{queues: make([]chan amqp091.Delivery, workers)}
	for i := range d.queues {
		q := make(chan amqp091.Delivery, queueSize)
		d.queues[i] = q
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for msg := range q {
				process(msg)
			}
		}()
	}
	return d
}

// partition номер воркера для ключа
func (d *dispatcher) partition(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *dispatcher) dispatch(key string, msg amqp091.Delivery) {
	d.queues[d.partition(key)] <- msg
}

// stop закрывает очереди и ждет, пока воркеры обработают уже принятые сообщения
func (d *dispatcher) stop() {
	for _, q := range d.queues {
		close(q)
	}
	d.wg.Wait()
}
