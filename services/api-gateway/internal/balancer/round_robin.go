package balancer

import (
	"sync/atomic"

	"RetailBackOffice/pkg/logger"
)

// RoundRobin реализует стратегию round-robin балансировки нагрузки.
// Недоступные инстансы пропускаются; если недоступны все, возвращается nil.
type RoundRobin struct {
	index     uint64
	instances []*Instance
	log       logger.Logger
}

// NewRoundRobin создает новый RoundRobin балансировщик
func NewRoundRobin(instances []*Instance, log logger.Logger) *RoundRobin {
	return &RoundRobin{
		instances: instances,
		log:       log,
	}
}

// Instances возвращает все инстансы группы
func (r *RoundRobin) Instances() []*Instance {
	return r.instances
}

// Select выбирает следующий доступный инстанс
func (r *RoundRobin) Select() *Instance {
	n := uint64(len(r.instances))
	if n == 0 {
		return nil
	}

	// Получаем текущий индекс и увеличиваем его
	start := atomic.AddUint64(&r.index, 1) - 1
	for i := uint64(0); i < n; i++ {
		candidate := r.instances[(start+i)%n]
		if candidate.IsActive() {
			return candidate
		}
	}

	r.log.Warn("No healthy instances available for round-robin selection",
		logger.Int("total_instances", int(n)))
	return nil
}
