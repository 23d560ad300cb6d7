package balancer

import (
	"net/url"
	"sync/atomic"
)

// Instance upstream сервиса за шлюзом
type Instance struct {
	URL *url.URL

	healthy atomic.Bool
	active  atomic.Int64
}

// NewInstance создает инстанс; до первой проверки он считается доступным
func NewInstance(target *url.URL) *Instance {
	i := &Instance{URL: target}
	i.healthy.Store(true)
	return i
}

// Address адрес инстанса для логов
func (i *Instance) Address() string {
	return i.URL.Host
}

// IsActive возвращает true, если последняя проверка прошла успешно
func (i *Instance) IsActive() bool {
	return i.healthy.Load()
}

// SetHealthy меняет состояние и сообщает, изменилось ли оно
func (i *Instance) SetHealthy(healthy bool) bool {
	return i.healthy.Swap(healthy) != healthy
}

// Acquire отмечает начало проксируемого запроса. Вызывающий обязан вызвать release.
func (i *Instance) Acquire() (release func()) {
	i.active.Add(1)
	return func() { i.active.Add(-1) }
}

// GetActiveConnections число запросов в работе
func (i *Instance) GetActiveConnections() int64 {
	return i.active.Load()
}
