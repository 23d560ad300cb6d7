package balancer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"RetailBackOffice/pkg/logger"
)

// HealthChecker периодически опрашивает health-эндпоинт каждого инстанса группы
type HealthChecker struct {
	instances []*Instance
	path      string
	interval  time.Duration
	timeout   time.Duration
	client    *http.Client
	log       logger.Logger
}

// NewHealthChecker создает новый HealthChecker. path добавляется к URL инстанса.
func NewHealthChecker(instances []*Instance, path string, interval time.Duration, log logger.Logger) *HealthChecker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthChecker{
		instances: instances,
		path:      path,
		interval:  interval,
		timeout:   2 * time.Second,
		client:    &http.Client{},
		log:       log,
	}
}

// Run проверяет инстансы сразу и затем каждые interval, пока не отменен контекст
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		h.CheckAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckAll выполняет один проход проверок
func (h *HealthChecker) CheckAll(ctx context.Context) {
	for _, instance := range h.instances {
		err := h.check(ctx, instance)
		if !instance.SetHealthy(err == nil) {
			continue
		}
		if err != nil {
			h.log.Warn("Upstream marked unhealthy",
				logger.String("address", instance.Address()),
				logger.Error(err))
		} else {
			h.log.Info("Upstream recovered", logger.String("address", instance.Address()))
		}
	}
}

// check проверяет состояние одного инстанса: любой ответ 2xx считается успехом
func (h *HealthChecker) check(ctx context.Context, instance *Instance) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	target := instance.URL.JoinPath(h.path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
