package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"RetailBackOffice/pkg/config"
	"RetailBackOffice/pkg/connection"
)

// Client представляет подключение к Redis
type Client struct {
	Client *redis.Client
}

// Config представляет конфигурацию Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	// Connection pool settings
	PoolSize        int
	MinIdleConn     int
	ConnMaxIdleTime time.Duration
	// Retry settings
	Retry connection.RetryConfig
}

// NewConfig создает конфигурацию по умолчанию
func NewConfig() *Config {
	return &Config{
		Addr:            "localhost:6379",
		PoolSize:        10,
		MinIdleConn:     2,
		ConnMaxIdleTime: 5 * time.Minute,
		Retry: connection.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
			Jitter:       true,
		},
	}
}

// ConfigFrom строит конфигурацию клиента из секции redis общего конфига
func ConfigFrom(cfg config.RedisConfig) *Config {
	c := NewConfig()
	c.Addr = cfg.Addr
	c.Password = cfg.Password
	c.DB = cfg.DB
	if cfg.PoolSize > 0 {
		c.PoolSize = cfg.PoolSize
	}
	c.MinIdleConn = cfg.MinIdleConn
	if cfg.MaxRetries > 0 {
		c.Retry.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryInterval.Duration > 0 {
		c.Retry.InitialDelay = cfg.RetryInterval.Duration
	}
	return c
}

// Options параметры go-redis клиента
func (c *Config) Options() *redis.Options {
	return &redis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConn,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolTimeout:     4 * time.Second,
	}
}

// Connect устанавливает подключение к Redis с retry логикой
func Connect(ctx context.Context, config *Config) (*Client, error) {
	client := redis.NewClient(config.Options())

	err := connection.WithRetry(ctx, config.Retry, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Client{Client: client}, nil
}

// Close закрывает подключение к Redis
func (r *Client) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// HealthCheck проверяет состояние подключения к Redis
func (r *Client) HealthCheck(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}
