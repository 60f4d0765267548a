// Package cache хранит последний успешный снимок счетов в Redis,
// чтобы после рестарта UI получал список счетов до завершения живого запроса.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig - параметры подключения к Redis
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Client оборачивает go-redis клиент
type Client struct {
	rdb *redis.Client
}

// New создает клиент и проверяет соединение через PING
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping проверяет соединение
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close закрывает соединение
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying возвращает *redis.Client для кешей пакета
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
