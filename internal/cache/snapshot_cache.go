package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"tradebridge/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrCacheMiss - снимка нет или истек TTL
var ErrCacheMiss = errors.New("account snapshot not cached")

const snapshotKey = "tradebridge:accounts:snapshot"

// store - подмножество команд *redis.Client, нужное кешу
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedSnapshot - сохраненный список счетов
type CachedSnapshot struct {
	Accounts  []*models.Account `json:"accounts"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// SnapshotCache хранит последний снимок счетов без ошибок источников
type SnapshotCache struct {
	rdb store
	ttl time.Duration
}

// NewSnapshotCache создает кеш поверх клиента
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

// Save сохраняет снимок с TTL
func (sc *SnapshotCache) Save(ctx context.Context, accounts []*models.Account, fetchedAt time.Time) error {
	data, err := json.Marshal(CachedSnapshot{Accounts: accounts, FetchedAt: fetchedAt.UTC()})
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey, data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save snapshot: %w", err)
	}
	return nil
}

// Load возвращает снимок или ErrCacheMiss
func (sc *SnapshotCache) Load(ctx context.Context) (*CachedSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis: load snapshot: %w", err)
	}

	var snap CachedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redis: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Invalidate удаляет снимок
func (sc *SnapshotCache) Invalidate(ctx context.Context) error {
	if err := sc.rdb.Del(ctx, snapshotKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot: %w", err)
	}
	return nil
}
