package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"KnowledgeHub/pkg/metrics"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

// Store 字节级缓存后端
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Count(ctx context.Context, pattern string) (int64, error)
}

// NopStore 未配置 Redis 时使用，永远未命中
type NopStore struct{}

func (NopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopStore) Del(context.Context, ...string) error { return nil }
func (NopStore) Count(context.Context, string) (int64, error) { return 0, nil }

// Cache 带固定前缀和 TTL 的类型化投影，值以 JSON 存储
// 缓存不是数据源：读失败按未命中处理，写失败只记日志
type Cache[K comparable, V any] struct {
	name   string
	store  Store
	prefix string
	ttl    time.Duration
}

func New[K comparable, V any](name string, store Store, prefix string, ttl time.Duration) *Cache[K, V] {
	if store == nil {
		store = NopStore{}
	}
	return &Cache[K, V]{name: name, store: store, prefix: prefix, ttl: ttl}
}

func (c *Cache[K, V]) Key(k K) string {
	return c.prefix + fmt.Sprint(k)
}

func (c *Cache[K, V]) Prefix() string { return c.prefix }

func (c *Cache[K, V]) TTL() time.Duration { return c.ttl }

func (c *Cache[K, V]) Get(ctx context.Context, k K) (V, bool) {
	var zero V
	b, ok, err := c.store.Get(ctx, c.Key(k))
	if err != nil {
		metrics.CacheRequests.WithLabelValues(c.name, "error").Inc()
		zlog.Warn("cache get failed", zap.String("cache", c.name), zap.String("key", c.Key(k)), zap.Error(err))
		return zero, false
	}
	if !ok {
		metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}
	var v V
	if err := json.Unmarshal(b, &v); err != nil {
		metrics.CacheRequests.WithLabelValues(c.name, "error").Inc()
		zlog.Warn("cache decode failed", zap.String("cache", c.name), zap.String("key", c.Key(k)), zap.Error(err))
		return zero, false
	}
	metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
	return v, true
}

func (c *Cache[K, V]) Set(ctx context.Context, k K, v V) {
	b, err := json.Marshal(v)
	if err != nil {
		zlog.Warn("cache encode failed", zap.String("cache", c.name), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.Key(k), b, c.ttl); err != nil {
		zlog.Warn("cache set failed", zap.String("cache", c.name), zap.String("key", c.Key(k)), zap.Error(err))
	}
}

func (c *Cache[K, V]) Invalidate(ctx context.Context, ks ...K) {
	if len(ks) == 0 {
		return
	}
	keys := make([]string, 0, len(ks))
	for _, k := range ks {
		keys = append(keys, c.Key(k))
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		zlog.Warn("cache invalidate failed", zap.String("cache", c.name), zap.Strings("keys", keys), zap.Error(err))
	}
}

// Count 统计本投影下的 key 数量，仅用于统计
func (c *Cache[K, V]) Count(ctx context.Context) int64 {
	n, err := c.store.Count(ctx, c.prefix+"*")
	if err != nil {
		zlog.Warn("cache count failed", zap.String("cache", c.name), zap.Error(err))
		return 0
	}
	return n
}
