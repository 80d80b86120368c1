package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"KnowledgeHub/pkg/util"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// SetClient 设置 Redis 客户端（由 internal/initial 调用）
func SetClient(c *redis.Client) {
	client = c
}

// Close 关闭 Redis 连接
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// IsConnected 检查 Redis 是否已连接
func IsConnected() bool {
	return client != nil
}

// GetClient 获取原始 Redis 客户端
func GetClient() *redis.Client {
	return client
}

// ==================== 缓存存储 ====================

// Store 基于 Redis 的字节缓存，实现 cache.Store
type Store struct {
	cli *redis.Client
}

func NewStore(cli *redis.Client) *Store {
	return &Store{cli: cli}
}

// Get 未命中时返回 (nil, false, nil)
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.cli.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.cli.Del(ctx, keys...).Err()
}

// Count 用 SCAN 统计匹配 pattern 的 key 数量，只用于统计展示
func (s *Store) Count(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.cli.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return total, err
		}
		total += int64(len(keys))
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// ==================== 分布式锁 ====================

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker 基于 SET NX 的分布式互斥锁，释放时校验 token，避免误删他人的锁
type Locker struct {
	cli           *redis.Client
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
}

func NewLocker(cli *redis.Client, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{cli: cli, prefix: prefix, ttl: ttl, retryInterval: 20 * time.Millisecond}
}

// Lock 阻塞直到拿到锁或 ctx 结束
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := util.GenerateShortUUID()
	for {
		ok, err := l.cli.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", fullKey, err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = unlockScript.Run(ctx, l.cli, []string{fullKey}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}
