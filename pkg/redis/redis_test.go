package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return mr, cli
}

func TestStore_GetSetDelCount(t *testing.T) {
	mr, cli := newTestClient(t)
	s := NewStore(cli)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "chat:a:1", []byte("x"), time.Minute))
	require.NoError(t, s.Set(ctx, "chat:a:2", []byte("y"), time.Minute))
	require.NoError(t, s.Set(ctx, "chat:b:1", []byte("z"), time.Minute))

	b, ok, err := s.Get(ctx, "chat:a:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), b)

	n, err := s.Count(ctx, "chat:a:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.Del(ctx, "chat:a:1", "chat:a:2"))
	assert.False(t, mr.Exists("chat:a:1"))
	assert.True(t, mr.Exists("chat:b:1"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("chat:b:1"))
}

func TestLocker_ExclusiveAndTokenSafe(t *testing.T) {
	mr, cli := newTestClient(t)
	l := NewLocker(cli, "lock:", time.Second)

	unlock, err := l.Lock(context.Background(), "user:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:user:1"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "user:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 锁过期后被他人持有，旧 unlock 不能删掉新锁
	mr.FastForward(2 * time.Second)
	unlock2, err := l.Lock(context.Background(), "user:1")
	require.NoError(t, err)
	unlock()
	assert.True(t, mr.Exists("lock:user:1"))

	unlock2()
	assert.False(t, mr.Exists("lock:user:1"))
}
