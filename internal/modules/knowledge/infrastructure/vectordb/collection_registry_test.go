package vectordb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBackend 统计各操作调用次数，可注入错误
type countingBackend struct {
	*MemoryBackend
	has, create, drop, open atomic.Int32
	hasErr                  error
	openDelay               time.Duration
	openHook                func(ctx context.Context)
}

func newCountingBackend() *countingBackend {
	return &countingBackend{MemoryBackend: NewMemoryBackend(4, MetricCosine)}
}

func (b *countingBackend) Has(ctx context.Context, name string) (bool, error) {
	b.has.Add(1)
	if b.hasErr != nil {
		return false, b.hasErr
	}
	return b.MemoryBackend.Has(ctx, name)
}

func (b *countingBackend) Create(ctx context.Context, name string) error {
	b.create.Add(1)
	return b.MemoryBackend.Create(ctx, name)
}

func (b *countingBackend) Drop(ctx context.Context, name string) error {
	b.drop.Add(1)
	return b.MemoryBackend.Drop(ctx, name)
}

func (b *countingBackend) Open(ctx context.Context, name string) (repository.VectorCollection, error) {
	b.open.Add(1)
	if b.openDelay > 0 {
		time.Sleep(b.openDelay)
	}
	if b.openHook != nil {
		b.openHook(ctx)
	}
	return b.MemoryBackend.Open(ctx, name)
}

func TestRegistry_GetOrCreateConstructsOnce(t *testing.T) {
	backend := newCountingBackend()
	backend.openDelay = 20 * time.Millisecond
	reg := NewRegistry(backend)

	const callers = 32
	var wg sync.WaitGroup
	handles := make([]repository.VectorCollection, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = reg.GetOrCreate(context.Background(), 42)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
	assert.Equal(t, int32(1), backend.create.Load())
	assert.Equal(t, int32(1), backend.open.Load())
	assert.Equal(t, "kb_42", handles[0].Name())

	// 之后的访问直接走缓存
	_, err := reg.GetOrCreate(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.open.Load())
}

func TestRegistry_FirstCallerCancelDoesNotFailWaiters(t *testing.T) {
	backend := newCountingBackend()
	started := make(chan struct{})
	release := make(chan struct{})
	var openCtxErr error
	backend.openHook = func(ctx context.Context) {
		close(started)
		<-release
		openCtxErr = ctx.Err()
	}
	reg := NewRegistry(backend)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := reg.GetOrCreate(firstCtx, 7)
		firstErr <- err
	}()
	<-started

	type result struct {
		h   repository.VectorCollection
		err error
	}
	second := make(chan result, 1)
	go func() {
		h, err := reg.GetOrCreate(context.Background(), 7)
		second <- result{h, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "kb_7", res.h.Name())
	assert.NoError(t, openCtxErr)
	assert.Equal(t, int32(1), backend.open.Load())

	// 构造结果已缓存
	h, err := reg.GetOrCreate(context.Background(), 7)
	require.NoError(t, err)
	assert.Same(t, res.h, h)
}

func TestRegistry_CreateIsIdempotent(t *testing.T) {
	backend := newCountingBackend()
	reg := NewRegistry(backend)
	ctx := context.Background()

	require.NoError(t, reg.Create(ctx, 1, "kb_1"))
	require.NoError(t, reg.Create(ctx, 1, "kb_1"))
	assert.Equal(t, int32(1), backend.create.Load())

	ok, err := reg.Exists(ctx, "kb_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistry_DropMissingIsNoopAndEvicts(t *testing.T) {
	backend := newCountingBackend()
	reg := NewRegistry(backend)
	ctx := context.Background()

	require.NoError(t, reg.Drop(ctx, 9, ""))
	assert.Equal(t, int32(0), backend.drop.Load())

	h1, err := reg.GetOrCreate(ctx, 9)
	require.NoError(t, err)
	require.NoError(t, reg.Drop(ctx, 9, ""))
	assert.Equal(t, int32(1), backend.drop.Load())

	ok, err := reg.Exists(ctx, "kb_9")
	require.NoError(t, err)
	assert.False(t, ok)

	h2, err := reg.GetOrCreate(ctx, 9)
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.Equal(t, int32(2), backend.create.Load())
}

func TestRegistry_BackendErrorsAreVectorStoreErrors(t *testing.T) {
	backend := newCountingBackend()
	backend.hasErr = errors.New("milvus unavailable")
	reg := NewRegistry(backend)
	ctx := context.Background()

	_, err := reg.GetOrCreate(ctx, 1)
	assert.True(t, xerr.Is(err, xerr.KindVectorStore))
	assert.ErrorIs(t, err, backend.hasErr)

	assert.True(t, xerr.Is(reg.Create(ctx, 1, ""), xerr.KindVectorStore))
	assert.True(t, xerr.Is(reg.Drop(ctx, 1, ""), xerr.KindVectorStore))
	_, err = reg.Exists(ctx, "kb_1")
	assert.True(t, xerr.Is(err, xerr.KindVectorStore))
}
