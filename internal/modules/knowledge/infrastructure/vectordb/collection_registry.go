package vectordb

import (
	"context"
	"strings"
	"sync"
	"time"

	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/metrics"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CollectionBackend 向量库的集合级操作，由 Milvus 或内存实现
type CollectionBackend interface {
	Has(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string) error
	Drop(ctx context.Context, name string) error
	Open(ctx context.Context, name string) (repository.VectorCollection, error)
}

// constructTimeout 集合构造脱离发起者的 ctx，只受这个上限约束
const constructTimeout = 30 * time.Second

// Registry 缓存集合句柄；同名集合并发首次访问只会构造一次
type Registry struct {
	backend CollectionBackend

	mu      sync.RWMutex
	handles map[string]repository.VectorCollection
	group   singleflight.Group
}

var _ repository.CollectionRegistry = (*Registry)(nil)

func NewRegistry(backend CollectionBackend) *Registry {
	return &Registry{backend: backend, handles: make(map[string]repository.VectorCollection)}
}

func (r *Registry) cached(name string) repository.VectorCollection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[name]
}

func (r *Registry) GetOrCreate(ctx context.Context, kbID int64) (repository.VectorCollection, error) {
	name := entity.CollectionName(kbID)
	if h := r.cached(name); h != nil {
		return h, nil
	}

	ch := r.group.DoChan(name, func() (any, error) {
		if h := r.cached(name); h != nil {
			return h, nil
		}
		// 构造结果由所有等待者共享，不能随第一个调用方取消
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constructTimeout)
		defer cancel()
		exists, err := r.backend.Has(ctx, name)
		if err != nil {
			return nil, xerr.VectorStore(err, "检查向量集合失败")
		}
		if !exists {
			if err := r.backend.Create(ctx, name); err != nil {
				return nil, xerr.VectorStore(err, "创建向量集合失败")
			}
			zlog.Info("vector collection created", zap.String("collection", name), zap.Int64("kb_id", kbID))
		}
		h, err := r.backend.Open(ctx, name)
		if err != nil {
			return nil, xerr.VectorStore(err, "打开向量集合失败")
		}

		r.mu.Lock()
		r.handles[name] = h
		metrics.OpenCollections.Set(float64(len(r.handles)))
		r.mu.Unlock()
		return h, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(repository.VectorCollection), nil
	}
}

// Create 已存在时不做任何事
func (r *Registry) Create(ctx context.Context, kbID int64, name string) error {
	name = collectionNameOrDefault(kbID, name)
	exists, err := r.backend.Has(ctx, name)
	if err != nil {
		return xerr.VectorStore(err, "检查向量集合失败")
	}
	if exists {
		return nil
	}
	if err := r.backend.Create(ctx, name); err != nil {
		return xerr.VectorStore(err, "创建向量集合失败")
	}
	zlog.Info("vector collection created", zap.String("collection", name), zap.Int64("kb_id", kbID))
	return nil
}

// Drop 集合不存在时只清理缓存的句柄
func (r *Registry) Drop(ctx context.Context, kbID int64, name string) error {
	name = collectionNameOrDefault(kbID, name)
	defer r.evict(name)

	exists, err := r.backend.Has(ctx, name)
	if err != nil {
		return xerr.VectorStore(err, "检查向量集合失败")
	}
	if !exists {
		return nil
	}
	if err := r.backend.Drop(ctx, name); err != nil {
		return xerr.VectorStore(err, "删除向量集合失败")
	}
	zlog.Info("vector collection dropped", zap.String("collection", name), zap.Int64("kb_id", kbID))
	return nil
}

func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := r.backend.Has(ctx, name)
	if err != nil {
		return false, xerr.VectorStore(err, "检查向量集合失败")
	}
	return ok, nil
}

func (r *Registry) evict(name string) {
	r.mu.Lock()
	delete(r.handles, name)
	metrics.OpenCollections.Set(float64(len(r.handles)))
	r.mu.Unlock()
}

func collectionNameOrDefault(kbID int64, name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return entity.CollectionName(kbID)
}
