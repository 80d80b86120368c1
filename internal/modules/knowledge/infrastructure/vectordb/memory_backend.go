package vectordb

import (
	"context"
	"fmt"
	"math"
	"sync"

	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/util"
)

// MemoryBackend 进程内暴力检索，未配置 Milvus 时使用
type MemoryBackend struct {
	dim    int
	metric string

	mu          sync.Mutex
	collections map[string]*memoryCollection
}

var _ CollectionBackend = (*MemoryBackend)(nil)

func NewMemoryBackend(dim int, metric string) *MemoryBackend {
	return &MemoryBackend{dim: dim, metric: NormalizeMetric(metric), collections: make(map[string]*memoryCollection)}
}

func (b *MemoryBackend) Has(_ context.Context, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.collections[name]
	return ok, nil
}

func (b *MemoryBackend) Create(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[name]; !ok {
		b.collections[name] = &memoryCollection{name: name, dim: b.dim, metric: b.metric, records: map[string]repository.VectorRecord{}}
	}
	return nil
}

func (b *MemoryBackend) Drop(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.collections, name)
	return nil
}

func (b *MemoryBackend) Open(_ context.Context, name string) (repository.VectorCollection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	return c, nil
}

type memoryCollection struct {
	name   string
	dim    int
	metric string

	mu      sync.RWMutex
	order   []string
	records map[string]repository.VectorRecord
}

func (c *memoryCollection) Name() string { return c.name }

func (c *memoryCollection) Write(_ context.Context, records []repository.VectorRecord) ([]string, error) {
	for _, rec := range records {
		if len(rec.Vector) != c.dim {
			return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(rec.Vector), c.dim)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = util.GenerateUUID()
		}
		if _, exists := c.records[rec.ID]; !exists {
			c.order = append(c.order, rec.ID)
		}
		c.records[rec.ID] = rec
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (c *memoryCollection) Delete(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.records, id)
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if _, ok := c.records[id]; ok {
			kept = append(kept, id)
		}
	}
	c.order = kept
	return nil
}

func (c *memoryCollection) Search(_ context.Context, vector []float32, threshold float64, topK int) ([]repository.VectorHit, error) {
	if len(vector) != c.dim {
		return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), c.dim)
	}
	if topK <= 0 {
		topK = 5
	}
	c.mu.RLock()
	hits := make([]repository.VectorHit, 0, len(c.order))
	for _, id := range c.order {
		rec := c.records[id]
		d := ScoreToDistance(c.metric, score(c.metric, vector, rec.Vector))
		if !KeepHit(&d, threshold) {
			continue
		}
		hits = append(hits, repository.VectorHit{ID: rec.ID, Text: rec.Text, Metadata: rec.Metadata, Distance: &d})
	}
	c.mu.RUnlock()

	sortVectorHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (c *memoryCollection) Get(_ context.Context, ids []string) ([]repository.VectorRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]repository.VectorRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := c.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// score 与 Milvus 的返回值语义一致：COSINE/IP 为相似度，L2 为平方欧氏距离
func score(metric string, a, b []float32) float32 {
	var dot, na, nb, l2 float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		l2 += (x - y) * (x - y)
	}
	switch metric {
	case MetricIP:
		return float32(dot)
	case MetricL2:
		return float32(l2)
	default:
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
	}
}
