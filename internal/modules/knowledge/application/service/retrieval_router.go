package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/vectordb"
	"KnowledgeHub/pkg/metrics"
	"KnowledgeHub/pkg/util"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RetrievalRouter 将一次查询并发分发到多个知识库的向量集合并合并结果
type RetrievalRouter struct {
	collections repository.CollectionRegistry
	embedder    embedding.Embedder
	conf        config.RetrievalConfig
}

func NewRetrievalRouter(collections repository.CollectionRegistry, embedder embedding.Embedder, conf config.RetrievalConfig) *RetrievalRouter {
	if conf.MaxFanout <= 0 {
		conf.MaxFanout = 8
	}
	if conf.PerCollectionTimeoutMs <= 0 {
		conf.PerCollectionTimeoutMs = 3000
	}
	if conf.DefaultTopK <= 0 {
		conf.DefaultTopK = 5
	}
	if conf.MaxTopK <= 0 {
		conf.MaxTopK = 50
	}
	return &RetrievalRouter{collections: collections, embedder: embedder, conf: conf}
}

// Search 单个集合失败或超时只会被排除；全部失败时返回空列表
func (r *RetrievalRouter) Search(ctx context.Context, kbIDs []int64, query string, threshold float64, topK int) ([]entity.RetrievedChunk, error) {
	kbIDs = util.DedupInt64(kbIDs)
	if len(kbIDs) == 0 {
		return nil, xerr.Validation("知识库列表不能为空")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, xerr.Validation("查询内容不能为空")
	}
	topK = r.normalizeTopK(topK)

	start := time.Now()
	defer func() { metrics.RetrievalDuration.Observe(time.Since(start).Seconds()) }()

	vecs, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil || len(vecs) != 1 || len(vecs[0]) == 0 {
		zlog.Error("embed query failed", zap.Int("kb_count", len(kbIDs)), zap.Error(err))
		return []entity.RetrievedChunk{}, nil
	}
	vector := make([]float32, len(vecs[0]))
	for i, v := range vecs[0] {
		vector[i] = float32(v)
	}

	perCollection := make([][]entity.RetrievedChunk, len(kbIDs))
	timeout := time.Duration(r.conf.PerCollectionTimeoutMs) * time.Millisecond

	var g errgroup.Group
	g.SetLimit(r.conf.MaxFanout)
	for i, kbID := range kbIDs {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			perCollection[i] = r.searchOne(cctx, kbID, vector, threshold, topK)
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]entity.RetrievedChunk, 0, topK)
	for _, chunks := range perCollection {
		merged = append(merged, chunks...)
	}
	vectordb.SortHits(merged,
		func(c entity.RetrievedChunk) *float64 { return c.Distance },
		func(c entity.RetrievedChunk) string { return c.Id })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

func (r *RetrievalRouter) searchOne(ctx context.Context, kbID int64, vector []float32, threshold float64, topK int) []entity.RetrievedChunk {
	coll, err := r.collections.GetOrCreate(ctx, kbID)
	if err != nil {
		r.excluded(ctx, kbID, "open", err)
		return nil
	}
	hits, err := coll.Search(ctx, vector, threshold, topK)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		reason := "search"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		r.excluded(ctx, kbID, reason, err)
		return nil
	}

	out := make([]entity.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, entity.RetrievedChunk{
			Id:              h.ID,
			KnowledgeBaseId: kbID,
			Text:            h.Text,
			Metadata:        h.Metadata,
			Distance:        h.Distance,
		})
	}
	return out
}

func (r *RetrievalRouter) excluded(_ context.Context, kbID int64, reason string, err error) {
	metrics.RetrievalCollectionFailures.WithLabelValues(reason).Inc()
	zlog.Warn("collection excluded from retrieval",
		zap.Int64("kb_id", kbID),
		zap.String("collection", entity.CollectionName(kbID)),
		zap.String("reason", reason),
		zap.Error(err))
}

func (r *RetrievalRouter) normalizeTopK(topK int) int {
	if topK <= 0 {
		return r.conf.DefaultTopK
	}
	if topK > r.conf.MaxTopK {
		return r.conf.MaxTopK
	}
	return topK
}
