package vectordb

import (
	"context"
	"testing"

	"KnowledgeHub/internal/modules/knowledge/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCollection_WriteSearchDelete(t *testing.T) {
	reg := NewRegistry(NewMemoryBackend(3, MetricCosine))
	ctx := context.Background()

	coll, err := reg.GetOrCreate(ctx, 5)
	require.NoError(t, err)

	ids, err := coll.Write(ctx, []repository.VectorRecord{
		{Text: "x axis", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"chunkIndex": 0}},
		{Text: "y axis", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"chunkIndex": 1}},
		{Text: "mostly x", Vector: []float32{0.9, 0.1, 0}, Metadata: map[string]any{"chunkIndex": 2}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	got, err := coll.Get(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "y axis", got[1].Text)

	hits, err := coll.Search(ctx, []float32{1, 0, 0}, 0, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, ids[0], hits[0].ID)
	assert.Equal(t, ids[2], hits[1].ID)
	assert.InDelta(t, 0, *hits[0].Distance, 1e-6)

	// 阈值过滤掉正交向量
	hits, err = coll.Search(ctx, []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	require.NoError(t, coll.Delete(ctx, []string{ids[0]}))
	hits, err = coll.Search(ctx, []float32{1, 0, 0}, 0, 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, ids[0], h.ID)
	}
}

func TestMemoryCollection_RejectsWrongDimension(t *testing.T) {
	reg := NewRegistry(NewMemoryBackend(3, MetricL2))
	coll, err := reg.GetOrCreate(context.Background(), 1)
	require.NoError(t, err)

	_, err = coll.Write(context.Background(), []repository.VectorRecord{{Vector: []float32{1, 2}}})
	assert.Error(t, err)
	_, err = coll.Search(context.Background(), []float32{1}, 0, 1)
	assert.Error(t, err)
}

func TestIDInExpr(t *testing.T) {
	assert.Equal(t, `id in ["a","b\"c"]`, idInExpr([]string{"a", `b"c`}))
}
