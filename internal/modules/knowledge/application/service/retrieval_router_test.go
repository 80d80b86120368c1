package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"KnowledgeHub/internal/modules/knowledge/application/dto/request"
	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	goText    = "goroutines and channels make concurrency simple"
	fruitText = "bananas apples and oranges are fruit"
)

func TestRetrievalRouter_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		ids   []int64
		query string
	}{
		{"no knowledge bases", nil, "goroutines"},
		{"blank query", []int64{1}, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.router.Search(context.Background(), tt.ids, tt.query, 0, 5)
			assert.True(t, xerr.Is(err, xerr.KindValidation))
		})
	}
}

func TestRetrievalRouter_MergesAcrossCollections(t *testing.T) {
	f := newFixture(t)
	kbA := createKB(t, f, 1, entity.VisibilityPersonal)
	kbB := createKB(t, f, 1, entity.VisibilityPersonal)
	ingestText(t, f, kbA.Id, "go.txt", goText+"\n\n"+fruitText)
	ingestText(t, f, kbB.Id, "more.txt", "channels carry values between goroutines\n\nweather is sunny")

	chunks, err := f.router.Search(context.Background(), []int64{kbA.Id, kbB.Id, kbA.Id}, "goroutines channels", 0, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i := 1; i < len(chunks); i++ {
		require.NotNil(t, chunks[i].Distance)
		assert.LessOrEqual(t, *chunks[i-1].Distance, *chunks[i].Distance)
	}
	top := map[int64]bool{chunks[0].KnowledgeBaseId: true, chunks[1].KnowledgeBaseId: true}
	assert.True(t, top[kbA.Id] && top[kbB.Id], "both go chunks should rank first")
}

func TestRetrievalRouter_PartialFailure(t *testing.T) {
	f := newFixture(t)
	healthy := createKB(t, f, 1, entity.VisibilityPersonal)
	broken := createKB(t, f, 1, entity.VisibilityPersonal)
	slow := createKB(t, f, 1, entity.VisibilityPersonal)
	for _, kb := range []*entity.KnowledgeBase{healthy, broken, slow} {
		ingestText(t, f, kb.Id, "go.txt", goText)
	}

	f.registry.openErr[broken.Id] = xerr.VectorStore(errors.New("collection not loaded"), "打开向量集合失败")
	f.registry.wrap = func(kbID int64, c repository.VectorCollection) repository.VectorCollection {
		if kbID == slow.Id {
			return &faultyCollection{VectorCollection: c, searchDelay: 2 * time.Second}
		}
		return c
	}

	start := time.Now()
	chunks, err := f.router.Search(context.Background(), []int64{healthy.Id, broken.Id, slow.Id}, "goroutines", 0, 10)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, chunks, 1)
	assert.Equal(t, healthy.Id, chunks[0].KnowledgeBaseId)
}

func TestRetrievalRouter_AllFailuresYieldEmpty(t *testing.T) {
	f := newFixture(t)
	f.registry.openErr[1] = errors.New("down")
	f.registry.openErr[2] = errors.New("down")

	chunks, err := f.router.Search(context.Background(), []int64{1, 2}, "anything", 0, 5)
	require.NoError(t, err)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)

	f.embedder.err = errors.New("embedding quota exceeded")
	chunks, err = f.router.Search(context.Background(), []int64{3}, "anything", 0, 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRetrievalRouter_Threshold(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	ingestText(t, f, kb.Id, "mix.txt", goText+"\n\n"+fruitText)

	all, err := f.router.Search(context.Background(), []int64{kb.Id}, "goroutines channels concurrency", 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	strict, err := f.router.Search(context.Background(), []int64{kb.Id}, "goroutines channels concurrency", 0.3, 10)
	require.NoError(t, err)
	require.Len(t, strict, 1)
	assert.Equal(t, goText, strict[0].Text)
}

func TestRetrieveService_ChecksAccessBeforeFanOut(t *testing.T) {
	f := newFixture(t)
	mine := createKB(t, f, 1, entity.VisibilityPersonal)
	theirs := createKB(t, f, 2, entity.VisibilityPersonal)
	f.embedder.err = errors.New("must not be called")

	_, err := f.retrieve.Search(context.Background(), 1, request.RetrieveRequest{
		KnowledgeBaseIds: []int64{mine.Id, theirs.Id},
		Query:            "anything",
	})
	assert.True(t, xerr.Is(err, xerr.KindAccessDenied))

	_, err = f.retrieve.Search(context.Background(), 1, request.RetrieveRequest{
		KnowledgeBaseIds: []int64{mine.Id, 404},
		Query:            "anything",
	})
	assert.True(t, xerr.Is(err, xerr.KindNotFound))
}

// 完整流程：建库、上传、检索、删除后不再命中
func TestKnowledgeBaseEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kb := createKB(t, f, 1, entity.VisibilityPersonal)

	outcomes := f.ingest.IngestBatch(ctx, kb.Id, []FileUpload{
		{OriginalName: "go.md", Content: []byte(goText)},
		{OriginalName: "fruit.txt", Content: []byte(fruitText)},
	}, 1)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
	}
	goFile := outcomes[0].File

	resp, err := f.retrieve.Search(ctx, 1, request.RetrieveRequest{
		KnowledgeBaseIds: []int64{kb.Id},
		Query:            "goroutines channels",
		TopK:             1,
	})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "go.md", resp.Chunks[0].Metadata[entity.MetaFileName])

	require.NoError(t, f.ingest.DeleteFile(ctx, goFile.Id, 1))

	resp, err = f.retrieve.Search(ctx, 1, request.RetrieveRequest{
		KnowledgeBaseIds: []int64{kb.Id},
		Query:            "goroutines channels",
		TopK:             10,
	})
	require.NoError(t, err)
	for _, c := range resp.Chunks {
		assert.NotEqual(t, "go.md", c.Metadata[entity.MetaFileName])
	}
	assert.Equal(t, 1, f.store.kb(kb.Id).FileCount)
}
