package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"KnowledgeHub/internal/modules/knowledge/application/dto/request"
	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/internal/modules/knowledge/domain/event"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeParagraphs = "Go channels connect goroutines.\n\nA select statement waits on channels.\n\nContext carries cancellation."

func createKB(t *testing.T, f *fixture, owner int64, visibility entity.Visibility) *entity.KnowledgeBase {
	t.Helper()
	kb, err := f.kbs.Create(context.Background(), owner, request.CreateKnowledgeBaseRequest{
		DisplayName: "Go Notes",
		Visibility:  string(visibility),
	})
	require.NoError(t, err)
	return kb
}

func collectionOf(t *testing.T, f *fixture, kbID int64) repository.VectorCollection {
	t.Helper()
	c, err := f.registry.CollectionRegistry.GetOrCreate(context.Background(), kbID)
	require.NoError(t, err)
	return c
}

func vectorCount(t *testing.T, f *fixture, kbID int64) int {
	t.Helper()
	vec, err := f.embedder.inner.EmbedStrings(context.Background(), []string{"anything"})
	require.NoError(t, err)
	q := make([]float32, len(vec[0]))
	for i, v := range vec[0] {
		q[i] = float32(v)
	}
	hits, err := collectionOf(t, f, kbID).Search(context.Background(), q, 0, 1000)
	require.NoError(t, err)
	return len(hits)
}

func TestIngest_WritesOneVectorPerChunk(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)

	file, err := f.ingest.Ingest(context.Background(), IngestInput{
		KnowledgeBaseId: kb.Id,
		Content:         []byte(threeParagraphs),
		OriginalName:    "notes.TXT",
		UploaderId:      1,
	})
	require.NoError(t, err)

	require.Len(t, file.VectorIds, 3)
	assert.Equal(t, "txt", file.FileType)
	assert.True(t, strings.HasPrefix(file.StoredName, "kb_files/"))
	assert.True(t, strings.HasSuffix(file.StoredName, ".txt"))
	assert.Equal(t, "memory://"+file.StoredName, file.BlobURL)
	assert.True(t, f.blobs.Has(file.StoredName))

	records, err := collectionOf(t, f, kb.Id).Get(context.Background(), file.VectorIds)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, file.VectorIds[i], rec.ID)
		assert.Equal(t, kb.Id, rec.Metadata[entity.MetaKnowledgeBaseID])
		assert.Equal(t, "notes.TXT", rec.Metadata[entity.MetaFileName])
		assert.Equal(t, i, rec.Metadata[entity.MetaChunkIndex])
	}

	assert.Equal(t, 1, f.store.kb(kb.Id).FileCount)
	assert.Len(t, f.publisher.ofType(event.TypeFileIngested), 1)
}

func TestIngest_ValidatesBeforeAnyIO(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)

	tests := []struct {
		name    string
		content []byte
		file    string
	}{
		{"empty content", nil, "a.txt"},
		{"too large", make([]byte, 1<<20+1), "a.txt"},
		{"blank name", []byte("x"), "   "},
		{"unsupported extension", []byte("x"), "a.exe"},
		{"no extension", []byte("x"), "README"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ingest.Ingest(context.Background(), IngestInput{
				KnowledgeBaseId: kb.Id,
				Content:         tt.content,
				OriginalName:    tt.file,
				UploaderId:      1,
			})
			assert.True(t, xerr.Is(err, xerr.KindValidation), "got %v", err)
			assert.Equal(t, 0, f.blobs.Len())
		})
	}
}

func TestIngest_AccessChecks(t *testing.T) {
	f := newFixture(t)
	private := createKB(t, f, 1, entity.VisibilityPersonal)
	public := createKB(t, f, 1, entity.VisibilityPublic)

	tests := []struct {
		name string
		kbID int64
		kind xerr.Kind
	}{
		{"missing knowledge base", 999, xerr.KindNotFound},
		{"private knowledge base of another user", private.Id, xerr.KindAccessDenied},
		{"public knowledge base", public.Id, xerr.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ingest.Ingest(context.Background(), IngestInput{
				KnowledgeBaseId: tt.kbID,
				Content:         []byte("hello world"),
				OriginalName:    "a.md",
				UploaderId:      2,
			})
			if tt.kind == xerr.KindUnknown {
				assert.NoError(t, err)
				return
			}
			assert.True(t, xerr.Is(err, tt.kind), "got %v", err)
		})
	}
	assert.Equal(t, 1, f.blobs.Len())
}

func TestIngest_RollsBackBlobWhenPreparationFails(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		content string
		setup   func(f *fixture)
		kind    xerr.Kind
	}{
		{
			name:    "extraction error",
			content: threeParagraphs,
			setup:   func(f *fixture) { f.extractor.err = boom },
			kind:    xerr.KindValidation,
		},
		{
			name:    "no chunks",
			content: " \n\n \n\n ",
			setup:   func(f *fixture) {},
			kind:    xerr.KindValidation,
		},
		{
			name:    "embedding error",
			content: threeParagraphs,
			setup:   func(f *fixture) { f.embedder.err = boom },
			kind:    xerr.KindVectorStore,
		},
		{
			name:    "vector write error",
			content: threeParagraphs,
			setup: func(f *fixture) {
				f.registry.wrap = func(_ int64, c repository.VectorCollection) repository.VectorCollection {
					return &faultyCollection{VectorCollection: c, writeErr: boom}
				}
			},
			kind: xerr.KindVectorStore,
		},
		{
			name:    "open collection error",
			content: threeParagraphs,
			setup:   func(f *fixture) { f.registry.openErr[1] = xerr.VectorStore(boom, "open") },
			kind:    xerr.KindVectorStore,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			kb := createKB(t, f, 1, entity.VisibilityPersonal)
			require.Equal(t, int64(1), kb.Id)
			tt.setup(f)

			_, err := f.ingest.Ingest(context.Background(), IngestInput{
				KnowledgeBaseId: kb.Id,
				Content:         []byte(tt.content),
				OriginalName:    "a.txt",
				UploaderId:      1,
			})
			assert.True(t, xerr.Is(err, tt.kind), "got %v", err)
			assert.Equal(t, 0, f.blobs.Len())
			assert.Equal(t, 0, f.store.fileRows(kb.Id))
			assert.Equal(t, 0, f.store.kb(kb.Id).FileCount)
			assert.Empty(t, f.publisher.ofType(event.TypeBlobOrphaned))
		})
	}
}

func TestIngest_PersistFailureRollsBackVectorsAndBlob(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	f.store.failFileCreate = errors.New("connection reset")

	_, err := f.ingest.Ingest(context.Background(), IngestInput{
		KnowledgeBaseId: kb.Id,
		Content:         []byte(threeParagraphs),
		OriginalName:    "a.txt",
		UploaderId:      1,
	})
	assert.True(t, xerr.Is(err, xerr.KindPersistence), "got %v", err)
	assert.Equal(t, 0, vectorCount(t, f, kb.Id))
	assert.Equal(t, 0, f.blobs.Len())
	assert.Equal(t, 0, f.store.kb(kb.Id).FileCount)
}

func TestIngest_CancellationAfterWriteRollsBack(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.registry.wrap = func(_ int64, c repository.VectorCollection) repository.VectorCollection {
		return &faultyCollection{VectorCollection: c, afterWrite: cancel}
	}

	_, err := f.ingest.Ingest(ctx, IngestInput{
		KnowledgeBaseId: kb.Id,
		Content:         []byte(threeParagraphs),
		OriginalName:    "a.txt",
		UploaderId:      1,
	})
	assert.True(t, xerr.Is(err, xerr.KindVectorStore), "got %v", err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, vectorCount(t, f, kb.Id))
	assert.Equal(t, 0, f.blobs.Len())
	assert.Equal(t, 0, f.store.fileRows(kb.Id))
}

func TestIngest_FailedBlobRollbackPublishesOrphan(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	f.embedder.err = errors.New("rate limited")
	f.blobs.deleteErr = errors.New("minio unavailable")

	_, err := f.ingest.Ingest(context.Background(), IngestInput{
		KnowledgeBaseId: kb.Id,
		Content:         []byte(threeParagraphs),
		OriginalName:    "a.txt",
		UploaderId:      1,
	})
	require.Error(t, err)

	orphans := f.publisher.ofType(event.TypeBlobOrphaned)
	require.Len(t, orphans, 1)
	assert.Equal(t, kb.Id, orphans[0].KnowledgeBaseId)
	assert.True(t, strings.HasPrefix(orphans[0].BlobKey, "kb_files/"))
	assert.True(t, f.blobs.Has(orphans[0].BlobKey))
}

func TestIngestBatch_IsBestEffortPerFile(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)

	outcomes := f.ingest.IngestBatch(context.Background(), kb.Id, []FileUpload{
		{OriginalName: "a.txt", Content: []byte(threeParagraphs)},
		{OriginalName: "b.exe", Content: []byte("binary")},
		{OriginalName: "c.md", Content: []byte("# title\n\nbody")},
		{OriginalName: "d.txt", Content: nil},
	}, 1)

	require.Len(t, outcomes, 4)
	assert.NoError(t, outcomes[0].Err)
	assert.True(t, xerr.Is(outcomes[1].Err, xerr.KindValidation))
	assert.NoError(t, outcomes[2].Err)
	assert.True(t, xerr.Is(outcomes[3].Err, xerr.KindValidation))
	for i, o := range outcomes {
		assert.Equal(t, o.Err == nil, o.File != nil, "outcome %d", i)
	}
	assert.Equal(t, "b.exe", outcomes[1].OriginalName)

	assert.Equal(t, 2, f.store.kb(kb.Id).FileCount)
	assert.Equal(t, 2, f.store.fileRows(kb.Id))
	assert.Equal(t, 5, vectorCount(t, f, kb.Id))
}

func ingestText(t *testing.T, f *fixture, kbID int64, name, content string) *entity.KnowledgeBaseFile {
	t.Helper()
	file, err := f.ingest.Ingest(context.Background(), IngestInput{
		KnowledgeBaseId: kbID,
		Content:         []byte(content),
		OriginalName:    name,
		UploaderId:      1,
	})
	require.NoError(t, err)
	return file
}

func TestDeleteFile_RemovesVectorsBlobAndRow(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	file := ingestText(t, f, kb.Id, "a.txt", threeParagraphs)
	keep := ingestText(t, f, kb.Id, "b.txt", "unrelated bananas")

	require.NoError(t, f.ingest.DeleteFile(context.Background(), file.Id, 1))

	assert.False(t, f.store.hasFile(file.Id))
	assert.True(t, f.store.hasFile(keep.Id))
	assert.False(t, f.blobs.Has(file.StoredName))
	assert.Equal(t, 1, f.store.kb(kb.Id).FileCount)

	records, err := collectionOf(t, f, kb.Id).Get(context.Background(), file.VectorIds)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, vectorCount(t, f, kb.Id))
	assert.Len(t, f.publisher.ofType(event.TypeFileDeleted), 1)
}

func TestDeleteFile_CancelledAfterVectorsStillDeletesRow(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	file := ingestText(t, f, kb.Id, "a.txt", threeParagraphs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.registry.wrap = func(_ int64, c repository.VectorCollection) repository.VectorCollection {
		return &faultyCollection{VectorCollection: c, afterDelete: cancel}
	}

	require.NoError(t, f.ingest.DeleteFile(ctx, file.Id, 1))
	assert.Error(t, ctx.Err())
	assert.False(t, f.store.hasFile(file.Id))
	assert.False(t, f.blobs.Has(file.StoredName))
	assert.Equal(t, 0, f.store.kb(kb.Id).FileCount)
	assert.Equal(t, 0, vectorCount(t, f, kb.Id))
}

func TestDeleteFile_Errors(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	file := ingestText(t, f, kb.Id, "a.txt", threeParagraphs)

	assert.True(t, xerr.Is(f.ingest.DeleteFile(context.Background(), 999, 1), xerr.KindNotFound))
	assert.True(t, xerr.Is(f.ingest.DeleteFile(context.Background(), file.Id, 2), xerr.KindAccessDenied))
	assert.True(t, f.store.hasFile(file.Id))
}

func TestDeleteFile_VectorFailureKeepsRow(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	file := ingestText(t, f, kb.Id, "a.txt", threeParagraphs)

	f.registry.wrap = func(_ int64, c repository.VectorCollection) repository.VectorCollection {
		return &faultyCollection{VectorCollection: c, deleteErr: errors.New("milvus timeout")}
	}
	err := f.ingest.DeleteFile(context.Background(), file.Id, 1)
	assert.True(t, xerr.Is(err, xerr.KindVectorStore), "got %v", err)

	assert.True(t, f.store.hasFile(file.Id))
	assert.True(t, f.blobs.Has(file.StoredName))
	assert.Equal(t, 1, f.store.kb(kb.Id).FileCount)
	assert.Equal(t, 3, vectorCount(t, f, kb.Id))
}

func TestDeleteFile_BlobFailureStillDeletesRow(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	file := ingestText(t, f, kb.Id, "a.txt", threeParagraphs)
	f.blobs.deleteErr = errors.New("minio unavailable")

	require.NoError(t, f.ingest.DeleteFile(context.Background(), file.Id, 1))
	assert.False(t, f.store.hasFile(file.Id))
	assert.Equal(t, 0, f.store.kb(kb.Id).FileCount)

	orphans := f.publisher.ofType(event.TypeBlobOrphaned)
	require.Len(t, orphans, 1)
	assert.Equal(t, file.StoredName, orphans[0].BlobKey)
	assert.Equal(t, file.Id, orphans[0].FileId)
}

func TestDeleteFile_RetriesRowDelete(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		wantKind xerr.Kind
		wantRow  bool
	}{
		{"succeeds after transient failures", 2, xerr.KindUnknown, false},
		{"gives up after bounded attempts", 5, xerr.KindPersistence, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			kb := createKB(t, f, 1, entity.VisibilityPersonal)
			file := ingestText(t, f, kb.Id, "a.txt", threeParagraphs)
			f.store.failFileDeleteTimes = tt.failures

			err := f.ingest.DeleteFile(context.Background(), file.Id, 1)
			if tt.wantKind == xerr.KindUnknown {
				assert.NoError(t, err)
			} else {
				assert.True(t, xerr.Is(err, tt.wantKind), "got %v", err)
			}
			assert.Equal(t, tt.wantRow, f.store.hasFile(file.Id))
			assert.Equal(t, f.store.fileRows(kb.Id), f.store.kb(kb.Id).FileCount)
		})
	}
}

func TestDeleteAllFiles_ContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		ingestText(t, f, kb.Id, name, threeParagraphs)
	}

	failed := false
	f.registry.wrap = func(_ int64, c repository.VectorCollection) repository.VectorCollection {
		if !failed {
			failed = true
			return &faultyCollection{VectorCollection: c, deleteErr: errors.New("milvus timeout")}
		}
		return c
	}

	deleted, err := f.ingest.DeleteAllFilesForKnowledgeBase(context.Background(), kb.Id, 1)
	assert.Equal(t, 2, deleted)
	require.Error(t, err)
	assert.True(t, xerr.Is(err, xerr.KindVectorStore))
	assert.Equal(t, 1, f.store.fileRows(kb.Id))
	assert.Equal(t, 1, f.store.kb(kb.Id).FileCount)
}

func TestFileCountTracksLiveRows(t *testing.T) {
	f := newFixture(t)
	kb := createKB(t, f, 1, entity.VisibilityPersonal)
	var files []*entity.KnowledgeBaseFile
	for _, name := range []string{"a.txt", "b.md", "c.txt", "d.md"} {
		files = append(files, ingestText(t, f, kb.Id, name, threeParagraphs))
	}
	f.store.failFileCreate = errors.New("disk full")
	_, err := f.ingest.Ingest(context.Background(), IngestInput{KnowledgeBaseId: kb.Id, Content: []byte("x"), OriginalName: "e.txt", UploaderId: 1})
	require.Error(t, err)
	f.store.failFileCreate = nil

	require.NoError(t, f.ingest.DeleteFile(context.Background(), files[1].Id, 1))
	require.NoError(t, f.ingest.DeleteFile(context.Background(), files[3].Id, 1))
	// 重复删除返回 NotFound，计数不变
	assert.True(t, xerr.Is(f.ingest.DeleteFile(context.Background(), files[3].Id, 1), xerr.KindNotFound))

	assert.Equal(t, 2, f.store.fileRows(kb.Id))
	assert.Equal(t, 2, f.store.kb(kb.Id).FileCount)
}
