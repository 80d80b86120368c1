package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/internal/modules/knowledge/domain/event"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/metrics"
	"KnowledgeHub/pkg/retry"
	"KnowledgeHub/pkg/util"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const blobKeyPrefix = "kb_files/"

var allowedFileTypes = map[string]string{
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"txt":  "text/plain; charset=utf-8",
	"md":   "text/markdown; charset=utf-8",
}

type IngestInput struct {
	KnowledgeBaseId int64
	Content         []byte
	OriginalName    string
	UploaderId      int64
}

type FileUpload struct {
	OriginalName string
	Content      []byte
}

// IngestOutcome 批量入库中单个文件的结果，File 与 Err 二选一
type IngestOutcome struct {
	OriginalName string
	File         *entity.KnowledgeBaseFile
	Err          error
}

// IngestService 文档入库与删除
type IngestService interface {
	// Ingest 抽取、切分、向量化并写入知识库；任一步失败都会回滚已完成的步骤
	Ingest(ctx context.Context, in IngestInput) (*entity.KnowledgeBaseFile, error)
	// IngestBatch 逐个文件尽力而为，成功的文件不会因为其他文件失败而回滚
	IngestBatch(ctx context.Context, kbID int64, uploads []FileUpload, uploaderID int64) []IngestOutcome
	// DeleteFile 按 向量 -> 对象 -> 记录 的顺序删除
	DeleteFile(ctx context.Context, fileID, userID int64) error
	DeleteAllFilesForKnowledgeBase(ctx context.Context, kbID, userID int64) (int, error)
}

type IngestDeps struct {
	KnowledgeBases repository.KnowledgeBaseRepository
	Files          repository.KnowledgeFileRepository
	UnitOfWork     repository.KnowledgeUnitOfWork
	Collections    repository.CollectionRegistry
	Blobs          repository.BlobStore
	Extractor      repository.TextExtractor
	Chunker        repository.Chunker
	Embedder       embedding.Embedder
	Publisher      event.Publisher
}

type ingestServiceImpl struct {
	IngestDeps
	conf config.IngestConfig

	rollbackTimeout time.Duration
	deleteAttempts  int
	deleteBackoff   time.Duration
}

func NewIngestService(deps IngestDeps, conf config.IngestConfig) IngestService {
	if conf.EmbedBatchSize <= 0 {
		conf.EmbedBatchSize = 16
	}
	if conf.Workers <= 0 {
		conf.Workers = 4
	}
	if conf.MaxFileSizeMB <= 0 {
		conf.MaxFileSizeMB = 50
	}
	return &ingestServiceImpl{
		IngestDeps:      deps,
		conf:            conf,
		rollbackTimeout: 30 * time.Second,
		deleteAttempts:  3,
		deleteBackoff:   200 * time.Millisecond,
	}
}

func (s *ingestServiceImpl) Ingest(ctx context.Context, in IngestInput) (*entity.KnowledgeBaseFile, error) {
	start := time.Now()
	file, err := s.ingest(ctx, in)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IngestFiles.WithLabelValues("failed").Inc()
		zlog.Warn("ingest failed",
			zap.Int64("kb_id", in.KnowledgeBaseId),
			zap.String("file_name", in.OriginalName),
			zap.String("kind", xerr.KindOf(err).String()),
			zap.Error(err))
		return nil, err
	}
	metrics.IngestFiles.WithLabelValues("succeeded").Inc()
	metrics.IngestChunks.Add(float64(len(file.VectorIds)))
	zlog.Info("ingest succeeded",
		zap.Int64("kb_id", file.KnowledgeBaseId),
		zap.Int64("file_id", file.Id),
		zap.Int("vectors", len(file.VectorIds)),
		zap.Duration("cost", time.Since(start)))
	s.publish(ctx, event.KnowledgeEvent{
		Type:            event.TypeFileIngested,
		KnowledgeBaseId: file.KnowledgeBaseId,
		FileId:          file.Id,
		FileName:        file.OriginalName,
		BlobKey:         file.StoredName,
		VectorCount:     len(file.VectorIds),
	})
	return file, nil
}

func (s *ingestServiceImpl) ingest(ctx context.Context, in IngestInput) (*entity.KnowledgeBaseFile, error) {
	// 1. 校验，不做任何 I/O
	fileType, err := s.validateUpload(in.OriginalName, in.Content)
	if err != nil {
		return nil, err
	}

	// 2. 权限
	if _, err := loadAccessible(ctx, s.KnowledgeBases, in.KnowledgeBaseId, in.UploaderId); err != nil {
		return nil, err
	}

	// 3. 上传原始文件
	blobKey := fmt.Sprintf("%s%d_%s.%s", blobKeyPrefix, time.Now().UnixMilli(), util.GenerateShortUUID(), fileType)
	blobURL, err := s.Blobs.Put(ctx, blobKey, in.Content, allowedFileTypes[fileType])
	if err != nil {
		return nil, xerr.BlobStore(err, "文件上传失败")
	}

	// 4. 抽取、切分、向量化
	chunks, err := s.prepareChunks(ctx, in, fileType)
	if err != nil {
		s.compensate(ctx, in.KnowledgeBaseId, nil, nil, blobKey, in.OriginalName, "chunk preparation failed")
		return nil, err
	}
	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		s.compensate(ctx, in.KnowledgeBaseId, nil, nil, blobKey, in.OriginalName, "embedding failed")
		return nil, xerr.VectorStore(err, "文本向量化失败")
	}

	// 5. 一次批量写入向量
	coll, err := s.Collections.GetOrCreate(ctx, in.KnowledgeBaseId)
	if err != nil {
		s.compensate(ctx, in.KnowledgeBaseId, nil, nil, blobKey, in.OriginalName, "open collection failed")
		return nil, err
	}
	records := make([]repository.VectorRecord, len(chunks))
	plannedIDs := make([]string, len(chunks))
	for i, c := range chunks {
		plannedIDs[i] = util.GenerateUUID()
		records[i] = repository.VectorRecord{ID: plannedIDs[i], Text: c.Text, Metadata: c.Metadata, Vector: vectors[i]}
	}
	vectorIDs, err := coll.Write(ctx, records)
	if err == nil && len(vectorIDs) != len(chunks) {
		err = fmt.Errorf("vector write returned %d ids for %d chunks", len(vectorIDs), len(chunks))
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		// 写入可能部分成功，按预分配的 id 清理
		s.compensate(ctx, in.KnowledgeBaseId, coll, plannedIDs, blobKey, in.OriginalName, "vector write failed")
		return nil, xerr.VectorStore(err, "向量写入失败")
	}

	// 6. 文件记录与 file_count 同一事务
	now := time.Now()
	file := &entity.KnowledgeBaseFile{
		KnowledgeBaseId: in.KnowledgeBaseId,
		StoredName:      blobKey,
		OriginalName:    in.OriginalName,
		BlobURL:         blobURL,
		SizeBytes:       int64(len(in.Content)),
		FileType:        fileType,
		VectorIds:       vectorIDs,
		UploaderId:      in.UploaderId,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.UnitOfWork.Transaction(ctx, func(kbRepo repository.KnowledgeBaseRepository, fileRepo repository.KnowledgeFileRepository) error {
		if err := fileRepo.Create(ctx, file); err != nil {
			return err
		}
		return kbRepo.IncrementFileCount(ctx, in.KnowledgeBaseId, 1)
	})
	if err != nil {
		s.compensate(ctx, in.KnowledgeBaseId, coll, vectorIDs, blobKey, in.OriginalName, "persist file failed")
		return nil, xerr.Persistence(err, "保存文件记录失败")
	}
	return file, nil
}

func (s *ingestServiceImpl) validateUpload(name string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", xerr.Validation("文件内容为空")
	}
	if limit := int64(s.conf.MaxFileSizeMB) << 20; int64(len(content)) > limit {
		return "", xerr.Validationf("文件大小超过限制: %dMB", s.conf.MaxFileSizeMB)
	}
	if strings.TrimSpace(name) == "" {
		return "", xerr.Validation("文件名不能为空")
	}
	fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if _, ok := allowedFileTypes[fileType]; !ok {
		return "", xerr.Validationf("不支持的文件类型: %s", name)
	}
	return fileType, nil
}

func (s *ingestServiceImpl) prepareChunks(ctx context.Context, in IngestInput, fileType string) ([]entity.DocumentChunk, error) {
	text, err := s.Extractor.Extract(ctx, fileType, in.Content)
	if err != nil {
		return nil, xerr.Validationf("文件解析失败: %v", err)
	}
	pieces, err := s.Chunker.Split(ctx, text)
	if err != nil {
		return nil, xerr.Validationf("文本切分失败: %v", err)
	}
	if len(pieces) == 0 {
		return nil, xerr.Validation("文件中没有可入库的文本")
	}
	chunks := make([]entity.DocumentChunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = entity.DocumentChunk{
			Text:    p,
			Ordinal: i,
			Metadata: map[string]any{
				entity.MetaKnowledgeBaseID: in.KnowledgeBaseId,
				entity.MetaFileName:        in.OriginalName,
				entity.MetaFileType:        fileType,
				entity.MetaChunkIndex:      i,
			},
		}
	}
	return chunks, nil
}

// embedAll 分批向量化，校验数量与维度一致
func (s *ingestServiceImpl) embedAll(ctx context.Context, chunks []entity.DocumentChunk) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	dim := 0
	for start := 0; start < len(chunks); start += s.conf.EmbedBatchSize {
		end := min(start+s.conf.EmbedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := s.Embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for _, v := range vecs {
			if len(v) == 0 {
				return nil, errors.New("embedder returned an empty vector")
			}
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, fmt.Errorf("inconsistent vector dim, got=%d want=%d", len(v), dim)
			}
			f := make([]float32, len(v))
			for i := range v {
				f[i] = float32(v[i])
			}
			out = append(out, f)
		}
	}
	return out, nil
}

// compensate 在脱离调用方取消的上下文中执行补偿删除
func (s *ingestServiceImpl) compensate(ctx context.Context, kbID int64, coll repository.VectorCollection, vectorIDs []string, blobKey, fileName, reason string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.rollbackTimeout)
	defer cancel()

	if coll != nil && len(vectorIDs) > 0 {
		if err := coll.Delete(cctx, vectorIDs); err != nil {
			metrics.RollbackFailures.WithLabelValues("vectors").Inc()
			zlog.Error("rollback vectors failed",
				zap.Int64("kb_id", kbID),
				zap.String("collection", coll.Name()),
				zap.Int("vectors", len(vectorIDs)),
				zap.Error(err))
		}
	}
	if blobKey == "" {
		return
	}
	if err := s.Blobs.Delete(cctx, blobKey); err != nil {
		metrics.RollbackFailures.WithLabelValues("blob").Inc()
		zlog.Error("rollback blob failed", zap.Int64("kb_id", kbID), zap.String("blob_key", blobKey), zap.Error(err))
		s.reportOrphan(cctx, kbID, 0, blobKey, fileName, reason)
	}
}

func (s *ingestServiceImpl) reportOrphan(ctx context.Context, kbID, fileID int64, blobKey, fileName, reason string) {
	metrics.OrphanBlobs.WithLabelValues("reported").Inc()
	s.publish(ctx, event.KnowledgeEvent{
		Type:            event.TypeBlobOrphaned,
		KnowledgeBaseId: kbID,
		FileId:          fileID,
		FileName:        fileName,
		BlobKey:         blobKey,
		Reason:          reason,
	})
}

func (s *ingestServiceImpl) publish(ctx context.Context, ev event.KnowledgeEvent) {
	if s.Publisher == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	if err := s.Publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		zlog.Warn("publish knowledge event failed", zap.String("type", string(ev.Type)), zap.Int64("kb_id", ev.KnowledgeBaseId), zap.Error(err))
	}
}

func (s *ingestServiceImpl) IngestBatch(ctx context.Context, kbID int64, uploads []FileUpload, uploaderID int64) []IngestOutcome {
	outcomes := make([]IngestOutcome, len(uploads))
	var g errgroup.Group
	g.SetLimit(s.conf.Workers)
	for i, up := range uploads {
		g.Go(func() error {
			outcomes[i].OriginalName = up.OriginalName
			file, err := s.Ingest(ctx, IngestInput{
				KnowledgeBaseId: kbID,
				Content:         up.Content,
				OriginalName:    up.OriginalName,
				UploaderId:      uploaderID,
			})
			outcomes[i].File = file
			outcomes[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *ingestServiceImpl) DeleteFile(ctx context.Context, fileID, userID int64) error {
	file, err := s.Files.GetByID(ctx, fileID)
	if err != nil {
		return xerr.Persistence(err, "查询文件失败")
	}
	if file == nil {
		return xerr.NotFoundf("文件不存在: %d", fileID)
	}
	if _, err := loadAccessible(ctx, s.KnowledgeBases, file.KnowledgeBaseId, userID); err != nil {
		return err
	}
	return s.deleteFile(ctx, file)
}

func (s *ingestServiceImpl) deleteFile(ctx context.Context, file *entity.KnowledgeBaseFile) error {
	// 1. 向量；失败时记录保持不变，可以重试
	if len(file.VectorIds) > 0 {
		coll, err := s.Collections.GetOrCreate(ctx, file.KnowledgeBaseId)
		if err != nil {
			return err
		}
		if err := coll.Delete(ctx, file.VectorIds); err != nil {
			return xerr.VectorStore(err, "删除向量失败")
		}
	}

	// 向量已删除，后续步骤不再受调用方取消影响
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.rollbackTimeout)
	defer cancel()

	// 2. 原始文件；失败不阻断
	if file.StoredName != "" {
		if err := s.Blobs.Delete(ctx, file.StoredName); err != nil {
			zlog.Error("delete blob failed, leaving orphan",
				zap.Int64("kb_id", file.KnowledgeBaseId),
				zap.Int64("file_id", file.Id),
				zap.String("blob_key", file.StoredName),
				zap.Error(err))
			s.reportOrphan(ctx, file.KnowledgeBaseId, file.Id, file.StoredName, file.OriginalName, "delete file")
		}
	}

	// 3. 记录与 file_count 同一事务，有限重试
	err := retry.Do(ctx, s.deleteAttempts, s.deleteBackoff, func(ctx context.Context) error {
		return s.UnitOfWork.Transaction(ctx, func(kbRepo repository.KnowledgeBaseRepository, fileRepo repository.KnowledgeFileRepository) error {
			n, err := fileRepo.Delete(ctx, file.Id)
			if err != nil {
				return err
			}
			if n == 0 {
				// 已被并发删除
				return nil
			}
			return kbRepo.IncrementFileCount(ctx, file.KnowledgeBaseId, -1)
		})
	})
	if err != nil {
		return xerr.Persistence(err, "删除文件记录失败")
	}

	zlog.Info("file deleted", zap.Int64("kb_id", file.KnowledgeBaseId), zap.Int64("file_id", file.Id), zap.Int("vectors", len(file.VectorIds)))
	s.publish(ctx, event.KnowledgeEvent{
		Type:            event.TypeFileDeleted,
		KnowledgeBaseId: file.KnowledgeBaseId,
		FileId:          file.Id,
		FileName:        file.OriginalName,
		BlobKey:         file.StoredName,
		VectorCount:     len(file.VectorIds),
	})
	return nil
}

func (s *ingestServiceImpl) DeleteAllFilesForKnowledgeBase(ctx context.Context, kbID, userID int64) (int, error) {
	if _, err := loadAccessible(ctx, s.KnowledgeBases, kbID, userID); err != nil {
		return 0, err
	}
	files, err := s.Files.ListByKnowledgeBase(ctx, kbID)
	if err != nil {
		return 0, xerr.Persistence(err, "查询知识库文件失败")
	}

	var (
		deleted int
		errs    []error
	)
	for i := range files {
		if err := s.deleteFile(ctx, &files[i]); err != nil {
			errs = append(errs, fmt.Errorf("file %d: %w", files[i].Id, err))
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		zlog.Warn("delete all files partially failed", zap.Int64("kb_id", kbID), zap.Int("deleted", deleted), zap.Int("failed", len(errs)))
	}
	return deleted, errors.Join(errs...)
}
