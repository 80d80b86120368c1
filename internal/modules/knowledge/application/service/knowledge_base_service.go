package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"KnowledgeHub/internal/modules/knowledge/application/dto/request"
	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/util"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

const (
	maxDisplayNameRunes = 200
	maxDescriptionRunes = 1000
	maxSlugBaseLen      = 64
)

type KnowledgeBaseService interface {
	Create(ctx context.Context, userID int64, req request.CreateKnowledgeBaseRequest) (*entity.KnowledgeBase, error)
	Get(ctx context.Context, kbID, userID int64) (*entity.KnowledgeBase, error)
	ListAccessible(ctx context.Context, userID int64) ([]entity.KnowledgeBase, error)
	Search(ctx context.Context, userID int64, keyword string) ([]entity.KnowledgeBase, error)
	Update(ctx context.Context, kbID, userID int64, req request.UpdateKnowledgeBaseRequest) (*entity.KnowledgeBase, error)
	// Delete 先删文件（向量、对象、记录），再删集合和知识库记录
	Delete(ctx context.Context, kbID, userID int64) error
	ValidateAccess(ctx context.Context, kbID, userID int64) (*entity.KnowledgeBase, error)
	// FixFileCount 按实际文件行数修正 file_count
	FixFileCount(ctx context.Context) (int64, error)

	ListFiles(ctx context.Context, kbID, userID int64) ([]entity.KnowledgeBaseFile, error)
	GetFile(ctx context.Context, fileID, userID int64) (*entity.KnowledgeBaseFile, error)
	CountFiles(ctx context.Context, kbID, userID int64) (int64, error)
}

type knowledgeBaseServiceImpl struct {
	kbRepo      repository.KnowledgeBaseRepository
	fileRepo    repository.KnowledgeFileRepository
	collections repository.CollectionRegistry
	ingest      IngestService
}

func NewKnowledgeBaseService(kbRepo repository.KnowledgeBaseRepository, fileRepo repository.KnowledgeFileRepository, collections repository.CollectionRegistry, ingest IngestService) KnowledgeBaseService {
	return &knowledgeBaseServiceImpl{kbRepo: kbRepo, fileRepo: fileRepo, collections: collections, ingest: ingest}
}

func (s *knowledgeBaseServiceImpl) Create(ctx context.Context, userID int64, req request.CreateKnowledgeBaseRequest) (*entity.KnowledgeBase, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	description := strings.TrimSpace(req.Description)
	if err := validateKnowledgeBaseFields(displayName, description); err != nil {
		return nil, err
	}
	visibility := entity.VisibilityPersonal
	if v := strings.ToUpper(strings.TrimSpace(req.Visibility)); v != "" {
		visibility = entity.Visibility(v)
		if !visibility.Valid() {
			return nil, xerr.Validationf("不支持的可见性: %s", req.Visibility)
		}
	}

	now := time.Now()
	kb := &entity.KnowledgeBase{
		Name:        slugOf(displayName, now),
		DisplayName: displayName,
		Description: description,
		Visibility:  visibility,
		OwnerId:     userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.kbRepo.Create(ctx, kb); err != nil {
		return nil, xerr.Persistence(err, "创建知识库失败")
	}

	// 集合名依赖自增 id，插入后只赋值一次
	name := entity.CollectionName(kb.Id)
	if err := s.kbRepo.SetCollectionName(ctx, kb.Id, name); err != nil {
		s.discard(ctx, kb.Id)
		return nil, xerr.Persistence(err, "创建知识库失败")
	}
	if err := s.collections.Create(ctx, kb.Id, name); err != nil {
		s.discard(ctx, kb.Id)
		return nil, err
	}
	kb.VectorCollectionName = name

	zlog.Info("knowledge base created", zap.Int64("kb_id", kb.Id), zap.Int64("owner_id", userID), zap.String("collection", name))
	return kb, nil
}

func (s *knowledgeBaseServiceImpl) discard(ctx context.Context, kbID int64) {
	if err := s.kbRepo.Delete(context.WithoutCancel(ctx), kbID); err != nil {
		zlog.Error("discard knowledge base row failed", zap.Int64("kb_id", kbID), zap.Error(err))
	}
}

func (s *knowledgeBaseServiceImpl) Get(ctx context.Context, kbID, userID int64) (*entity.KnowledgeBase, error) {
	return loadAccessible(ctx, s.kbRepo, kbID, userID)
}

func (s *knowledgeBaseServiceImpl) ValidateAccess(ctx context.Context, kbID, userID int64) (*entity.KnowledgeBase, error) {
	return loadAccessible(ctx, s.kbRepo, kbID, userID)
}

func (s *knowledgeBaseServiceImpl) ListAccessible(ctx context.Context, userID int64) ([]entity.KnowledgeBase, error) {
	list, err := s.kbRepo.ListAccessible(ctx, userID)
	if err != nil {
		return nil, xerr.Persistence(err, "查询知识库列表失败")
	}
	return list, nil
}

func (s *knowledgeBaseServiceImpl) Search(ctx context.Context, userID int64, keyword string) ([]entity.KnowledgeBase, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.ListAccessible(ctx, userID)
	}
	list, err := s.kbRepo.Search(ctx, userID, keyword)
	if err != nil {
		return nil, xerr.Persistence(err, "搜索知识库失败")
	}
	return list, nil
}

func (s *knowledgeBaseServiceImpl) Update(ctx context.Context, kbID, userID int64, req request.UpdateKnowledgeBaseRequest) (*entity.KnowledgeBase, error) {
	kb, err := loadOwned(ctx, s.kbRepo, kbID, userID)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(req.DisplayName); v != "" {
		kb.DisplayName = v
	}
	if req.Description != nil {
		kb.Description = strings.TrimSpace(*req.Description)
	}
	if v := strings.ToUpper(strings.TrimSpace(req.Visibility)); v != "" {
		kb.Visibility = entity.Visibility(v)
		if !kb.Visibility.Valid() {
			return nil, xerr.Validationf("不支持的可见性: %s", req.Visibility)
		}
	}
	if err := validateKnowledgeBaseFields(kb.DisplayName, kb.Description); err != nil {
		return nil, err
	}
	kb.UpdatedAt = time.Now()
	if err := s.kbRepo.Update(ctx, kb); err != nil {
		return nil, xerr.Persistence(err, "更新知识库失败")
	}
	return kb, nil
}

func (s *knowledgeBaseServiceImpl) Delete(ctx context.Context, kbID, userID int64) error {
	kb, err := loadOwned(ctx, s.kbRepo, kbID, userID)
	if err != nil {
		return err
	}
	deleted, err := s.ingest.DeleteAllFilesForKnowledgeBase(ctx, kbID, userID)
	if err != nil {
		// 还有文件记录时保留知识库，避免文件失去归属
		return err
	}
	if err := s.collections.Drop(ctx, kbID, kb.VectorCollectionName); err != nil {
		zlog.Warn("drop collection failed, continue deleting knowledge base", zap.Int64("kb_id", kbID), zap.Error(err))
	}
	if err := s.kbRepo.Delete(ctx, kbID); err != nil {
		return xerr.Persistence(err, "删除知识库失败")
	}
	zlog.Info("knowledge base deleted", zap.Int64("kb_id", kbID), zap.Int("files", deleted))
	return nil
}

func (s *knowledgeBaseServiceImpl) FixFileCount(ctx context.Context) (int64, error) {
	fixed, err := s.kbRepo.RecomputeFileCounts(ctx)
	if err != nil {
		return 0, xerr.Persistence(err, "修正知识库文件数失败")
	}
	zlog.Info("knowledge base file count fixed", zap.Int64("fixed", fixed))
	return fixed, nil
}

func (s *knowledgeBaseServiceImpl) ListFiles(ctx context.Context, kbID, userID int64) ([]entity.KnowledgeBaseFile, error) {
	if _, err := loadAccessible(ctx, s.kbRepo, kbID, userID); err != nil {
		return nil, err
	}
	files, err := s.fileRepo.ListByKnowledgeBase(ctx, kbID)
	if err != nil {
		return nil, xerr.Persistence(err, "查询知识库文件失败")
	}
	return files, nil
}

func (s *knowledgeBaseServiceImpl) GetFile(ctx context.Context, fileID, userID int64) (*entity.KnowledgeBaseFile, error) {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return nil, xerr.Persistence(err, "查询文件失败")
	}
	if file == nil {
		return nil, xerr.NotFoundf("文件不存在: %d", fileID)
	}
	if _, err := loadAccessible(ctx, s.kbRepo, file.KnowledgeBaseId, userID); err != nil {
		return nil, err
	}
	return file, nil
}

func (s *knowledgeBaseServiceImpl) CountFiles(ctx context.Context, kbID, userID int64) (int64, error) {
	if _, err := loadAccessible(ctx, s.kbRepo, kbID, userID); err != nil {
		return 0, err
	}
	n, err := s.fileRepo.CountByKnowledgeBase(ctx, kbID)
	if err != nil {
		return 0, xerr.Persistence(err, "统计知识库文件失败")
	}
	return n, nil
}

func validateKnowledgeBaseFields(displayName, description string) error {
	if displayName == "" {
		return xerr.Validation("知识库名称不能为空")
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameRunes {
		return xerr.Validationf("知识库名称不能超过 %d 个字符", maxDisplayNameRunes)
	}
	if utf8.RuneCountInString(description) > maxDescriptionRunes {
		return xerr.Validationf("知识库描述不能超过 %d 个字符", maxDescriptionRunes)
	}
	return nil
}

// slugOf 小写字母数字 + 毫秒时间戳 + 8 位随机串，保证唯一
func slugOf(displayName string, now time.Time) string {
	var b strings.Builder
	for _, r := range strings.ToLower(displayName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= maxSlugBaseLen {
				break
			}
		}
	}
	base := b.String()
	if base == "" {
		base = "kb"
	}
	return fmt.Sprintf("%s_%d_%s", base, now.UnixMilli(), util.GenerateShortUUID()[:8])
}
