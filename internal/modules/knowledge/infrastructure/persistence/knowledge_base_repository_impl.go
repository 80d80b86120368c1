package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"

	"gorm.io/gorm"
)

type knowledgeBaseRepositoryImpl struct {
	db *gorm.DB
}

func NewKnowledgeBaseRepository(db *gorm.DB) repository.KnowledgeBaseRepository {
	return &knowledgeBaseRepositoryImpl{db: db}
}

func (r *knowledgeBaseRepositoryImpl) Create(ctx context.Context, kb *entity.KnowledgeBase) error {
	return r.db.WithContext(ctx).Create(kb).Error
}

func (r *knowledgeBaseRepositoryImpl) GetByID(ctx context.Context, id int64) (*entity.KnowledgeBase, error) {
	var kb entity.KnowledgeBase
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&kb).Error
	if err == nil {
		return &kb, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *knowledgeBaseRepositoryImpl) ListAccessible(ctx context.Context, userID int64) ([]entity.KnowledgeBase, error) {
	var list []entity.KnowledgeBase
	err := r.db.WithContext(ctx).
		Where("owner_id = ? OR visibility = ?", userID, entity.VisibilityPublic).
		Order("updated_at DESC").Order("id DESC").
		Find(&list).Error
	return list, err
}

func (r *knowledgeBaseRepositoryImpl) Search(ctx context.Context, userID int64, keyword string) ([]entity.KnowledgeBase, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return r.ListAccessible(ctx, userID)
	}
	like := "%" + keyword + "%"
	var list []entity.KnowledgeBase
	err := r.db.WithContext(ctx).
		Where("(owner_id = ? OR visibility = ?) AND (display_name LIKE ? OR description LIKE ?)", userID, entity.VisibilityPublic, like, like).
		Order("updated_at DESC").Order("id DESC").
		Find(&list).Error
	return list, err
}

func (r *knowledgeBaseRepositoryImpl) Update(ctx context.Context, kb *entity.KnowledgeBase) error {
	return r.db.WithContext(ctx).Model(&entity.KnowledgeBase{}).
		Where("id = ?", kb.Id).
		Updates(map[string]any{
			"display_name": kb.DisplayName,
			"description":  kb.Description,
			"visibility":   kb.Visibility,
			"updated_at":   time.Now(),
		}).Error
}

func (r *knowledgeBaseRepositoryImpl) SetCollectionName(ctx context.Context, id int64, name string) error {
	return r.db.WithContext(ctx).Model(&entity.KnowledgeBase{}).
		Where("id = ?", id).
		Updates(map[string]any{"vector_collection_name": name, "updated_at": time.Now()}).Error
}

func (r *knowledgeBaseRepositoryImpl) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.KnowledgeBase{}).Error
}

func (r *knowledgeBaseRepositoryImpl) IncrementFileCount(ctx context.Context, id int64, delta int) error {
	return r.db.WithContext(ctx).Model(&entity.KnowledgeBase{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"file_count": gorm.Expr("GREATEST(file_count + ?, 0)", delta),
			"updated_at": time.Now(),
		}).Error
}

const recomputeFileCountSQL = `UPDATE tb_knowledge_base kb
SET kb.file_count = (SELECT COUNT(*) FROM tb_knowledge_base_file f WHERE f.knowledge_base_id = kb.id), kb.updated_at = ?
WHERE kb.file_count <> (SELECT COUNT(*) FROM tb_knowledge_base_file f WHERE f.knowledge_base_id = kb.id)`

func (r *knowledgeBaseRepositoryImpl) RecomputeFileCounts(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(recomputeFileCountSQL, time.Now())
	return res.RowsAffected, res.Error
}
