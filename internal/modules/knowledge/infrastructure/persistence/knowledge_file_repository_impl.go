package persistence

import (
	"context"
	"errors"

	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"

	"gorm.io/gorm"
)

type knowledgeFileRepositoryImpl struct {
	db *gorm.DB
}

func NewKnowledgeFileRepository(db *gorm.DB) repository.KnowledgeFileRepository {
	return &knowledgeFileRepositoryImpl{db: db}
}

func (r *knowledgeFileRepositoryImpl) Create(ctx context.Context, f *entity.KnowledgeBaseFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *knowledgeFileRepositoryImpl) GetByID(ctx context.Context, id int64) (*entity.KnowledgeBaseFile, error) {
	var f entity.KnowledgeBaseFile
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&f).Error
	if err == nil {
		return &f, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *knowledgeFileRepositoryImpl) ListByKnowledgeBase(ctx context.Context, kbID int64) ([]entity.KnowledgeBaseFile, error) {
	var list []entity.KnowledgeBaseFile
	err := r.db.WithContext(ctx).
		Where("knowledge_base_id = ?", kbID).
		Order("created_at DESC").Order("id DESC").
		Find(&list).Error
	return list, err
}

func (r *knowledgeFileRepositoryImpl) CountByKnowledgeBase(ctx context.Context, kbID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.KnowledgeBaseFile{}).
		Where("knowledge_base_id = ?", kbID).
		Count(&n).Error
	return n, err
}

func (r *knowledgeFileRepositoryImpl) Delete(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.KnowledgeBaseFile{})
	return res.RowsAffected, res.Error
}
