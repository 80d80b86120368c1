package persistence

import (
	"context"

	"KnowledgeHub/internal/modules/knowledge/domain/repository"

	"gorm.io/gorm"
)

type knowledgeUnitOfWorkImpl struct {
	db *gorm.DB
}

func NewKnowledgeUnitOfWork(db *gorm.DB) repository.KnowledgeUnitOfWork {
	return &knowledgeUnitOfWorkImpl{db: db}
}

func (u *knowledgeUnitOfWorkImpl) Transaction(ctx context.Context, fn func(kbRepo repository.KnowledgeBaseRepository, fileRepo repository.KnowledgeFileRepository) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewKnowledgeBaseRepository(tx), NewKnowledgeFileRepository(tx))
	})
}
