package repository

import (
	"context"

	"KnowledgeHub/internal/modules/knowledge/domain/entity"
)

// 查询不到记录时返回 (nil, nil)

type KnowledgeBaseRepository interface {
	Create(ctx context.Context, kb *entity.KnowledgeBase) error
	GetByID(ctx context.Context, id int64) (*entity.KnowledgeBase, error)
	ListAccessible(ctx context.Context, userID int64) ([]entity.KnowledgeBase, error)
	Search(ctx context.Context, userID int64, keyword string) ([]entity.KnowledgeBase, error)
	Update(ctx context.Context, kb *entity.KnowledgeBase) error
	SetCollectionName(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
	IncrementFileCount(ctx context.Context, id int64, delta int) error
	// RecomputeFileCounts 按实际文件行数修正 file_count，返回被修正的知识库数量
	RecomputeFileCounts(ctx context.Context) (int64, error)
}

type KnowledgeFileRepository interface {
	Create(ctx context.Context, f *entity.KnowledgeBaseFile) error
	GetByID(ctx context.Context, id int64) (*entity.KnowledgeBaseFile, error)
	ListByKnowledgeBase(ctx context.Context, kbID int64) ([]entity.KnowledgeBaseFile, error)
	CountByKnowledgeBase(ctx context.Context, kbID int64) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

// KnowledgeUnitOfWork 在同一事务内操作知识库与文件
type KnowledgeUnitOfWork interface {
	Transaction(ctx context.Context, fn func(kbRepo KnowledgeBaseRepository, fileRepo KnowledgeFileRepository) error) error
}
