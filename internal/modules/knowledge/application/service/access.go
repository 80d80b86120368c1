package service

import (
	"context"

	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/xerr"
)

// loadAccessible 始终读库，不走缓存
func loadAccessible(ctx context.Context, kbRepo repository.KnowledgeBaseRepository, kbID, userID int64) (*entity.KnowledgeBase, error) {
	kb, err := kbRepo.GetByID(ctx, kbID)
	if err != nil {
		return nil, xerr.Persistence(err, "查询知识库失败")
	}
	if kb == nil {
		return nil, xerr.NotFoundf("知识库不存在: %d", kbID)
	}
	if !kb.AccessibleBy(userID) {
		return nil, xerr.AccessDenied("无权访问该知识库")
	}
	return kb, nil
}

func loadOwned(ctx context.Context, kbRepo repository.KnowledgeBaseRepository, kbID, userID int64) (*entity.KnowledgeBase, error) {
	kb, err := loadAccessible(ctx, kbRepo, kbID, userID)
	if err != nil {
		return nil, err
	}
	if !kb.OwnedBy(userID) {
		return nil, xerr.AccessDenied("只有知识库创建者可以执行该操作")
	}
	return kb, nil
}
