package service

import (
	"context"
	"time"

	"KnowledgeHub/internal/modules/knowledge/application/dto/request"
	"KnowledgeHub/internal/modules/knowledge/application/dto/respond"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/util"
	"KnowledgeHub/pkg/xerr"
)

// RetrieveService 带权限校验的知识库检索
type RetrieveService interface {
	Search(ctx context.Context, userID int64, req request.RetrieveRequest) (*respond.RetrieveRespond, error)
}

type retrieveServiceImpl struct {
	kbRepo repository.KnowledgeBaseRepository
	router *RetrievalRouter
}

func NewRetrieveService(kbRepo repository.KnowledgeBaseRepository, router *RetrievalRouter) RetrieveService {
	return &retrieveServiceImpl{kbRepo: kbRepo, router: router}
}

func (s *retrieveServiceImpl) Search(ctx context.Context, userID int64, req request.RetrieveRequest) (*respond.RetrieveRespond, error) {
	ids := util.DedupInt64(req.KnowledgeBaseIds)
	if len(ids) == 0 {
		return nil, xerr.Validation("知识库列表不能为空")
	}
	// 先校验全部知识库的访问权限，再分发检索
	for _, id := range ids {
		if _, err := loadAccessible(ctx, s.kbRepo, id, userID); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	chunks, err := s.router.Search(ctx, ids, req.Query, req.Threshold, req.TopK)
	if err != nil {
		return nil, err
	}
	return &respond.RetrieveRespond{
		Query:      req.Query,
		Chunks:     chunks,
		Total:      len(chunks),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}
