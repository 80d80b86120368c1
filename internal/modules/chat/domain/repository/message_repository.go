package repository

import (
	"context"
	"time"

	"KnowledgeHub/internal/modules/chat/domain/entity"
)

type MessageRepository interface {
	Create(ctx context.Context, m *entity.ChatMessage) error
	GetByID(ctx context.Context, id int64) (*entity.ChatMessage, error)
	// ListAfter 按 (created_at, id) 升序返回严格位于 after 之后的消息
	ListAfter(ctx context.Context, sessionID string, after *entity.ChatMessage, limit int) ([]entity.ChatMessage, error)
	// ListRecent 取最近 limit 条，结果仍按时间升序
	ListRecent(ctx context.Context, sessionID string, limit int) ([]entity.ChatMessage, error)
	ListSessionIDsBefore(ctx context.Context, before time.Time) ([]string, error)

	DeleteBySessionIDs(ctx context.Context, sessionIDs []string) (int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// ChatUnitOfWork 会话与消息的跨表事务
type ChatUnitOfWork interface {
	Transaction(ctx context.Context, fn func(sessions SessionRepository, messages MessageRepository) error) error
}
