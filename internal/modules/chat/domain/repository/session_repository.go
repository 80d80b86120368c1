package repository

import (
	"context"
	"time"

	"KnowledgeHub/internal/modules/chat/domain/entity"
)

// SessionRepository 未找到时返回 (nil, nil)
type SessionRepository interface {
	Create(ctx context.Context, s *entity.ChatSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*entity.ChatSession, error)
	GetActiveByUser(ctx context.Context, userID int64) (*entity.ChatSession, error)
	// ListByCursor 按 (created_at DESC, id DESC)，after 为 nil 时从头开始
	ListByCursor(ctx context.Context, userID int64, after *entity.ChatSession, limit int) ([]entity.ChatSession, error)
	ListByUser(ctx context.Context, userID int64) ([]entity.ChatSession, error)
	// ListIdle 返回 updated_at 早于 before 且状态在 statuses 中的会话，按 id 升序
	ListIdle(ctx context.Context, statuses []entity.SessionStatus, before time.Time, limit int) ([]entity.ChatSession, error)

	// DeactivateOthers 把用户其他 ACTIVE 会话改回 CREATED，返回被改动的 session_id
	DeactivateOthers(ctx context.Context, userID int64, keepSessionID string) ([]string, error)
	// Activate 只激活未结束的会话
	Activate(ctx context.Context, sessionID string, userID int64) (int64, error)
	UpdateTitle(ctx context.Context, sessionID, title string) error
	End(ctx context.Context, sessionID string, userID int64) (int64, error)
	EndActive(ctx context.Context, sessionIDs []string) (int64, error)
	IncrementStats(ctx context.Context, sessionID string, at time.Time) error

	Delete(ctx context.Context, sessionID string) (int64, error)
	DeleteBySessionIDs(ctx context.Context, sessionIDs []string) (int64, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)

	CountByStatus(ctx context.Context) (map[entity.SessionStatus]int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}
