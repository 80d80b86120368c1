package cache

import (
	"context"
	"time"

	"KnowledgeHub/internal/modules/chat/domain/entity"
	"KnowledgeHub/pkg/cache"
	"KnowledgeHub/pkg/pagination"
)

const (
	CurrentSessionPrefix = "chat:session:current:"
	SessionInfoPrefix    = "chat:session:info:"
	UserSessionsPrefix   = "chat:user:sessions:"
	RecentMessagesPrefix = "chat:messages:recent:"

	CurrentSessionTTL = 4 * time.Hour
	SessionInfoTTL    = 2 * time.Hour
	UserSessionsTTL   = 30 * time.Minute
	RecentMessagesTTL = time.Hour

	// RecentMessagesMax 最近消息投影最多保留的条数
	RecentMessagesMax = 50
)

// ChatCache 会话与消息的四个缓存投影
type ChatCache struct {
	Current  *cache.Cache[int64, string]
	Info     *cache.Cache[string, entity.ChatSession]
	Sessions *cache.Cache[int64, pagination.CursorPage[entity.ChatSession]]
	Recent   *cache.Cache[string, []entity.ChatMessage]
}

func NewChatCache(store cache.Store) *ChatCache {
	return &ChatCache{
		Current:  cache.New[int64, string]("session_current", store, CurrentSessionPrefix, CurrentSessionTTL),
		Info:     cache.New[string, entity.ChatSession]("session_info", store, SessionInfoPrefix, SessionInfoTTL),
		Sessions: cache.New[int64, pagination.CursorPage[entity.ChatSession]]("user_sessions", store, UserSessionsPrefix, UserSessionsTTL),
		Recent:   cache.New[string, []entity.ChatMessage]("recent_messages", store, RecentMessagesPrefix, RecentMessagesTTL),
	}
}

// ForgetSession 会话被删除或结束后清理相关投影
func (c *ChatCache) ForgetSession(ctx context.Context, s *entity.ChatSession) {
	c.Info.Invalidate(ctx, s.SessionId)
	c.Recent.Invalidate(ctx, s.SessionId)
	if cur, ok := c.Current.Get(ctx, s.UserId); ok && cur == s.SessionId {
		c.Current.Invalidate(ctx, s.UserId)
	}
	c.Sessions.Invalidate(ctx, s.UserId)
}

// ForgetUser 清理用户级投影
func (c *ChatCache) ForgetUser(ctx context.Context, userIDs ...int64) {
	c.Current.Invalidate(ctx, userIDs...)
	c.Sessions.Invalidate(ctx, userIDs...)
}

// Stats 各投影当前的 key 数量
func (c *ChatCache) Stats(ctx context.Context) map[string]int64 {
	return map[string]int64{
		"currentSessions": c.Current.Count(ctx),
		"sessionInfo":     c.Info.Count(ctx),
		"userSessions":    c.Sessions.Count(ctx),
		"recentMessages":  c.Recent.Count(ctx),
	}
}
