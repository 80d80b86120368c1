package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/modules/chat/domain/entity"
	"KnowledgeHub/internal/modules/chat/domain/repository"
	chatCache "KnowledgeHub/internal/modules/chat/infrastructure/cache"
	"KnowledgeHub/pkg/pagination"
	"KnowledgeHub/pkg/retry"
	"KnowledgeHub/pkg/util"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

// 首条用户消息生成标题时截取的字符数
const titleFromMessageRunes = 30

type MessageService interface {
	SaveUserMessage(ctx context.Context, sessionID string, userID int64, content string) (*entity.ChatMessage, error)
	SaveAssistantMessage(ctx context.Context, sessionID string, userID int64, content, metadataJSON string) (*entity.ChatMessage, error)
	GetMessages(ctx context.Context, sessionID string, userID int64, cursor string, size int) (pagination.CursorPage[entity.ChatMessage], error)
	GetRecentMessages(ctx context.Context, sessionID string, userID int64, limit int) ([]entity.ChatMessage, error)
}

type messageServiceImpl struct {
	sessions     repository.SessionRepository
	messages     repository.MessageRepository
	cache        *chatCache.ChatCache
	conf         config.ChatConfig
	saveAttempts int
	saveBackoff  time.Duration
	now          func() time.Time
}

func NewMessageService(sessions repository.SessionRepository, messages repository.MessageRepository, cache *chatCache.ChatCache, conf config.ChatConfig) MessageService {
	return &messageServiceImpl{
		sessions:     sessions,
		messages:     messages,
		cache:        cache,
		conf:         conf,
		saveAttempts: conf.SaveRetries,
		saveBackoff:  time.Duration(conf.SaveRetryBackoffMs) * time.Millisecond,
		now:          time.Now,
	}
}

func (s *messageServiceImpl) SaveUserMessage(ctx context.Context, sessionID string, userID int64, content string) (*entity.ChatMessage, error) {
	return s.save(ctx, sessionID, userID, entity.RoleUser, content, "")
}

func (s *messageServiceImpl) SaveAssistantMessage(ctx context.Context, sessionID string, userID int64, content, metadataJSON string) (*entity.ChatMessage, error) {
	return s.save(ctx, sessionID, userID, entity.RoleAssistant, content, metadataJSON)
}

func (s *messageServiceImpl) save(ctx context.Context, sessionID string, userID int64, role entity.MessageRole, content, metadataJSON string) (*entity.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, xerr.Validation("消息内容不能为空")
	}
	metadataJSON = strings.TrimSpace(metadataJSON)
	if metadataJSON == "null" {
		metadataJSON = ""
	}
	if metadataJSON != "" && !json.Valid([]byte(metadataJSON)) {
		return nil, xerr.Validation("消息元数据必须是合法的JSON")
	}

	sess, err := loadOwnedSession(ctx, s.sessions, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Status == entity.SessionEnded {
		return nil, xerr.Validation("会话已结束，无法继续发送消息")
	}

	msg := &entity.ChatMessage{
		SessionId: sessionID,
		UserId:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	if metadataJSON != "" {
		msg.Metadata = entity.Metadata(metadataJSON)
	}

	attempt := 0
	err = retry.Do(ctx, s.saveAttempts, s.saveBackoff, func(ctx context.Context) error {
		attempt++
		msg.Id = 0
		if err := s.messages.Create(ctx, msg); err != nil {
			zlog.Warn("save chat message failed",
				zap.String("session_id", sessionID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		zlog.Error("save chat message gave up", zap.String("session_id", sessionID), zap.String("role", string(role)), zap.Error(err))
		return nil, xerr.Persistence(err, "保存消息失败")
	}

	s.updateStats(ctx, sess, msg)

	s.cache.Info.Invalidate(ctx, sessionID)
	s.cache.Recent.Invalidate(ctx, sessionID)
	s.cache.Sessions.Invalidate(ctx, userID)
	return msg, nil
}

// updateStats 失败只记日志，消息已经落库
func (s *messageServiceImpl) updateStats(ctx context.Context, sess *entity.ChatSession, msg *entity.ChatMessage) {
	if err := s.sessions.IncrementStats(ctx, sess.SessionId, msg.CreatedAt); err != nil {
		zlog.Warn("update session stats failed", zap.String("session_id", sess.SessionId), zap.Error(err))
	}
	if msg.Role != entity.RoleUser || sess.Title != entity.DefaultSessionTitle {
		return
	}
	title := util.TruncateRunes(strings.Join(strings.Fields(msg.Content), " "), titleFromMessageRunes)
	if err := s.sessions.UpdateTitle(ctx, sess.SessionId, title); err != nil {
		zlog.Warn("set session title failed", zap.String("session_id", sess.SessionId), zap.Error(err))
	}
}

func (s *messageServiceImpl) GetMessages(ctx context.Context, sessionID string, userID int64, cursor string, size int) (pagination.CursorPage[entity.ChatMessage], error) {
	var empty pagination.CursorPage[entity.ChatMessage]
	size = pagination.NormalizeSize(size, s.conf.DefaultPageSize, s.conf.MaxPageSize)
	cursor = strings.TrimSpace(cursor)

	if _, err := loadOwnedSession(ctx, s.sessions, sessionID, userID); err != nil {
		return empty, err
	}

	var after *entity.ChatMessage
	if cursor != "" {
		id, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || id <= 0 {
			return empty, xerr.Validationf("无效的游标: %s", cursor)
		}
		row, err := s.messages.GetByID(ctx, id)
		if err != nil {
			return empty, xerr.Persistence(err, "查询消息失败")
		}
		if row == nil || row.SessionId != sessionID {
			return empty, xerr.Validationf("无效的游标: %s", cursor)
		}
		after = row
	}

	rows, err := s.messages.ListAfter(ctx, sessionID, after, size+1)
	if err != nil {
		zlog.Error("list chat messages failed", zap.String("session_id", sessionID), zap.Error(err))
		return empty, xerr.Persistence(err, "查询消息失败")
	}
	return pagination.Build(rows, cursor, size, func(m entity.ChatMessage) string {
		return strconv.FormatInt(m.Id, 10)
	}), nil
}

func (s *messageServiceImpl) GetRecentMessages(ctx context.Context, sessionID string, userID int64, limit int) ([]entity.ChatMessage, error) {
	limit = pagination.NormalizeSize(limit, s.conf.DefaultRecentLimit, s.conf.MaxRecentLimit)
	if _, err := loadOwnedSession(ctx, s.sessions, sessionID, userID); err != nil {
		return nil, err
	}

	if limit <= chatCache.RecentMessagesMax {
		if cached, ok := s.cache.Recent.Get(ctx, sessionID); ok {
			return tailMessages(cached, limit), nil
		}
	}

	fetch := limit
	if fetch < chatCache.RecentMessagesMax {
		fetch = chatCache.RecentMessagesMax
	}
	rows, err := s.messages.ListRecent(ctx, sessionID, fetch)
	if err != nil {
		zlog.Error("list recent messages failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, xerr.Persistence(err, "查询最近消息失败")
	}
	if rows == nil {
		rows = []entity.ChatMessage{}
	}
	s.cache.Recent.Set(ctx, sessionID, tailMessages(rows, chatCache.RecentMessagesMax))
	return tailMessages(rows, limit), nil
}

// tailMessages 取升序列表的最后 n 条
func tailMessages(list []entity.ChatMessage, n int) []entity.ChatMessage {
	if list == nil {
		return []entity.ChatMessage{}
	}
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}
