package service

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/modules/chat/domain/entity"
	"KnowledgeHub/internal/modules/chat/domain/repository"
	chatCache "KnowledgeHub/internal/modules/chat/infrastructure/cache"
	"KnowledgeHub/pkg/lock"
	"KnowledgeHub/pkg/pagination"
	"KnowledgeHub/pkg/util"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

const maxTitleRunes = 255

type SessionService interface {
	CreateSession(ctx context.Context, userID int64) (*entity.ChatSession, error)
	// GetCurrentSession 用户没有活跃会话时返回 (nil, nil)
	GetCurrentSession(ctx context.Context, userID int64) (*entity.ChatSession, error)
	ActivateSession(ctx context.Context, sessionID string, userID int64) (*entity.ChatSession, error)
	GetSessions(ctx context.Context, userID int64, cursor string, size int) (pagination.CursorPage[entity.ChatSession], error)
	GetSession(ctx context.Context, sessionID string, userID int64) (*entity.ChatSession, error)
	UpdateSessionTitle(ctx context.Context, sessionID string, userID int64, title string) (*entity.ChatSession, error)
	EndSession(ctx context.Context, sessionID string, userID int64) (*entity.ChatSession, error)
	DeleteSession(ctx context.Context, sessionID string, userID int64) error
}

type sessionServiceImpl struct {
	sessions repository.SessionRepository
	uow      repository.ChatUnitOfWork
	cache    *chatCache.ChatCache
	locker   lock.Locker
	conf     config.ChatConfig
	now      func() time.Time
}

func NewSessionService(sessions repository.SessionRepository, uow repository.ChatUnitOfWork, cache *chatCache.ChatCache, locker lock.Locker, conf config.ChatConfig) SessionService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &sessionServiceImpl{
		sessions: sessions,
		uow:      uow,
		cache:    cache,
		locker:   locker,
		conf:     conf,
		now:      time.Now,
	}
}

func userLockKey(userID int64) string {
	return "chat:user:" + strconv.FormatInt(userID, 10)
}

func (s *sessionServiceImpl) lockUser(ctx context.Context, userID int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return nil, xerr.Persistence(err, "会话繁忙，请稍后重试")
	}
	return unlock, nil
}

func (s *sessionServiceImpl) CreateSession(ctx context.Context, userID int64) (*entity.ChatSession, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	sess := &entity.ChatSession{
		SessionId:       util.GenerateShortUUID(),
		UserId:          userID,
		Title:           entity.DefaultSessionTitle,
		Status:          entity.SessionCreated,
		LastMessageTime: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	var demoted []string
	err = s.uow.Transaction(ctx, func(sessions repository.SessionRepository, _ repository.MessageRepository) error {
		if err := sessions.Create(ctx, sess); err != nil {
			return err
		}
		ids, err := sessions.DeactivateOthers(ctx, userID, sess.SessionId)
		if err != nil {
			return err
		}
		demoted = ids
		_, err = sessions.Activate(ctx, sess.SessionId, userID)
		return err
	})
	if err != nil {
		zlog.Error("create chat session failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, xerr.Persistence(err, "创建会话失败")
	}
	sess.Status = entity.SessionActive

	s.cache.Info.Invalidate(ctx, demoted...)
	s.cache.Current.Set(ctx, userID, sess.SessionId)
	s.cache.Info.Set(ctx, sess.SessionId, *sess)
	s.cache.Sessions.Invalidate(ctx, userID)

	zlog.Info("chat session created", zap.Int64("user_id", userID), zap.String("session_id", sess.SessionId))
	return sess, nil
}

func (s *sessionServiceImpl) GetCurrentSession(ctx context.Context, userID int64) (*entity.ChatSession, error) {
	if cur, ok := s.cache.Current.Get(ctx, userID); ok {
		if info, ok := s.cache.Info.Get(ctx, cur); ok && info.OwnedBy(userID) && info.Status == entity.SessionActive {
			return &info, nil
		}
	}

	sess, err := s.sessions.GetActiveByUser(ctx, userID)
	if err != nil {
		zlog.Error("load current session failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, xerr.Persistence(err, "查询当前会话失败")
	}
	if sess == nil {
		s.cache.Current.Invalidate(ctx, userID)
		return nil, nil
	}
	s.cache.Current.Set(ctx, userID, sess.SessionId)
	s.cache.Info.Set(ctx, sess.SessionId, *sess)
	return sess, nil
}

func (s *sessionServiceImpl) ActivateSession(ctx context.Context, sessionID string, userID int64) (*entity.ChatSession, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := loadOwnedSession(ctx, s.sessions, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Status == entity.SessionEnded {
		return nil, xerr.Validation("会话已结束，无法激活")
	}

	var (
		activated int64
		demoted   []string
	)
	err = s.uow.Transaction(ctx, func(sessions repository.SessionRepository, _ repository.MessageRepository) error {
		ids, err := sessions.DeactivateOthers(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		demoted = ids
		n, err := sessions.Activate(ctx, sessionID, userID)
		activated = n
		return err
	})
	if err != nil {
		zlog.Error("activate chat session failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, xerr.Persistence(err, "激活会话失败")
	}
	// 被降级的会话无论本次是否激活成功都已提交
	s.cache.Info.Invalidate(ctx, demoted...)
	if activated == 0 && sess.Status != entity.SessionActive {
		// 读取之后被并发结束
		return nil, xerr.Validation("会话已结束，无法激活")
	}
	sess.Status = entity.SessionActive

	s.cache.Current.Set(ctx, userID, sessionID)
	s.cache.Info.Set(ctx, sessionID, *sess)
	s.cache.Sessions.Invalidate(ctx, userID)
	return sess, nil
}

func (s *sessionServiceImpl) GetSessions(ctx context.Context, userID int64, cursor string, size int) (pagination.CursorPage[entity.ChatSession], error) {
	size = pagination.NormalizeSize(size, s.conf.DefaultPageSize, s.conf.MaxPageSize)
	cursor = strings.TrimSpace(cursor)

	if cursor == "" {
		if page, ok := s.cache.Sessions.Get(ctx, userID); ok && page.Size == size {
			return page, nil
		}
	}

	var after *entity.ChatSession
	if cursor != "" {
		row, err := s.sessions.GetBySessionID(ctx, cursor)
		if err != nil {
			return pagination.CursorPage[entity.ChatSession]{}, xerr.Persistence(err, "查询会话失败")
		}
		if !row.OwnedBy(userID) {
			return pagination.CursorPage[entity.ChatSession]{}, xerr.Validationf("无效的游标: %s", cursor)
		}
		after = row
	}

	rows, err := s.sessions.ListByCursor(ctx, userID, after, size+1)
	if err != nil {
		zlog.Error("list chat sessions failed", zap.Int64("user_id", userID), zap.Error(err))
		return pagination.CursorPage[entity.ChatSession]{}, xerr.Persistence(err, "查询会话列表失败")
	}
	page := pagination.Build(rows, cursor, size, func(row entity.ChatSession) string { return row.SessionId })
	if cursor == "" {
		s.cache.Sessions.Set(ctx, userID, page)
	}
	return page, nil
}

func (s *sessionServiceImpl) GetSession(ctx context.Context, sessionID string, userID int64) (*entity.ChatSession, error) {
	if info, ok := s.cache.Info.Get(ctx, sessionID); ok && info.OwnedBy(userID) {
		return &info, nil
	}
	sess, err := loadOwnedSession(ctx, s.sessions, sessionID, userID)
	if err != nil {
		return nil, err
	}
	s.cache.Info.Set(ctx, sessionID, *sess)
	return sess, nil
}

func (s *sessionServiceImpl) UpdateSessionTitle(ctx context.Context, sessionID string, userID int64, title string) (*entity.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, xerr.Validation("会话标题不能为空")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return nil, xerr.Validationf("会话标题不能超过%d个字符", maxTitleRunes)
	}

	sess, err := loadOwnedSession(ctx, s.sessions, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateTitle(ctx, sessionID, title); err != nil {
		return nil, xerr.Persistence(err, "更新会话标题失败")
	}
	sess.Title = title
	sess.UpdatedAt = s.now()

	s.cache.Info.Set(ctx, sessionID, *sess)
	s.cache.Sessions.Invalidate(ctx, userID)
	return sess, nil
}

func (s *sessionServiceImpl) EndSession(ctx context.Context, sessionID string, userID int64) (*entity.ChatSession, error) {
	sess, err := loadOwnedSession(ctx, s.sessions, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Status == entity.SessionEnded {
		return sess, nil
	}
	if _, err := s.sessions.End(ctx, sessionID, userID); err != nil {
		return nil, xerr.Persistence(err, "结束会话失败")
	}
	sess.Status = entity.SessionEnded
	sess.UpdatedAt = s.now()

	s.cache.ForgetSession(ctx, sess)
	return sess, nil
}

func (s *sessionServiceImpl) DeleteSession(ctx context.Context, sessionID string, userID int64) error {
	sess, err := loadOwnedSession(ctx, s.sessions, sessionID, userID)
	if err != nil {
		return err
	}
	err = s.uow.Transaction(ctx, func(sessions repository.SessionRepository, messages repository.MessageRepository) error {
		if _, err := messages.DeleteBySessionIDs(ctx, []string{sessionID}); err != nil {
			return err
		}
		_, err := sessions.Delete(ctx, sessionID)
		return err
	})
	if err != nil {
		zlog.Error("delete chat session failed", zap.String("session_id", sessionID), zap.Error(err))
		return xerr.Persistence(err, "删除会话失败")
	}
	s.cache.ForgetSession(ctx, sess)
	zlog.Info("chat session deleted", zap.Int64("user_id", userID), zap.String("session_id", sessionID))
	return nil
}

// loadOwnedSession 从存储读取会话，不存在或不属于该用户都按不存在处理
func loadOwnedSession(ctx context.Context, sessions repository.SessionRepository, sessionID string, userID int64) (*entity.ChatSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, xerr.Validation("会话ID不能为空")
	}
	sess, err := sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, xerr.Persistence(err, "查询会话失败")
	}
	if !sess.OwnedBy(userID) {
		return nil, xerr.NotFoundf("会话不存在: %s", sessionID)
	}
	return sess, nil
}
