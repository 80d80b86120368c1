package service

import (
	"context"
	"errors"
	"time"

	"KnowledgeHub/internal/modules/chat/application/dto/respond"
	"KnowledgeHub/internal/modules/chat/domain/entity"
	"KnowledgeHub/internal/modules/chat/domain/repository"
	chatCache "KnowledgeHub/internal/modules/chat/infrastructure/cache"
	"KnowledgeHub/pkg/metrics"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

const (
	cleanupBatchSize = 500

	FullCleanupInactiveDays  = 30
	FullCleanupRetentionDays = 90
	FullCleanupArchiveDays   = 60
)

type CleanupService interface {
	// CleanupInactiveSessions 删除窗口内未更新的 CREATED/ENDED 会话及其消息
	CleanupInactiveSessions(ctx context.Context, inactiveDays int) (int64, error)
	CleanupExpiredMessages(ctx context.Context, retentionDays int) (int64, error)
	// ArchiveOldSessions 把长时间未更新的 ACTIVE 会话置为 ENDED
	ArchiveOldSessions(ctx context.Context, archiveDays int) (int64, error)
	CleanupUserData(ctx context.Context, userID int64) error
	FullCleanup(ctx context.Context) (respond.FullCleanupRespond, error)
	Stats(ctx context.Context) (*respond.CleanupStatsRespond, error)
}

type cleanupServiceImpl struct {
	sessions repository.SessionRepository
	messages repository.MessageRepository
	uow      repository.ChatUnitOfWork
	cache    *chatCache.ChatCache
	now      func() time.Time
}

func NewCleanupService(sessions repository.SessionRepository, messages repository.MessageRepository, uow repository.ChatUnitOfWork, cache *chatCache.ChatCache) CleanupService {
	return &cleanupServiceImpl{
		sessions: sessions,
		messages: messages,
		uow:      uow,
		cache:    cache,
		now:      time.Now,
	}
}

func (s *cleanupServiceImpl) cutoff(days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, xerr.Validationf("天数必须大于0: %d", days)
	}
	return s.now().AddDate(0, 0, -days), nil
}

func (s *cleanupServiceImpl) CleanupInactiveSessions(ctx context.Context, inactiveDays int) (int64, error) {
	before, err := s.cutoff(inactiveDays)
	if err != nil {
		return 0, err
	}
	statuses := []entity.SessionStatus{entity.SessionCreated, entity.SessionEnded}

	var total int64
	for {
		batch, err := s.sessions.ListIdle(ctx, statuses, before, cleanupBatchSize)
		if err != nil {
			return total, xerr.Persistence(err, "查询非活跃会话失败")
		}
		if len(batch) == 0 {
			break
		}
		ids := sessionIDs(batch)
		var deleted int64
		err = s.uow.Transaction(ctx, func(sessions repository.SessionRepository, messages repository.MessageRepository) error {
			if _, err := messages.DeleteBySessionIDs(ctx, ids); err != nil {
				return err
			}
			n, err := sessions.DeleteBySessionIDs(ctx, ids)
			deleted = n
			return err
		})
		if err != nil {
			return total, xerr.Persistence(err, "清理非活跃会话失败")
		}
		for i := range batch {
			s.cache.ForgetSession(ctx, &batch[i])
		}
		total += deleted
		if len(batch) < cleanupBatchSize || deleted == 0 {
			break
		}
	}

	metrics.CleanupRecords.WithLabelValues("inactive_sessions").Add(float64(total))
	zlog.Info("inactive chat sessions cleaned", zap.Int("inactive_days", inactiveDays), zap.Int64("deleted", total))
	return total, nil
}

func (s *cleanupServiceImpl) CleanupExpiredMessages(ctx context.Context, retentionDays int) (int64, error) {
	before, err := s.cutoff(retentionDays)
	if err != nil {
		return 0, err
	}
	affected, err := s.messages.ListSessionIDsBefore(ctx, before)
	if err != nil {
		return 0, xerr.Persistence(err, "查询过期消息失败")
	}
	n, err := s.messages.DeleteBefore(ctx, before)
	if err != nil {
		return 0, xerr.Persistence(err, "清理过期消息失败")
	}
	// 会话详情与列表里的消息投影随之失效
	s.cache.Info.Invalidate(ctx, affected...)
	s.cache.Recent.Invalidate(ctx, affected...)
	s.cache.Sessions.Invalidate(ctx, s.ownersOf(ctx, affected)...)

	metrics.CleanupRecords.WithLabelValues("expired_messages").Add(float64(n))
	zlog.Info("expired chat messages cleaned", zap.Int("retention_days", retentionDays), zap.Int64("deleted", n))
	return n, nil
}

// ownersOf 查不到的会话直接跳过，只影响列表缓存的及时性
func (s *cleanupServiceImpl) ownersOf(ctx context.Context, sessionIDs []string) []int64 {
	seen := make(map[int64]struct{}, len(sessionIDs))
	owners := make([]int64, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		sess, err := s.sessions.GetBySessionID(ctx, id)
		if err != nil {
			zlog.Warn("load session owner failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if sess == nil {
			continue
		}
		if _, ok := seen[sess.UserId]; ok {
			continue
		}
		seen[sess.UserId] = struct{}{}
		owners = append(owners, sess.UserId)
	}
	return owners
}

func (s *cleanupServiceImpl) ArchiveOldSessions(ctx context.Context, archiveDays int) (int64, error) {
	before, err := s.cutoff(archiveDays)
	if err != nil {
		return 0, err
	}
	statuses := []entity.SessionStatus{entity.SessionActive}

	var total int64
	for {
		batch, err := s.sessions.ListIdle(ctx, statuses, before, cleanupBatchSize)
		if err != nil {
			return total, xerr.Persistence(err, "查询待归档会话失败")
		}
		if len(batch) == 0 {
			break
		}
		n, err := s.sessions.EndActive(ctx, sessionIDs(batch))
		if err != nil {
			return total, xerr.Persistence(err, "归档会话失败")
		}
		for i := range batch {
			s.cache.ForgetSession(ctx, &batch[i])
		}
		total += n
		if len(batch) < cleanupBatchSize || n == 0 {
			break
		}
	}

	metrics.CleanupRecords.WithLabelValues("archived_sessions").Add(float64(total))
	zlog.Info("old chat sessions archived", zap.Int("archive_days", archiveDays), zap.Int64("archived", total))
	return total, nil
}

func (s *cleanupServiceImpl) CleanupUserData(ctx context.Context, userID int64) error {
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return xerr.Persistence(err, "查询用户会话失败")
	}
	var msgs, sess int64
	err = s.uow.Transaction(ctx, func(sessions repository.SessionRepository, messages repository.MessageRepository) error {
		n, err := messages.DeleteByUser(ctx, userID)
		if err != nil {
			return err
		}
		msgs = n
		sess, err = sessions.DeleteByUser(ctx, userID)
		return err
	})
	if err != nil {
		zlog.Error("cleanup user chat data failed", zap.Int64("user_id", userID), zap.Error(err))
		return xerr.Persistence(err, "清理用户数据失败")
	}

	ids := sessionIDs(list)
	s.cache.Info.Invalidate(ctx, ids...)
	s.cache.Recent.Invalidate(ctx, ids...)
	s.cache.ForgetUser(ctx, userID)

	metrics.CleanupRecords.WithLabelValues("user_sessions").Add(float64(sess))
	metrics.CleanupRecords.WithLabelValues("user_messages").Add(float64(msgs))
	zlog.Info("user chat data cleaned", zap.Int64("user_id", userID), zap.Int64("sessions", sess), zap.Int64("messages", msgs))
	return nil
}

// FullCleanup 依次执行三项清理，单项失败不影响其余项
func (s *cleanupServiceImpl) FullCleanup(ctx context.Context) (respond.FullCleanupRespond, error) {
	var (
		out  respond.FullCleanupRespond
		errs []error
		err  error
	)
	if out.InactiveSessions, err = s.CleanupInactiveSessions(ctx, FullCleanupInactiveDays); err != nil {
		errs = append(errs, err)
	}
	if out.ExpiredMessages, err = s.CleanupExpiredMessages(ctx, FullCleanupRetentionDays); err != nil {
		errs = append(errs, err)
	}
	if out.ArchivedSessions, err = s.ArchiveOldSessions(ctx, FullCleanupArchiveDays); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

func (s *cleanupServiceImpl) Stats(ctx context.Context) (*respond.CleanupStatsRespond, error) {
	counts, err := s.sessions.CountByStatus(ctx)
	if err != nil {
		return nil, xerr.Persistence(err, "统计会话失败")
	}
	recent, err := s.sessions.CountCreatedSince(ctx, s.now().AddDate(0, 0, -7))
	if err != nil {
		return nil, xerr.Persistence(err, "统计会话失败")
	}

	byStatus := map[string]int64{}
	for _, st := range []entity.SessionStatus{entity.SessionCreated, entity.SessionActive, entity.SessionEnded} {
		byStatus[st.String()] = counts[st]
	}
	return &respond.CleanupStatsRespond{
		SessionsByStatus: byStatus,
		SessionsLast7d:   recent,
		CacheKeys:        s.cache.Stats(ctx),
	}, nil
}

func sessionIDs(list []entity.ChatSession) []string {
	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.SessionId)
	}
	return ids
}
