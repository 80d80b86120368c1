package scheduler

import (
	"context"
	"time"

	chatService "KnowledgeHub/internal/modules/chat/application/service"
	kbService "KnowledgeHub/internal/modules/knowledge/application/service"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	JobInactiveSessionCleanup = "chat-inactive-session-cleanup"
	JobFullChatCleanup        = "chat-full-cleanup"
	JobFileCountRepair        = "kb-file-count-repair"
	JobCleanupStats           = "chat-cleanup-stats"

	// 每日清理的非活跃天数
	dailyInactiveDays = 7
)

// MaintenanceJobs 会话清理与知识库计数修复任务
func MaintenanceJobs(cleanup chatService.CleanupService, kb kbService.KnowledgeBaseService) []Job {
	return []Job{
		{
			Name:    JobInactiveSessionCleanup,
			Spec:    "0 2 * * *",
			Timeout: 30 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := cleanup.CleanupInactiveSessions(ctx, dailyInactiveDays)
				return err
			},
		},
		{
			Name:    JobFullChatCleanup,
			Spec:    "0 3 * * 0",
			Timeout: 2 * time.Hour,
			Run: func(ctx context.Context) error {
				out, err := cleanup.FullCleanup(ctx)
				zlog.Info("full chat cleanup",
					zap.Int64("inactive_sessions", out.InactiveSessions),
					zap.Int64("expired_messages", out.ExpiredMessages),
					zap.Int64("archived_sessions", out.ArchivedSessions))
				return err
			},
		},
		{
			Name:    JobFileCountRepair,
			Spec:    "0 4 * * *",
			Timeout: 10 * time.Minute,
			Run: func(ctx context.Context) error {
				n, err := kb.FixFileCount(ctx)
				if err == nil {
					zlog.Info("knowledge base file counts repaired", zap.Int64("rows", n))
				}
				return err
			},
		},
		{
			Name:    JobCleanupStats,
			Spec:    "@hourly",
			Timeout: time.Minute,
			Run: func(ctx context.Context) error {
				if !zlog.Enabled(zapcore.DebugLevel) {
					return nil
				}
				stats, err := cleanup.Stats(ctx)
				if err != nil {
					return err
				}
				zlog.Debug("chat cleanup stats",
					zap.Any("sessions_by_status", stats.SessionsByStatus),
					zap.Int64("sessions_last_7d", stats.SessionsLast7d),
					zap.Any("cache_keys", stats.CacheKeys))
				return nil
			},
		},
	}
}
