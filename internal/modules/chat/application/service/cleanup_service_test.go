package service

import (
	"context"
	"testing"
	"time"

	"KnowledgeHub/internal/modules/chat/domain/entity"
	"KnowledgeHub/pkg/pagination"
	"KnowledgeHub/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCleanup(f *chatFixture) {
	now := time.Now()
	old := now.AddDate(0, 0, -45)
	recent := now.AddDate(0, 0, -1)

	f.store.put(entity.ChatSession{SessionId: "old-created", UserId: 1, Status: entity.SessionCreated, CreatedAt: old, UpdatedAt: old})
	f.store.put(entity.ChatSession{SessionId: "old-ended", UserId: 2, Status: entity.SessionEnded, CreatedAt: old, UpdatedAt: old})
	f.store.put(entity.ChatSession{SessionId: "old-active", UserId: 1, Status: entity.SessionActive, CreatedAt: old, UpdatedAt: old})
	f.store.put(entity.ChatSession{SessionId: "new-created", UserId: 1, Status: entity.SessionCreated, CreatedAt: recent, UpdatedAt: recent})

	f.store.putMessage(entity.ChatMessage{SessionId: "old-created", UserId: 1, Content: "a", CreatedAt: old})
	f.store.putMessage(entity.ChatMessage{SessionId: "old-ended", UserId: 2, Content: "b", CreatedAt: old})
	f.store.putMessage(entity.ChatMessage{SessionId: "old-active", UserId: 1, Content: "c", CreatedAt: old})
	f.store.putMessage(entity.ChatMessage{SessionId: "new-created", UserId: 1, Content: "d", CreatedAt: recent})
}

func TestCleanupService_InactiveSessions(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	seedCleanup(f)
	f.cache.Info.Set(ctx, "old-ended", entity.ChatSession{SessionId: "old-ended", UserId: 2})

	n, err := f.cleanup.CleanupInactiveSessions(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, ok := f.store.sessions["old-created"]
	assert.False(t, ok)
	_, ok = f.store.sessions["old-active"]
	assert.True(t, ok)
	_, ok = f.store.sessions["new-created"]
	assert.True(t, ok)
	assert.Equal(t, 2, f.store.messageCount())
	assert.False(t, f.mr.Exists("chat:session:info:old-ended"))

	_, err = f.cleanup.CleanupInactiveSessions(ctx, 0)
	assert.True(t, xerr.Is(err, xerr.KindValidation))
}

func TestCleanupService_InactiveSessionsRollsBack(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	seedCleanup(f)
	f.store.failDeleteByIDs = true

	_, err := f.cleanup.CleanupInactiveSessions(ctx, 30)
	assert.True(t, xerr.Is(err, xerr.KindPersistence))
	assert.Len(t, f.store.sessions, 4)
	assert.Equal(t, 4, f.store.messageCount())
}

func TestCleanupService_ExpiredMessagesAndArchive(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	seedCleanup(f)
	f.cache.Recent.Set(ctx, "old-active", []entity.ChatMessage{{Id: 3}})
	f.cache.Info.Set(ctx, "old-ended", entity.ChatSession{SessionId: "old-ended", UserId: 2, MessageCount: 1})
	f.cache.Info.Set(ctx, "new-created", entity.ChatSession{SessionId: "new-created", UserId: 1, MessageCount: 1})
	f.cache.Sessions.Set(ctx, 2, pagination.CursorPage[entity.ChatSession]{})

	n, err := f.cleanup.CleanupExpiredMessages(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, f.store.messageCount())
	assert.False(t, f.mr.Exists("chat:messages:recent:old-active"))
	assert.False(t, f.mr.Exists("chat:session:info:old-ended"))
	assert.False(t, f.mr.Exists("chat:user:sessions:2"))
	// 没有过期消息的会话不受影响
	assert.True(t, f.mr.Exists("chat:session:info:new-created"))

	f.cache.Current.Set(ctx, 1, "old-active")
	n, err = f.cleanup.ArchiveOldSessions(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, entity.SessionEnded, f.store.session("old-active").Status)
	assert.False(t, f.mr.Exists("chat:session:current:1"))

	cur, err := f.sessions.GetCurrentSession(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestCleanupService_UserDataAndStats(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	seedCleanup(f)

	stats, err := f.cleanup.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"CREATED": 2, "ACTIVE": 1, "ENDED": 1}, stats.SessionsByStatus)
	assert.Equal(t, int64(1), stats.SessionsLast7d)
	assert.Contains(t, stats.CacheKeys, "sessionInfo")

	f.cache.Current.Set(ctx, 1, "old-active")
	require.NoError(t, f.cleanup.CleanupUserData(ctx, 1))
	assert.Len(t, f.store.sessions, 1)
	assert.Equal(t, 1, f.store.messageCount())
	assert.False(t, f.mr.Exists("chat:session:current:1"))

	out, err := f.cleanup.FullCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.InactiveSessions)
	assert.Empty(t, f.store.sessions)
}
