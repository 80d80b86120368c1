package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"KnowledgeHub/internal/modules/chat/domain/entity"
	"KnowledgeHub/internal/modules/chat/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var sessionColumns = []string{"id", "session_id", "user_id", "title", "status", "message_count", "last_message_time", "created_at", "updated_at"}

func TestSessionRepository_GetBySessionID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `chat_session` WHERE session_id = \\?").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(3, "abc", 9, "hello", 1, 4, now, now, now))

	s, err := repo.GetBySessionID(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, entity.SessionActive, s.Status)
	assert.Equal(t, 4, s.MessageCount)
	assert.True(t, s.OwnedBy(9))

	mock.ExpectQuery("SELECT \\* FROM `chat_session` WHERE session_id = \\?").
		WillReturnRows(sqlmock.NewRows(sessionColumns))
	s, err = repo.GetBySessionID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, s)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_ListByCursor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `chat_session` WHERE user_id = \\? ORDER BY created_at DESC,id DESC").
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow(5, "s5", 9, "a", 0, 0, now, now, now).
			AddRow(4, "s4", 9, "b", 0, 0, now, now, now))

	list, err := repo.ListByCursor(context.Background(), 9, nil, 3)
	require.NoError(t, err)
	require.Len(t, list, 2)

	mock.ExpectQuery("SELECT \\* FROM `chat_session` WHERE user_id = \\? AND .*created_at < \\? OR .*id < \\?.*ORDER BY created_at DESC,id DESC").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(3, "s3", 9, "c", 2, 1, now, now, now))

	list, err = repo.ListByCursor(context.Background(), 9, &list[1], 3)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s3", list[0].SessionId)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_ConditionalUpdates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT `session_id` FROM `chat_session` WHERE user_id = \\? AND status = \\? AND session_id <> \\? FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("a").AddRow("b"))
	mock.ExpectExec("UPDATE `chat_session` SET `status`=\\?,`updated_at`=\\? WHERE session_id IN \\(\\?,\\?\\) AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 2))
	demoted, err := repo.DeactivateOthers(ctx, 9, "keep")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, demoted)

	// 没有其他活跃会话时不发 UPDATE
	mock.ExpectQuery("SELECT `session_id` FROM `chat_session` WHERE user_id = \\? AND status = \\? AND session_id <> \\? FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}))
	demoted, err = repo.DeactivateOthers(ctx, 9, "keep")
	require.NoError(t, err)
	assert.Empty(t, demoted)

	mock.ExpectExec("UPDATE `chat_session` SET `status`=\\?,`updated_at`=\\? WHERE session_id = \\? AND user_id = \\? AND status <> \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	n, err := repo.Activate(ctx, "ended", 9)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec("UPDATE `chat_session` SET `last_message_time`=\\?,`message_count`=message_count \\+ 1,`updated_at`=\\? WHERE session_id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.IncrementStats(ctx, "abc", time.Now()))

	n, err = repo.EndActive(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_CountByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) AS total FROM `chat_session` GROUP BY").
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).AddRow(0, 4).AddRow(1, 2).AddRow(2, 7))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[entity.SessionStatus]int64{
		entity.SessionCreated: 4,
		entity.SessionActive:  2,
		entity.SessionEnded:   7,
	}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_ListRecentIsAscending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)
	now := time.Now()

	cols := []string{"id", "session_id", "user_id", "role", "content", "metadata", "created_at"}
	mock.ExpectQuery("SELECT \\* FROM `chat_message` WHERE session_id = \\? ORDER BY created_at DESC,id DESC").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(9, "s", 1, "ASSISTANT", "c", nil, now).
			AddRow(8, "s", 1, "USER", "b", nil, now).
			AddRow(7, "s", 1, "USER", "a", nil, now.Add(-time.Second)))

	list, err := repo.ListRecent(context.Background(), "s", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{7, 8, 9}, []int64{list[0].Id, list[1].Id, list[2].Id})
	assert.Equal(t, entity.RoleAssistant, list[2].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatUnitOfWork_Transaction(t *testing.T) {
	tests := []struct {
		name    string
		failMsg bool
	}{
		{"commit", false},
		{"rollback", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			uow := NewChatUnitOfWork(db)

			mock.ExpectBegin()
			exp := mock.ExpectExec("DELETE FROM `chat_message` WHERE session_id IN \\(\\?\\)")
			if tt.failMsg {
				exp.WillReturnError(errors.New("lock wait timeout"))
				mock.ExpectRollback()
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 3))
				mock.ExpectExec("DELETE FROM `chat_session` WHERE session_id = \\?").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			}

			err := uow.Transaction(context.Background(), func(sessions repository.SessionRepository, messages repository.MessageRepository) error {
				if _, err := messages.DeleteBySessionIDs(context.Background(), []string{"abc"}); err != nil {
					return err
				}
				_, err := sessions.Delete(context.Background(), "abc")
				return err
			})
			if tt.failMsg {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
