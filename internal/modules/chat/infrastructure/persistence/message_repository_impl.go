package persistence

import (
	"context"
	"errors"
	"time"

	"KnowledgeHub/internal/modules/chat/domain/entity"
	"KnowledgeHub/internal/modules/chat/domain/repository"

	"gorm.io/gorm"
)

type messageRepositoryImpl struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) repository.MessageRepository {
	return &messageRepositoryImpl{db: db}
}

func (r *messageRepositoryImpl) Create(ctx context.Context, m *entity.ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepositoryImpl) GetByID(ctx context.Context, id int64) (*entity.ChatMessage, error) {
	var m entity.ChatMessage
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err == nil {
		return &m, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *messageRepositoryImpl) ListAfter(ctx context.Context, sessionID string, after *entity.ChatMessage, limit int) ([]entity.ChatMessage, error) {
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if after != nil {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.Id)
	}
	var list []entity.ChatMessage
	err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&list).Error
	return list, err
}

func (r *messageRepositoryImpl) ListRecent(ctx context.Context, sessionID string, limit int) ([]entity.ChatMessage, error) {
	var list []entity.ChatMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (r *messageRepositoryImpl) ListSessionIDsBefore(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.ChatMessage{}).
		Where("created_at < ?", before).
		Distinct().
		Pluck("session_id", &ids).Error
	return ids, err
}

func (r *messageRepositoryImpl) DeleteBySessionIDs(ctx context.Context, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("session_id IN ?", sessionIDs).Delete(&entity.ChatMessage{})
	return res.RowsAffected, res.Error
}

func (r *messageRepositoryImpl) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&entity.ChatMessage{})
	return res.RowsAffected, res.Error
}

func (r *messageRepositoryImpl) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&entity.ChatMessage{})
	return res.RowsAffected, res.Error
}
