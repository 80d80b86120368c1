package persistence

import (
	"context"
	"errors"
	"time"

	"KnowledgeHub/internal/modules/chat/domain/entity"
	"KnowledgeHub/internal/modules/chat/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sessionRepositoryImpl struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepositoryImpl{db: db}
}

func (r *sessionRepositoryImpl) Create(ctx context.Context, s *entity.ChatSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepositoryImpl) GetBySessionID(ctx context.Context, sessionID string) (*entity.ChatSession, error) {
	var s entity.ChatSession
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&s).Error
	if err == nil {
		return &s, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *sessionRepositoryImpl) GetActiveByUser(ctx context.Context, userID int64) (*entity.ChatSession, error) {
	var list []entity.ChatSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, entity.SessionActive).
		Order("updated_at DESC").Order("id DESC").
		Limit(1).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (r *sessionRepositoryImpl) ListByCursor(ctx context.Context, userID int64, after *entity.ChatSession, limit int) ([]entity.ChatSession, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if after != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", after.CreatedAt, after.CreatedAt, after.Id)
	}
	var list []entity.ChatSession
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}

func (r *sessionRepositoryImpl) ListByUser(ctx context.Context, userID int64) ([]entity.ChatSession, error) {
	var list []entity.ChatSession
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *sessionRepositoryImpl) ListIdle(ctx context.Context, statuses []entity.SessionStatus, before time.Time, limit int) ([]entity.ChatSession, error) {
	var list []entity.ChatSession
	if len(statuses) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, before).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *sessionRepositoryImpl) DeactivateOthers(ctx context.Context, userID int64, keepSessionID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.ChatSession{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ? AND session_id <> ?", userID, entity.SessionActive, keepSessionID).
		Pluck("session_id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	err = r.db.WithContext(ctx).Model(&entity.ChatSession{}).
		Where("session_id IN ? AND status = ?", ids, entity.SessionActive).
		Updates(map[string]interface{}{"status": entity.SessionCreated, "updated_at": time.Now()}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *sessionRepositoryImpl) Activate(ctx context.Context, sessionID string, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.ChatSession{}).
		Where("session_id = ? AND user_id = ? AND status <> ?", sessionID, userID, entity.SessionEnded).
		Updates(map[string]interface{}{"status": entity.SessionActive, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *sessionRepositoryImpl) UpdateTitle(ctx context.Context, sessionID, title string) error {
	return r.db.WithContext(ctx).Model(&entity.ChatSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{"title": title, "updated_at": time.Now()}).Error
}

func (r *sessionRepositoryImpl) End(ctx context.Context, sessionID string, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.ChatSession{}).
		Where("session_id = ? AND user_id = ? AND status <> ?", sessionID, userID, entity.SessionEnded).
		Updates(map[string]interface{}{"status": entity.SessionEnded, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *sessionRepositoryImpl) EndActive(ctx context.Context, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&entity.ChatSession{}).
		Where("session_id IN ? AND status = ?", sessionIDs, entity.SessionActive).
		Updates(map[string]interface{}{"status": entity.SessionEnded, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *sessionRepositoryImpl) IncrementStats(ctx context.Context, sessionID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.ChatSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"message_count":     gorm.Expr("message_count + 1"),
			"last_message_time": at,
			"updated_at":        time.Now(),
		}).Error
}

func (r *sessionRepositoryImpl) Delete(ctx context.Context, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&entity.ChatSession{})
	return res.RowsAffected, res.Error
}

func (r *sessionRepositoryImpl) DeleteBySessionIDs(ctx context.Context, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("session_id IN ?", sessionIDs).Delete(&entity.ChatSession{})
	return res.RowsAffected, res.Error
}

func (r *sessionRepositoryImpl) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&entity.ChatSession{})
	return res.RowsAffected, res.Error
}

type statusCount struct {
	Status entity.SessionStatus
	Total  int64
}

func (r *sessionRepositoryImpl) CountByStatus(ctx context.Context) (map[entity.SessionStatus]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).Model(&entity.ChatSession{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[entity.SessionStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func (r *sessionRepositoryImpl) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.ChatSession{}).Where("created_at >= ?", since).Count(&n).Error
	return n, err
}
