package persistence

import (
	"context"

	"KnowledgeHub/internal/modules/chat/domain/repository"

	"gorm.io/gorm"
)

type chatUnitOfWorkImpl struct {
	db *gorm.DB
}

func NewChatUnitOfWork(db *gorm.DB) repository.ChatUnitOfWork {
	return &chatUnitOfWorkImpl{db: db}
}

func (u *chatUnitOfWorkImpl) Transaction(ctx context.Context, fn func(sessions repository.SessionRepository, messages repository.MessageRepository) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewSessionRepository(tx), NewMessageRepository(tx))
	})
}
