package entity

import "time"

type SessionStatus int

const (
	SessionCreated SessionStatus = 0
	SessionActive  SessionStatus = 1
	SessionEnded   SessionStatus = 2
)

func (s SessionStatus) String() string {
	switch s {
	case SessionCreated:
		return "CREATED"
	case SessionActive:
		return "ACTIVE"
	case SessionEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

const DefaultSessionTitle = "New chat"

// ChatSession 每个用户同一时刻最多一个 ACTIVE 会话
type ChatSession struct {
	Id              int64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SessionId       string        `gorm:"column:session_id;type:varchar(64);not null;uniqueIndex:uniq_chat_session_id" json:"sessionId"`
	UserId          int64         `gorm:"column:user_id;not null;index:idx_chat_session_user_created,priority:1" json:"userId"`
	Title           string        `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Status          SessionStatus `gorm:"column:status;type:tinyint;not null;default:0;index:idx_chat_session_status" json:"status"`
	MessageCount    int           `gorm:"column:message_count;type:int;not null;default:0" json:"messageCount"`
	LastMessageTime time.Time     `gorm:"column:last_message_time;type:datetime;not null" json:"lastMessageTime"`
	CreatedAt       time.Time     `gorm:"column:created_at;type:datetime;not null;index:idx_chat_session_user_created,priority:2" json:"createdAt"`
	UpdatedAt       time.Time     `gorm:"column:updated_at;type:datetime;not null" json:"updatedAt"`
}

func (ChatSession) TableName() string { return "chat_session" }

func (s *ChatSession) OwnedBy(userID int64) bool {
	return s != nil && s.UserId == userID
}
