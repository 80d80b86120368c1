package entity

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
)

// ChatMessage 写入后不可变，会话内按 (created_at, id) 升序排列
type ChatMessage struct {
	Id        int64       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SessionId string      `gorm:"column:session_id;type:varchar(64);not null;index:idx_chat_message_session_created,priority:1" json:"sessionId"`
	UserId    int64       `gorm:"column:user_id;not null;index:idx_chat_message_user" json:"userId"`
	Role      MessageRole `gorm:"column:role;type:varchar(16);not null" json:"role"`
	Content   string      `gorm:"column:content;type:text;not null" json:"content"`
	Metadata  Metadata    `gorm:"column:metadata;type:json" json:"metadata,omitempty"`
	CreatedAt time.Time   `gorm:"column:created_at;type:datetime;not null;index:idx_chat_message_session_created,priority:2;index:idx_chat_message_created" json:"createdAt"`
}

func (ChatMessage) TableName() string { return "chat_message" }

// Metadata 不透明的 JSON 文本，NULL 读出为空
type Metadata []byte

func (m *Metadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = nil
	case []byte:
		*m = append(Metadata(nil), v...)
	case string:
		*m = Metadata(v)
	default:
		return fmt.Errorf("metadata: unsupported scan type %T", src)
	}
	return nil
}

func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return string(m), nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = nil
		return nil
	}
	*m = append(Metadata(nil), b...)
	return nil
}
