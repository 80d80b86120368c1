package request

import "encoding/json"

type SaveMessageRequest struct {
	Content  string          `json:"content" binding:"required"`
	Metadata json.RawMessage `json:"metadata"`
}

type RecentMessagesQuery struct {
	Limit int `form:"limit"`
}
