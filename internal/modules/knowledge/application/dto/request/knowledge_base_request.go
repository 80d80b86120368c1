package request

// CreateKnowledgeBaseRequest 创建知识库
type CreateKnowledgeBaseRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"` // PERSONAL（默认）或 PUBLIC
}

// UpdateKnowledgeBaseRequest 为空的字段保持不变
type UpdateKnowledgeBaseRequest struct {
	DisplayName string  `json:"displayName"`
	Description *string `json:"description"`
	Visibility  string  `json:"visibility"`
}

type SearchKnowledgeBaseRequest struct {
	Keyword string `form:"keyword"`
}
