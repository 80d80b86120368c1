package request

// RetrieveRequest 多知识库检索请求
type RetrieveRequest struct {
	KnowledgeBaseIds []int64 `json:"knowledgeBaseIds" binding:"required"`
	Query            string  `json:"query" binding:"required"`
	Threshold        float64 `json:"threshold"` // 相似度阈值，<=0 不过滤
	TopK             int     `json:"topK"`
}
